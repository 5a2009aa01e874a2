package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// handleGetCustomer handles GET /customer/{id}
func (s *Server) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, err)
		return
	}

	customer, err := s.records.GetCustomer(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, customer)
}

// handleListCustomers handles GET /customers/?skip&limit
func (s *Server) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := listParams(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	customers, err := s.records.ListCustomers(r.Context(), skip, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, customers)
}

// handleGetCampaign handles GET /campaigns{id}
func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, err)
		return
	}

	campaign, err := s.records.GetCampaign(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, campaign)
}

// handleListCampaigns handles GET /campaigns/?skip&limit
func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := listParams(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	campaigns, err := s.records.ListCampaigns(r.Context(), skip, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, campaigns)
}

func listParams(r *http.Request) (int, int, error) {
	skip, err := queryInt(r, "skip", 0)
	if err != nil {
		return 0, 0, err
	}
	limit, err := queryInt(r, "limit", defaultLimit)
	if err != nil {
		return 0, 0, err
	}
	return skip, limit, nil
}
