package api

import (
	"net/http"

	"github.com/record-sync/internal/models"
)

const (
	defaultOffset = 0
	defaultLimit  = 100
)

// pageRequest reads offset, limit and api_key from the query string
func pageRequest(r *http.Request) (models.PageRequest, error) {
	offset, err := queryInt(r, "offset", defaultOffset)
	if err != nil {
		return models.PageRequest{}, err
	}
	limit, err := queryInt(r, "limit", defaultLimit)
	if err != nil {
		return models.PageRequest{}, err
	}

	return models.PageRequest{
		Offset: offset,
		Limit:  limit,
		APIKey: r.URL.Query().Get("api_key"),
	}, nil
}

// handleExternalCRMData handles GET /external-crm-data
func (s *Server) handleExternalCRMData(w http.ResponseWriter, r *http.Request) {
	req, err := pageRequest(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	page, err := s.ingest.FetchCustomers(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, page)
}

// handleExternalMarketingData handles GET /external-marketing-data
func (s *Server) handleExternalMarketingData(w http.ResponseWriter, r *http.Request) {
	req, err := pageRequest(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	page, err := s.ingest.FetchCampaigns(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, page)
}
