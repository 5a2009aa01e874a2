// Package models provides data models for the record sync service.
package models

import (
	"encoding/json"
	"fmt"
)

// Customer represents a CRM customer record
type Customer struct {
	ID     int64  `json:"id" db:"id"`
	Name   string `json:"name" db:"name"`
	Status string `json:"status" db:"status"`
	Email  string `json:"email" db:"email"`
}

// customerWire mirrors the CRM schema; every field is required
type customerWire struct {
	ID     *int64  `json:"id"`
	Name   *string `json:"name"`
	Status *string `json:"status"`
	Email  *string `json:"email"`
}

// DecodeCustomer decodes one raw CRM record, rejecting records with missing fields
func DecodeCustomer(raw json.RawMessage) (*Customer, error) {
	var w customerWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("invalid customer record: %w", err)
	}

	var missing []string
	if w.ID == nil {
		missing = append(missing, "id")
	}
	if w.Name == nil {
		missing = append(missing, "name")
	}
	if w.Status == nil {
		missing = append(missing, "status")
	}
	if w.Email == nil {
		missing = append(missing, "email")
	}
	if len(missing) > 0 {
		return nil, &MissingFieldsError{Record: "customer", Fields: missing}
	}

	return &Customer{
		ID:     *w.ID,
		Name:   *w.Name,
		Status: *w.Status,
		Email:  *w.Email,
	}, nil
}
