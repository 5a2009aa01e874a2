package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Campaign represents a marketing campaign record.
// StartDate and EndDate are calendar dates kept as the source sends them.
type Campaign struct {
	ID        int64  `json:"id" db:"id"`
	Name      string `json:"name" db:"name"`
	Status    string `json:"status" db:"status"`
	Budget    int64  `json:"budget" db:"budget"`
	StartDate string `json:"start_date" db:"start_date"`
	EndDate   string `json:"end_date" db:"end_date"`
}

type campaignWire struct {
	ID        *int64  `json:"id"`
	Name      *string `json:"name"`
	Status    *string `json:"status"`
	Budget    *int64  `json:"budget"`
	StartDate *string `json:"start_date"`
	EndDate   *string `json:"end_date"`
}

// DecodeCampaign decodes one raw marketing record, rejecting records with missing fields
func DecodeCampaign(raw json.RawMessage) (*Campaign, error) {
	var w campaignWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("invalid campaign record: %w", err)
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
	if w.Budget == nil {
		missing = append(missing, "budget")
	}
	if w.StartDate == nil {
		missing = append(missing, "start_date")
	}
	if w.EndDate == nil {
		missing = append(missing, "end_date")
	}
	if len(missing) > 0 {
		return nil, &MissingFieldsError{Record: "campaign", Fields: missing}
	}

	return &Campaign{
		ID:        *w.ID,
		Name:      *w.Name,
		Status:    *w.Status,
		Budget:    *w.Budget,
		StartDate: *w.StartDate,
		EndDate:   *w.EndDate,
	}, nil
}

// MissingFieldsError reports required fields absent from a source record
type MissingFieldsError struct {
	Record string
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("%s record missing required fields: %s", e.Record, strings.Join(e.Fields, ", "))
}
