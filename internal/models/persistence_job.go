package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RecordType tags the collection a persistence job writes to
type RecordType string

const (
	RecordTypeCustomer RecordType = "customer"
	RecordTypeCampaign RecordType = "campaign"
)

// IsValid reports whether the record type is known
func (t RecordType) IsValid() bool {
	return t == RecordTypeCustomer || t == RecordTypeCampaign
}

// PersistenceJob is one batch of raw source records handed to the worker pool.
// Records are written in slice order. The ID is for log correlation only.
type PersistenceJob struct {
	ID         string            `json:"id"`
	Type       RecordType        `json:"type"`
	Records    []json.RawMessage `json:"records"`
	EnqueuedAt time.Time         `json:"enqueuedAt"`
}

// NewPersistenceJob creates a job for the given records with a fresh id
func NewPersistenceJob(recordType RecordType, records []json.RawMessage) *PersistenceJob {
	return &PersistenceJob{
		ID:         uuid.NewString(),
		Type:       recordType,
		Records:    records,
		EnqueuedAt: time.Now().UTC(),
	}
}
