package job

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "github.com/record-sync/internal/errors"
	"github.com/record-sync/internal/logging"
	"github.com/record-sync/internal/models"
	"github.com/record-sync/internal/storage"
)

// PersistResult summarises one processed job
type PersistResult struct {
	JobID     string
	Type      models.RecordType
	Persisted int
	Failed    int
}

// Handler processes one job
type Handler interface {
	Handle(ctx context.Context, job *models.PersistenceJob) (*PersistResult, error)
}

// Persister writes job records to the record store, one commit per record
type Persister struct {
	store storage.RecordStore
}

// NewPersister creates a persister writing to store
func NewPersister(store storage.RecordStore) *Persister {
	return &Persister{store: store}
}

// Handle writes the job's records in order. A record that fails to decode
// or insert is logged and skipped; earlier writes stay committed. The
// returned error covers failures that stop the whole job.
func (p *Persister) Handle(ctx context.Context, job *models.PersistenceJob) (*PersistResult, error) {
	if !job.Type.IsValid() {
		return nil, fmt.Errorf("unknown record type %q", job.Type)
	}

	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"job_id": job.ID,
		"type":   job.Type,
	})

	session, err := p.store.OpenSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open session for job %s: %w", job.ID, err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close store session")
		}
	}()

	result := &PersistResult{JobID: job.ID, Type: job.Type}

	for i, raw := range job.Records {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if err := p.persistRecord(ctx, session, job.Type, raw); err != nil {
			result.Failed++
			logger.WithField("index", i).WithError(err).Error("Failed to persist record")
			continue
		}
		result.Persisted++
	}

	return result, nil
}

func (p *Persister) persistRecord(ctx context.Context, session storage.Session, recordType models.RecordType, raw json.RawMessage) error {
	switch recordType {
	case models.RecordTypeCustomer:
		c, err := models.DecodeCustomer(raw)
		if err != nil {
			return apperrors.NewPersistenceError(string(recordType), nil, err)
		}
		if err := session.InsertCustomer(ctx, c); err != nil {
			return apperrors.NewPersistenceError(string(recordType), c.ID, err)
		}
	case models.RecordTypeCampaign:
		c, err := models.DecodeCampaign(raw)
		if err != nil {
			return apperrors.NewPersistenceError(string(recordType), nil, err)
		}
		if err := session.InsertCampaign(ctx, c); err != nil {
			return apperrors.NewPersistenceError(string(recordType), c.ID, err)
		}
	}
	return nil
}
