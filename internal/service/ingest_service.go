// Package service composes the source client, persistence queue and record store.
package service

import (
	"context"

	"github.com/record-sync/internal/logging"
	"github.com/record-sync/internal/models"
)

// CustomersPage is the response of a CRM fetch. Total, Offset and Limit
// are the values reported by the CRM.
type CustomersPage struct {
	Customers []*models.Customer `json:"customers"`
	Total     int                `json:"total"`
	Offset    int                `json:"offset"`
	Limit     int                `json:"limit"`
}

// CampaignsPage is the response of a marketing fetch.
// Total counts the campaigns on this page only.
type CampaignsPage struct {
	Campaigns []*models.Campaign `json:"campaigns"`
	Total     int                `json:"total"`
}

// IngestService fetches pages from the external sources and hands the raw
// records to the persistence queue without waiting for them to be written
type IngestService struct {
	source SourceFetcher
	queue  Enqueuer
	logger *logging.Logger
}

// NewIngestService creates a new ingest service
func NewIngestService(source SourceFetcher, queue Enqueuer, logger *logging.Logger) *IngestService {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &IngestService{
		source: source,
		queue:  queue,
		logger: logger.WithField("component", "ingest"),
	}
}

// FetchCustomers fetches one CRM page and queues its records for persistence
func (s *IngestService) FetchCustomers(ctx context.Context, req models.PageRequest) (*CustomersPage, error) {
	page, err := s.source.Fetch(ctx, models.SourceCRM, req)
	if err != nil {
		return nil, err
	}

	s.enqueue(ctx, page)

	customers := page.Customers
	if customers == nil {
		customers = []*models.Customer{}
	}
	return &CustomersPage{
		Customers: customers,
		Total:     page.Total,
		Offset:    page.Offset,
		Limit:     page.Limit,
	}, nil
}

// FetchCampaigns fetches one marketing page and queues its records for persistence
func (s *IngestService) FetchCampaigns(ctx context.Context, req models.PageRequest) (*CampaignsPage, error) {
	page, err := s.source.Fetch(ctx, models.SourceMarketing, req)
	if err != nil {
		return nil, err
	}

	s.enqueue(ctx, page)

	campaigns := page.Campaigns
	if campaigns == nil {
		campaigns = []*models.Campaign{}
	}
	return &CampaignsPage{
		Campaigns: campaigns,
		Total:     len(campaigns),
	}, nil
}

// enqueue never fails the request; a lost job is only logged
func (s *IngestService) enqueue(ctx context.Context, page *models.FetchPage) {
	job := models.NewPersistenceJob(page.Source.RecordType(), page.Raw)

	logger := s.logger.WithFields(map[string]interface{}{
		"job_id":     job.ID,
		"type":       job.Type,
		"records":    len(job.Records),
		"request_id": logging.RequestID(ctx),
	})

	if err := s.queue.Enqueue(ctx, job); err != nil {
		logger.WithError(err).Error("Failed to enqueue persistence job")
		return
	}
	logger.Debug("Persistence job enqueued")
}
