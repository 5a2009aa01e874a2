package service

import (
	"context"
	"errors"

	apperrors "github.com/record-sync/internal/errors"
	"github.com/record-sync/internal/models"
	"github.com/record-sync/internal/storage"
)

// RecordService reads persisted customers and campaigns
type RecordService struct {
	store RecordReader
}

// NewRecordService creates a new record service
func NewRecordService(store RecordReader) *RecordService {
	return &RecordService{store: store}
}

// GetCustomer returns one customer or a not found error
func (s *RecordService) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	customer, err := s.store.GetCustomer(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.NewNotFoundError("Customer not found")
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to load customer", err)
	}
	return customer, nil
}

// ListCustomers returns up to limit customers after skipping skip of them
func (s *RecordService) ListCustomers(ctx context.Context, skip, limit int) ([]*models.Customer, error) {
	customers, err := s.store.ListCustomers(ctx, skip, limit)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list customers", err)
	}
	if customers == nil {
		customers = []*models.Customer{}
	}
	return customers, nil
}

// GetCampaign returns one campaign or a not found error
func (s *RecordService) GetCampaign(ctx context.Context, id int64) (*models.Campaign, error) {
	campaign, err := s.store.GetCampaign(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.NewNotFoundError("Campaigns not found")
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to load campaign", err)
	}
	return campaign, nil
}

// ListCampaigns returns up to limit campaigns after skipping skip of them
func (s *RecordService) ListCampaigns(ctx context.Context, skip, limit int) ([]*models.Campaign, error) {
	campaigns, err := s.store.ListCampaigns(ctx, skip, limit)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list campaigns", err)
	}
	if campaigns == nil {
		campaigns = []*models.Campaign{}
	}
	return campaigns, nil
}
