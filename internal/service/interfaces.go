package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"github.com/record-sync/internal/models"
)

type SourceFetcher interface {
	Fetch(ctx context.Context, source models.SourceName, req models.PageRequest) (*models.FetchPage, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, job *models.PersistenceJob) error
}

type RecordReader interface {
	GetCustomer(ctx context.Context, id int64) (*models.Customer, error)
	ListCustomers(ctx context.Context, skip, limit int) ([]*models.Customer, error)
	GetCampaign(ctx context.Context, id int64) (*models.Campaign, error)
	ListCampaigns(ctx context.Context, skip, limit int) ([]*models.Campaign, error)
}
