// Package storage provides database connections and the record store implementations.
package storage

import (
	"context"
	"errors"

	"github.com/record-sync/internal/models"
)

// ErrNotFound is returned when a lookup matches no record
var ErrNotFound = errors.New("record not found")

// ErrDuplicateID is returned when an insert reuses an existing record id
var ErrDuplicateID = errors.New("record id already exists")

// RecordStore gives read access to persisted records and opens write sessions
type RecordStore interface {
	// OpenSession opens a write session. Each insert on the session
	// commits on its own.
	OpenSession(ctx context.Context) (Session, error)

	GetCustomer(ctx context.Context, id int64) (*models.Customer, error)
	ListCustomers(ctx context.Context, skip, limit int) ([]*models.Customer, error)
	GetCampaign(ctx context.Context, id int64) (*models.Campaign, error)
	ListCampaigns(ctx context.Context, skip, limit int) ([]*models.Campaign, error)

	// EnsureSchema creates the tables if they do not exist
	EnsureSchema(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Session is a write session held by one persistence job
type Session interface {
	InsertCustomer(ctx context.Context, c *models.Customer) error
	InsertCampaign(ctx context.Context, c *models.Campaign) error
	Close() error
}
