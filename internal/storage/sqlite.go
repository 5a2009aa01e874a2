package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/record-sync/internal/models"
)

// SQLiteRecordStore stores customers and campaigns in an embedded SQLite file
type SQLiteRecordStore struct {
	db *sqlx.DB
}

// NewSQLiteRecordStore opens (or creates) the SQLite database at path
func NewSQLiteRecordStore(path string) (*SQLiteRecordStore, error) {
	// WAL lets readers proceed while a job is writing
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)

	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	return &SQLiteRecordStore{db: db}, nil
}

// DB returns the underlying sqlx handle
func (s *SQLiteRecordStore) DB() *sqlx.DB {
	return s.db
}

// EnsureSchema creates the record tables if they do not exist
func (s *SQLiteRecordStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// OpenSession takes a dedicated connection for one job
func (s *SQLiteRecordStore) OpenSession(ctx context.Context) (Session, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &sqliteSession{conn: conn}, nil
}

// GetCustomer retrieves a customer by ID
func (s *SQLiteRecordStore) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	var c models.Customer
	err := s.db.GetContext(ctx, &c, `SELECT id, name, status, email FROM customers WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &c, nil
}

// ListCustomers returns one page of customers ordered by ID
func (s *SQLiteRecordStore) ListCustomers(ctx context.Context, skip, limit int) ([]*models.Customer, error) {
	customers := make([]*models.Customer, 0)
	err := s.db.SelectContext(ctx, &customers,
		`SELECT id, name, status, email FROM customers ORDER BY id LIMIT ? OFFSET ?`, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	return customers, nil
}

// GetCampaign retrieves a campaign by ID
func (s *SQLiteRecordStore) GetCampaign(ctx context.Context, id int64) (*models.Campaign, error) {
	var c models.Campaign
	err := s.db.GetContext(ctx, &c,
		`SELECT id, name, status, budget, start_date, end_date FROM campaigns WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return &c, nil
}

// ListCampaigns returns one page of campaigns ordered by ID
func (s *SQLiteRecordStore) ListCampaigns(ctx context.Context, skip, limit int) ([]*models.Campaign, error) {
	campaigns := make([]*models.Campaign, 0)
	err := s.db.SelectContext(ctx, &campaigns,
		`SELECT id, name, status, budget, start_date, end_date FROM campaigns ORDER BY id LIMIT ? OFFSET ?`,
		limit, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return campaigns, nil
}

// Ping checks if the database is reachable
func (s *SQLiteRecordStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *SQLiteRecordStore) Close() error {
	return s.db.Close()
}

type sqliteSession struct {
	conn *sqlx.Conn
}

func (s *sqliteSession) InsertCustomer(ctx context.Context, c *models.Customer) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO customers (id, name, email, status) VALUES (?, ?, ?, ?)`,
		c.ID, c.Name, c.Email, c.Status)
	if err != nil {
		return fmt.Errorf("failed to insert customer %d: %w", c.ID, mapSQLiteError(err))
	}
	return nil
}

func (s *sqliteSession) InsertCampaign(ctx context.Context, c *models.Campaign) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO campaigns (id, name, status, budget, start_date, end_date) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Status, c.Budget, c.StartDate, c.EndDate)
	if err != nil {
		return fmt.Errorf("failed to insert campaign %d: %w", c.ID, mapSQLiteError(err))
	}
	return nil
}

func (s *sqliteSession) Close() error {
	return s.conn.Close()
}

func mapSQLiteError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
		return fmt.Errorf("%w: %v", ErrDuplicateID, sqliteErr)
	}
	return err
}
