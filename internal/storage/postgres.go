package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/record-sync/internal/config"
	"github.com/record-sync/internal/models"
)

// pgUniqueViolation is the SQLSTATE for a unique constraint violation
const pgUniqueViolation = "23505"

// PostgresDB wraps the pgxpool connection
type PostgresDB struct {
	pool *pgxpool.Pool
}

// NewPostgresDB creates a new Postgres database connection
func NewPostgresDB(cfg *config.PostgresConfig) (*PostgresDB, error) {
	return NewPostgresDBFromURL(cfg.PostgresURL())
}

// NewPostgresDBFromURL creates a new Postgres database connection from a connection string
func NewPostgresDBFromURL(connString string) (*PostgresDB, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	// Configure connection pool
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Close closes the database connection pool
func (db *PostgresDB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Pool returns the underlying connection pool
func (db *PostgresDB) Pool() *pgxpool.Pool {
	return db.pool
}

// Ping checks if the database is reachable
func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// PostgresRecordStore stores customers and campaigns in Postgres
type PostgresRecordStore struct {
	db *PostgresDB
}

// NewPostgresRecordStore creates a new Postgres record store
func NewPostgresRecordStore(db *PostgresDB) *PostgresRecordStore {
	return &PostgresRecordStore{db: db}
}

// EnsureSchema creates the record tables if they do not exist
func (s *PostgresRecordStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.db.Pool().Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// OpenSession acquires a dedicated connection for one job
func (s *PostgresRecordStore) OpenSession(ctx context.Context) (Session, error) {
	conn, err := s.db.Pool().Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &postgresSession{conn: conn}, nil
}

// GetCustomer retrieves a customer by ID
func (s *PostgresRecordStore) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	query := `
		SELECT id, name, status, email
		FROM customers
		WHERE id = $1
	`

	var c models.Customer
	err := s.db.Pool().QueryRow(ctx, query, id).Scan(&c.ID, &c.Name, &c.Status, &c.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	return &c, nil
}

// ListCustomers returns one page of customers ordered by ID
func (s *PostgresRecordStore) ListCustomers(ctx context.Context, skip, limit int) ([]*models.Customer, error) {
	query := `
		SELECT id, name, status, email
		FROM customers
		ORDER BY id
		OFFSET $1 LIMIT $2
	`

	rows, err := s.db.Pool().Query(ctx, query, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	customers := make([]*models.Customer, 0)
	for rows.Next() {
		var c models.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Status, &c.Email); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		customers = append(customers, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating customers: %w", err)
	}

	return customers, nil
}

// GetCampaign retrieves a campaign by ID
func (s *PostgresRecordStore) GetCampaign(ctx context.Context, id int64) (*models.Campaign, error) {
	query := `
		SELECT id, name, status, budget, start_date, end_date
		FROM campaigns
		WHERE id = $1
	`

	var c models.Campaign
	err := s.db.Pool().QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.Name,
		&c.Status,
		&c.Budget,
		&c.StartDate,
		&c.EndDate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return &c, nil
}

// ListCampaigns returns one page of campaigns ordered by ID
func (s *PostgresRecordStore) ListCampaigns(ctx context.Context, skip, limit int) ([]*models.Campaign, error) {
	query := `
		SELECT id, name, status, budget, start_date, end_date
		FROM campaigns
		ORDER BY id
		OFFSET $1 LIMIT $2
	`

	rows, err := s.db.Pool().Query(ctx, query, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := make([]*models.Campaign, 0)
	for rows.Next() {
		var c models.Campaign
		if err := rows.Scan(&c.ID, &c.Name, &c.Status, &c.Budget, &c.StartDate, &c.EndDate); err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating campaigns: %w", err)
	}

	return campaigns, nil
}

// Ping checks if the database is reachable
func (s *PostgresRecordStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the underlying pool
func (s *PostgresRecordStore) Close() error {
	s.db.Close()
	return nil
}

// postgresSession runs each insert as its own statement on one connection,
// so every record commits independently.
type postgresSession struct {
	conn *pgxpool.Conn
}

func (s *postgresSession) InsertCustomer(ctx context.Context, c *models.Customer) error {
	query := `
		INSERT INTO customers (id, name, email, status)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := s.conn.Exec(ctx, query, c.ID, c.Name, c.Email, c.Status); err != nil {
		return fmt.Errorf("failed to insert customer %d: %w", c.ID, mapPostgresError(err))
	}
	return nil
}

func (s *postgresSession) InsertCampaign(ctx context.Context, c *models.Campaign) error {
	query := `
		INSERT INTO campaigns (id, name, status, budget, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if _, err := s.conn.Exec(ctx, query, c.ID, c.Name, c.Status, c.Budget, c.StartDate, c.EndDate); err != nil {
		return fmt.Errorf("failed to insert campaign %d: %w", c.ID, mapPostgresError(err))
	}
	return nil
}

func (s *postgresSession) Close() error {
	s.conn.Release()
	return nil
}

func mapPostgresError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicateID, pgErr.Detail)
	}
	return err
}
