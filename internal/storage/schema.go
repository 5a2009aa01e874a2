package storage

// postgresSchema is applied by EnsureSchema on the Postgres store
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		id     BIGINT PRIMARY KEY,
		name   TEXT NOT NULL,
		email  TEXT NOT NULL,
		status TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_customers_email ON customers (email)`,
	`CREATE TABLE IF NOT EXISTS campaigns (
		id         BIGINT PRIMARY KEY,
		name       TEXT NOT NULL,
		status     TEXT NOT NULL,
		budget     BIGINT NOT NULL CHECK (budget >= 0),
		start_date TEXT NOT NULL,
		end_date   TEXT NOT NULL
	)`,
}

// sqliteSchema is applied by EnsureSchema on the SQLite store
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		id     INTEGER PRIMARY KEY,
		name   TEXT NOT NULL,
		email  TEXT NOT NULL,
		status TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_customers_email ON customers (email)`,
	`CREATE TABLE IF NOT EXISTS campaigns (
		id         INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		status     TEXT NOT NULL,
		budget     INTEGER NOT NULL CHECK (budget >= 0),
		start_date TEXT NOT NULL,
		end_date   TEXT NOT NULL
	)`,
}
