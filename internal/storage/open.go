package storage

import (
	"fmt"

	"github.com/record-sync/internal/config"
)

// OpenRecordStore opens the record store selected by cfg.Store.Driver
func OpenRecordStore(cfg *config.Config) (RecordStore, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		db, err := NewPostgresDB(&cfg.Database.Postgres)
		if err != nil {
			return nil, err
		}
		return NewPostgresRecordStore(db), nil
	case config.StoreDriverSQLite:
		return NewSQLiteRecordStore(cfg.Database.SQLite.Path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
