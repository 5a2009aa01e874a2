package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/record-sync/internal/config"
)

func TestOpenRecordStore_SQLite(t *testing.T) {
	cfg := &config.Config{}
	cfg.Store.Driver = config.StoreDriverSQLite
	cfg.Database.SQLite.Path = filepath.Join(t.TempDir(), "open.db")

	store, err := OpenRecordStore(cfg)
	require.NoError(t, err)
	defer store.Close()

	assert.IsType(t, &SQLiteRecordStore{}, store)
	assert.NoError(t, store.Ping(testContext(t)))
}

func TestOpenRecordStore_UnknownDriver(t *testing.T) {
	cfg := &config.Config{}
	cfg.Store.Driver = "mongo"

	_, err := OpenRecordStore(cfg)
	assert.ErrorContains(t, err, `unknown store driver "mongo"`)
}
