package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/record-sync/internal/models"
)

// testContext creates a context with timeout for tests
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// runRecordStoreContract exercises behaviour every RecordStore must share.
// The store must be empty with its schema in place.
func runRecordStoreContract(t *testing.T, store RecordStore) {
	t.Run("customer round trip", func(t *testing.T) {
		ctx := testContext(t)

		session, err := store.OpenSession(ctx)
		require.NoError(t, err)
		defer session.Close()

		want := &models.Customer{ID: 7, Name: "Acme", Status: "active", Email: "a@b.com"}
		require.NoError(t, session.InsertCustomer(ctx, want))

		got, err := store.GetCustomer(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("missing customer", func(t *testing.T) {
		_, err := store.GetCustomer(testContext(t), 404)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("duplicate customer id", func(t *testing.T) {
		ctx := testContext(t)

		session, err := store.OpenSession(ctx)
		require.NoError(t, err)
		defer session.Close()

		err = session.InsertCustomer(ctx, &models.Customer{ID: 7, Name: "Other", Status: "x", Email: "o@b.com"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDuplicateID)

		got, err := store.GetCustomer(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, "Acme", got.Name, "first write wins")
	})

	t.Run("list customers pages by id", func(t *testing.T) {
		ctx := testContext(t)

		session, err := store.OpenSession(ctx)
		require.NoError(t, err)
		defer session.Close()

		for _, id := range []int64{3, 1, 2} {
			require.NoError(t, session.InsertCustomer(ctx, &models.Customer{
				ID: id, Name: "c", Status: "active", Email: "c@x.io",
			}))
		}

		page, err := store.ListCustomers(ctx, 1, 2)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, int64(2), page[0].ID)
		assert.Equal(t, int64(3), page[1].ID)

		empty, err := store.ListCustomers(ctx, 100, 10)
		require.NoError(t, err)
		assert.NotNil(t, empty)
		assert.Len(t, empty, 0)
	})

	t.Run("campaign constraint failure keeps earlier writes", func(t *testing.T) {
		ctx := testContext(t)

		session, err := store.OpenSession(ctx)
		require.NoError(t, err)
		defer session.Close()

		records := []*models.Campaign{
			{ID: 1, Name: "Spring", Status: "active", Budget: 100, StartDate: "2024-03-01", EndDate: "2024-05-31"},
			{ID: 2, Name: "Broken", Status: "draft", Budget: -5, StartDate: "2024-06-01", EndDate: "2024-06-30"},
			{ID: 3, Name: "Fall", Status: "paused", Budget: 0, StartDate: "2024-09-01", EndDate: "2024-11-30"},
		}

		var failures int
		for _, c := range records {
			if err := session.InsertCampaign(ctx, c); err != nil {
				failures++
			}
		}
		assert.Equal(t, 1, failures)

		first, err := store.GetCampaign(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, records[0], first)

		_, err = store.GetCampaign(ctx, 2)
		assert.ErrorIs(t, err, ErrNotFound)

		third, err := store.GetCampaign(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, records[2], third)

		all, err := store.ListCampaigns(ctx, 0, 100)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("ensure schema is idempotent", func(t *testing.T) {
		require.NoError(t, store.EnsureSchema(testContext(t)))
		require.NoError(t, store.Ping(testContext(t)))
	})
}
