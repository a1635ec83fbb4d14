//go:build integration

package postgres

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/catalog"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/testutil"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()

	dsn := testutil.StartPostgres(t)

	sqlDB, err := db.OpenPostgres(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.RunMigrations(db.Postgres, sqlDB, slog.New(slog.NewTextHandler(io.Discard, nil))))

	pool, err := db.NewPool(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return New(pool)
}

func TestPostgresStoreIntegration(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertProduct(ctx, catalog.Product{ID: "p1", Name: "Mug", Price: decimal.RequireFromString("10.75")}, t0))
	price, err := s.Price(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "10.75", price.StringFixed(2))

	t.Run("one active cart under concurrent creates", func(t *testing.T) {
		const workers = 8
		ids := make([]string, workers)
		created := make([]bool, workers)

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := s.WithinTx(ctx, func(q cart.Queries) error {
					c, ok, err := q.GetOrCreateActiveCart(ctx, "race@example.com", t0)
					ids[i], created[i] = c.ID, ok
					return err
				})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		n := 0
		for i := range ids {
			assert.Equal(t, ids[0], ids[i])
			if created[i] {
				n++
			}
		}
		assert.Equal(t, 1, n)
	})

	t.Run("merge keeps first price and finalize is once", func(t *testing.T) {
		c, created, err := s.GetOrCreateActiveCart(ctx, "buyer@example.com", t0)
		require.NoError(t, err)
		require.True(t, created)

		_, err = s.AddItem(ctx, c.ID, "p1", 1, decimal.RequireFromString("10.75"), t0)
		require.NoError(t, err)
		it, err := s.AddItem(ctx, c.ID, "p1", 2, decimal.RequireFromString("99.99"), t0.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 3, it.Quantity)
		assert.Equal(t, "10.75", it.Price.StringFixed(2))

		r, err := s.UpsertReminder(ctx, c.ID, 1, t0.Add(time.Hour), t0)
		require.NoError(t, err)
		assert.Equal(t, cart.ReminderPending, r.Status)

		due, err := s.ListDueReminders(ctx, t0.Add(2*time.Hour), 0)
		require.NoError(t, err)
		require.Len(t, due, 1)

		require.NoError(t, s.WithinTx(ctx, func(q cart.Queries) error {
			if _, err := q.LockCart(ctx, c.ID); err != nil {
				return err
			}
			if err := q.FinalizeCart(ctx, c.ID, t0.Add(time.Hour)); err != nil {
				return err
			}
			n, err := q.CancelPendingReminders(ctx, c.ID, t0.Add(time.Hour))
			assert.EqualValues(t, 1, n)
			return err
		}))

		require.ErrorIs(t, s.FinalizeCart(ctx, c.ID, t0.Add(2*time.Hour)), cart.ErrAlreadyFinalized)

		got, err := s.GetCart(ctx, c.ID)
		require.NoError(t, err)
		require.NotNil(t, got.FinalizedAt)
		assert.True(t, got.FinalizedAt.Equal(t0.Add(time.Hour)))

		st, err := s.Statistics(ctx, t0.Truncate(24*time.Hour))
		require.NoError(t, err)
		assert.EqualValues(t, 1, st.FinalizedToday)
		assert.EqualValues(t, 0, st.PendingReminders)
	})
}

func TestPostgresStoreAddRacesFinalize(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		email := fmt.Sprintf("buyer%d@example.com", i)

		c, _, err := s.GetOrCreateActiveCart(ctx, email, t0)
		require.NoError(t, err)
		_, err = s.AddItem(ctx, c.ID, "p1", 1, decimal.RequireFromString("10.00"), t0)
		require.NoError(t, err)

		var (
			added     cart.Item
			finalized []cart.Item
			start     = make(chan struct{})
			wg        sync.WaitGroup
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			err := s.WithinTx(ctx, func(q cart.Queries) error {
				target, _, err := q.GetOrCreateActiveCart(ctx, email, t0)
				if err != nil {
					return err
				}
				added, err = q.AddItem(ctx, target.ID, "p2", 1, decimal.RequireFromString("5.00"), t0)
				return err
			})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			<-start
			err := s.WithinTx(ctx, func(q cart.Queries) error {
				if _, err := q.LockCart(ctx, c.ID); err != nil {
					return err
				}
				if err := q.FinalizeCart(ctx, c.ID, t0.Add(time.Hour)); err != nil {
					return err
				}
				var err error
				finalized, err = q.ListItems(ctx, c.ID)
				return err
			})
			assert.NoError(t, err)
		}()
		close(start)
		wg.Wait()

		// An item either went into the cart before it was finalized, and the
		// finalize saw it, or it went into a fresh cart.
		if added.CartID == c.ID {
			require.Len(t, finalized, 2, "iteration %d", i)
			continue
		}
		require.Len(t, finalized, 1, "iteration %d", i)
		fresh, err := s.GetCart(ctx, added.CartID)
		require.NoError(t, err)
		assert.Equal(t, cart.StatusActive, fresh.Status)
	}
}
