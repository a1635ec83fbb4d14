// Package postgres is the production cart store on pgx.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/cart"
)

// DBPool matches the methods from *pgxpool.Pool that we use.
// This allows us to mock the database in tests.
type DBPool interface {
	querier
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// querier is satisfied by both the pool and an open pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

type Store struct {
	queries
	pool DBPool
}

var _ cart.Store = (*Store)(nil)

func New(pool DBPool) *Store {
	return &Store{queries: queries{q: pool}, pool: pool}
}

// WithinTx runs fn in a READ COMMITTED transaction. Row locks taken through
// LockCart are held until it ends.
func (s *Store) WithinTx(ctx context.Context, fn func(q cart.Queries) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return cart.WrapStoreError("begin tx", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(queries{q: tx}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return cart.WrapStoreError("commit tx", err)
	}
	return nil
}

type queries struct {
	q querier
}

func (q queries) Statistics(ctx context.Context, dayStart time.Time) (cart.Statistics, error) {
	const query = `
SELECT
    (SELECT COUNT(*) FROM carts WHERE status = 'active'),
    (SELECT COUNT(*) FROM carts WHERE status = 'finalized' AND finalized_at >= $1),
    (SELECT COUNT(*) FROM cart_reminders WHERE status = 'pending'),
    (SELECT COUNT(*) FROM cart_reminders WHERE status = 'sent' AND sent_at >= $1),
    (SELECT COUNT(*) FROM cart_reminders WHERE status = 'pending' AND failed_at IS NOT NULL)`

	var st cart.Statistics
	err := q.q.QueryRow(ctx, query, dayStart).Scan(
		&st.ActiveCarts,
		&st.FinalizedToday,
		&st.PendingReminders,
		&st.SentRemindersToday,
		&st.FailedReminders,
	)
	if err != nil {
		return cart.Statistics{}, cart.WrapStoreError("statistics", err)
	}
	return st, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// Prices travel as text so no precision is lost between NUMERIC and decimal.
func parsePrice(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
