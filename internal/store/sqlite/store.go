// Package sqlite is the embedded cart store, used for single-node runs and
// tests. It relies on the one-connection pool from db.OpenSQLite to serialize
// writers.
package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/cart"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

type Store struct {
	queries
	db *sql.DB
}

var _ cart.Store = (*Store)(nil)

func New(db *sql.DB) *Store {
	return &Store{queries: queries{q: db}, db: db}
}

func (s *Store) WithinTx(ctx context.Context, fn func(q cart.Queries) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cart.WrapStoreError("begin tx", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(queries{q: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return cart.WrapStoreError("commit tx", err)
	}
	return nil
}

// queries runs against either the *sql.DB or an open *sql.Tx.
type queries struct {
	q execer
}

func (q queries) Statistics(ctx context.Context, dayStart time.Time) (cart.Statistics, error) {
	const query = `
SELECT
    (SELECT COUNT(*) FROM carts WHERE status = 'active'),
    (SELECT COUNT(*) FROM carts WHERE status = 'finalized' AND finalized_at >= ?),
    (SELECT COUNT(*) FROM cart_reminders WHERE status = 'pending'),
    (SELECT COUNT(*) FROM cart_reminders WHERE status = 'sent' AND sent_at >= ?),
    (SELECT COUNT(*) FROM cart_reminders WHERE status = 'pending' AND failed_at IS NOT NULL)`

	var st cart.Statistics
	err := q.q.QueryRowContext(ctx, query, dayStart.UTC(), dayStart.UTC()).Scan(
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

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func affected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}
