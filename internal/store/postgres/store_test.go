package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/cart"
)

var t0 = time.Date(2025, time.May, 5, 10, 0, 0, 0, time.UTC)

var readCommitted = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestWithinTx_Commits(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBeginTx(readCommitted)
	mock.ExpectExec(`UPDATE carts SET status = 'finalized'`).
		WithArgs("c1", t0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := New(mock).WithinTx(context.Background(), func(q cart.Queries) error {
		return q.FinalizeCart(context.Background(), "c1", t0)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBeginTx(readCommitted)
	mock.ExpectExec(`UPDATE carts SET status = 'finalized'`).
		WithArgs("c1", t0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := New(mock).WithinTx(context.Background(), func(q cart.Queries) error {
		return q.FinalizeCart(context.Background(), "c1", t0)
	})
	require.ErrorIs(t, err, cart.ErrAlreadyFinalized)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTx_BeginError(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBeginTx(readCommitted).WillReturnError(errors.New("pool closed"))

	called := false
	err := New(mock).WithinTx(context.Background(), func(q cart.Queries) error {
		called = true
		return nil
	})

	var se *cart.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "begin tx", se.Op)
	assert.False(t, called)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCart_NotFound(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT ` + cartColumns + ` FROM carts WHERE id = $1`)).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"id", "customer_email", "status", "finalized_at", "created_at", "updated_at"}))

	_, err := New(mock).GetCart(context.Background(), "missing")
	require.ErrorIs(t, err, cart.ErrCartNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockCart_UsesRowLock(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("c1").
		WillReturnError(errors.New("deadlock detected"))

	_, err := New(mock).LockCart(context.Background(), "c1")

	var se *cart.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "lock cart", se.Op)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrCreateActiveCart_FetchErrorAfterConflict(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(`INSERT INTO carts`).
		WithArgs(pgxmock.AnyArg(), "a@example.com", t0).
		WillReturnRows(pgxmock.NewRows([]string{"id", "customer_email", "status", "finalized_at", "created_at", "updated_at"}))
	mock.ExpectQuery(`WHERE customer_email = \$1 AND status = 'active' FOR UPDATE`).
		WithArgs("a@example.com").
		WillReturnError(errors.New("connection reset"))

	_, _, err := New(mock).GetOrCreateActiveCart(context.Background(), "a@example.com", t0)

	var se *cart.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "lock active cart", se.Op)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrCreateActiveCart_GivesUpWhenContended(t *testing.T) {
	mock := newMock(t)

	cols := []string{"id", "customer_email", "status", "finalized_at", "created_at", "updated_at"}
	for i := 0; i < getOrCreateAttempts; i++ {
		mock.ExpectQuery(`INSERT INTO carts`).
			WithArgs(pgxmock.AnyArg(), "a@example.com", t0).
			WillReturnRows(pgxmock.NewRows(cols))
		mock.ExpectQuery(`WHERE customer_email = \$1 AND status = 'active' FOR UPDATE`).
			WithArgs("a@example.com").
			WillReturnRows(pgxmock.NewRows(cols))
	}

	_, _, err := New(mock).GetOrCreateActiveCart(context.Background(), "a@example.com", t0)
	require.ErrorIs(t, err, errCartContended)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddItem_ReadsPriceAsText(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(`INSERT INTO cart_items`).
		WithArgs(pgxmock.AnyArg(), "c1", "p1", 2, "12.5", t0).
		WillReturnRows(pgxmock.NewRows([]string{"id", "cart_id", "product_id", "quantity", "price", "created_at", "updated_at"}).
			AddRow("i1", "c1", "p1", 5, "12.50", t0, t0))

	it, err := New(mock).AddItem(context.Background(), "c1", "p1", 2, decimal.RequireFromString("12.50"), t0)
	require.NoError(t, err)
	assert.Equal(t, 5, it.Quantity)
	assert.True(t, it.Price.Equal(decimal.RequireFromString("12.5")), "price %s", it.Price)
	assert.Equal(t, "62.5", it.Subtotal().String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReminderTransitions_AreConditional(t *testing.T) {
	mock := newMock(t)
	s := New(mock)
	ctx := context.Background()

	mock.ExpectExec(`SET status = 'sent'`).
		WithArgs("r1", t0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`SET status = 'cancelled'`).
		WithArgs("r1", t0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(`SET failed_at = \$2`).
		WithArgs("r2", t0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	sent, err := s.MarkReminderSent(ctx, "r1", t0)
	require.NoError(t, err)
	assert.True(t, sent)

	cancelled, err := s.CancelReminder(ctx, "r1", t0)
	require.NoError(t, err)
	assert.False(t, cancelled, "a sent reminder cannot be cancelled")

	failed, err := s.MarkReminderFailed(ctx, "r2", t0)
	require.NoError(t, err)
	assert.True(t, failed)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimReminder_OnlyWhenLeaseExpired(t *testing.T) {
	mock := newMock(t)
	s := New(mock)
	ctx := context.Background()
	until := t0.Add(5 * time.Minute)

	mock.ExpectExec(`SET claimed_until = \$3\s+WHERE id = \$1 AND status = 'pending' AND \(claimed_until IS NULL OR claimed_until <= \$2\)`).
		WithArgs("r1", t0, until).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(`SET claimed_until = NULL\s+WHERE id = \$1 AND claimed_until = \$2`).
		WithArgs("r1", until).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	claimed, err := s.ClaimReminder(ctx, "r1", t0, until)
	require.NoError(t, err)
	assert.False(t, claimed)

	released, err := s.ReleaseReminder(ctx, "r1", until)
	require.NoError(t, err)
	assert.True(t, released)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelPendingReminders_ReturnsCount(t *testing.T) {
	mock := newMock(t)

	mock.ExpectExec(`WHERE cart_id = \$1 AND status = 'pending'`).
		WithArgs("c1", t0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := New(mock).CancelPendingReminders(context.Background(), "c1", t0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatistics(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(`SELECT\s+\(SELECT COUNT\(\*\) FROM carts`).
		WithArgs(t0).
		WillReturnRows(pgxmock.NewRows([]string{"a", "b", "c", "d", "e"}).
			AddRow(int64(4), int64(1), int64(9), int64(2), int64(1)))

	st, err := New(mock).Statistics(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, cart.Statistics{
		ActiveCarts:        4,
		FinalizedToday:     1,
		PendingReminders:   9,
		SentRemindersToday: 2,
		FailedReminders:    1,
	}, st)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProduct_NotFound(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(`FROM products WHERE id = \$1`).
		WithArgs("nope").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "price", "created_at", "updated_at"}))

	_, err := New(mock).Price(context.Background(), "nope")
	require.ErrorIs(t, err, cart.ErrProductNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
