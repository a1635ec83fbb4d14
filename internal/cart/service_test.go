package cart_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/clock"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/reminder"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/store/sqlite"
)

var t0 = time.Date(2025, time.May, 5, 10, 0, 0, 0, time.UTC)

type priceList struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
}

func (p *priceList) Price(_ context.Context, productID string) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.prices[productID]
	if !ok {
		return decimal.Zero, cart.ErrProductNotFound
	}
	return price, nil
}

func (p *priceList) set(productID, price string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[productID] = decimal.RequireFromString(price)
}

type nopNotifier struct {
	mu   sync.Mutex
	sent int
}

func (n *nopNotifier) Send(context.Context, reminder.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent++
	return nil
}

type nopDispatcher struct{}

func (nopDispatcher) Schedule(context.Context, string, time.Time) error { return nil }

type recordingEvents struct {
	mu        sync.Mutex
	opened    []string
	finalized map[string]int64
}

func (r *recordingEvents) PublishCartOpened(_ context.Context, c cart.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = append(r.opened, c.ID)
	return nil
}

func (r *recordingEvents) PublishCartFinalized(_ context.Context, c cart.Cart, cancelled int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finalized[c.ID] = cancelled
	return nil
}

type harness struct {
	svc      *cart.Service
	store    *sqlite.Store
	engine   *reminder.Engine
	catalog  *priceList
	clock    *clock.Fake
	notifier *nopNotifier
	events   *recordingEvents
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	conn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "cart.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, db.RunMigrations(db.SQLite, conn, slog.New(slog.NewTextHandler(io.Discard, nil))))

	h := &harness{
		store:    sqlite.New(conn),
		catalog:  &priceList{prices: map[string]decimal.Decimal{}},
		clock:    clock.NewFake(t0),
		notifier: &nopNotifier{},
		events:   &recordingEvents{finalized: map[string]int64{}},
	}
	h.catalog.set("P1", "10.00")
	h.catalog.set("P2", "4.50")

	h.engine = reminder.NewEngine(reminder.DefaultConfig(), h.store, h.notifier, nopDispatcher{}, nil,
		reminder.EngineOptions{Clock: h.clock})
	h.svc = cart.NewService(h.store, h.catalog, h.engine, cart.ServiceOptions{Clock: h.clock, Events: h.events})
	return h
}

func (h *harness) reminders(t *testing.T, cartID string) []cart.Reminder {
	t.Helper()
	rs, err := h.store.ListReminders(context.Background(), cartID)
	require.NoError(t, err)
	return rs
}

func TestAddProduct_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := map[string]struct {
		email, product string
		qty            int
		want           error
	}{
		"blank email":   {email: "  ", product: "P1", qty: 1, want: cart.ErrInvalidCustomer},
		"blank product": {email: "a@x.com", product: "", qty: 1, want: cart.ErrInvalidProduct},
		"zero quantity": {email: "a@x.com", product: "P1", qty: 0, want: cart.ErrInvalidQuantity},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := h.svc.AddProduct(ctx, tt.email, tt.product, tt.qty)
			require.ErrorIs(t, err, tt.want)
			require.ErrorIs(t, err, cart.ErrValidation)
		})
	}

	_, err := h.svc.GetActiveCart(ctx, "a@x.com")
	require.ErrorIs(t, err, cart.ErrCartNotFound)
}

func TestAddProduct_UnknownProductCreatesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.AddProduct(ctx, "a@x.com", "missing", 1)
	require.ErrorIs(t, err, cart.ErrProductNotFound)
	require.ErrorIs(t, err, cart.ErrNotFound)

	_, err = h.svc.GetActiveCart(ctx, "a@x.com")
	require.ErrorIs(t, err, cart.ErrCartNotFound)
	assert.Empty(t, h.events.opened)
}

func TestAddProduct_ConcurrentSingleActiveCart(t *testing.T) {
	h := newHarness(t)

	const n = 20
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := h.svc.AddProduct(ctx, "race@x.com", "P1", 1)
			return err
		})
	}
	require.NoError(t, g.Wait())

	c, err := h.svc.GetActiveCart(context.Background(), "race@x.com")
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, n, c.Items[0].Quantity)
	assert.Len(t, h.reminders(t, c.ID), 3)
	assert.Equal(t, []string{c.ID}, h.events.opened)

	st, err := h.store.Statistics(context.Background(), t0.Truncate(24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.ActiveCarts)
}

func TestAddProduct_KeepsFirstCapturedPrice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.AddProduct(ctx, "a@x.com", "P2", 1)
	require.NoError(t, err)

	h.catalog.set("P2", "9.99")
	h.clock.Advance(time.Minute)
	it, err := h.svc.AddProduct(ctx, "a@x.com", "P2", 4)
	require.NoError(t, err)

	assert.Equal(t, 5, it.Quantity)
	assert.Equal(t, "4.50", it.Price.StringFixed(2))
}

func TestFinalizeCart_CancelsOnlyPendingReminders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.AddProduct(ctx, "a@x.com", "P1", 1)
	require.NoError(t, err)
	c, err := h.svc.GetActiveCart(ctx, "a@x.com")
	require.NoError(t, err)

	// The first reminder already went out, so two stay pending.
	first := h.reminders(t, c.ID)[0]
	h.clock.Advance(time.Hour)
	require.NoError(t, h.engine.OnReminderDue(ctx, first.ID))

	finalizedAt := h.clock.Advance(time.Minute)
	got, err := h.svc.FinalizeCart(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, cart.StatusFinalized, got.Status)
	require.NotNil(t, got.FinalizedAt)
	assert.True(t, got.FinalizedAt.Equal(finalizedAt))
	assert.Len(t, got.Items, 1)
	assert.EqualValues(t, 2, h.events.finalized[c.ID])

	statuses := map[cart.ReminderStatus]int{}
	for _, r := range h.reminders(t, c.ID) {
		statuses[r.Status]++
	}
	assert.Equal(t, map[cart.ReminderStatus]int{cart.ReminderSent: 1, cart.ReminderCancelled: 2}, statuses)
}

func TestFinalizeCart_Twice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.AddProduct(ctx, "a@x.com", "P1", 1)
	require.NoError(t, err)
	c, err := h.svc.GetActiveCart(ctx, "a@x.com")
	require.NoError(t, err)

	first, err := h.svc.FinalizeCart(ctx, c.ID)
	require.NoError(t, err)

	h.clock.Advance(time.Hour)
	_, err = h.svc.FinalizeCart(ctx, c.ID)
	require.ErrorIs(t, err, cart.ErrAlreadyFinalized)
	require.ErrorIs(t, err, cart.ErrConflict)

	stored, err := h.svc.GetCart(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.FinalizedAt)
	assert.True(t, stored.FinalizedAt.Equal(*first.FinalizedAt))
}

func TestFinalizeCart_NotFound(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.FinalizeCart(context.Background(), "nope")
	require.ErrorIs(t, err, cart.ErrCartNotFound)
}

func TestCartLifecycleScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	it, err := h.svc.AddProduct(ctx, "a@x.com", "P1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, it.Quantity)
	assert.Equal(t, "10.00", it.Price.StringFixed(2))

	c, err := h.svc.GetActiveCart(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, cart.StatusActive, c.Status)

	rs := h.reminders(t, c.ID)
	require.Len(t, rs, 3)
	for i, offset := range []time.Duration{time.Hour, 6 * time.Hour, 24 * time.Hour} {
		assert.Equal(t, cart.ReminderPending, rs[i].Status)
		assert.True(t, rs[i].ScheduledAt.Equal(c.CreatedAt.Add(offset)))
	}

	h.clock.Advance(10 * time.Minute)
	it, err = h.svc.AddProduct(ctx, "a@x.com", "P1", 3)
	require.NoError(t, err)
	assert.Equal(t, 5, it.Quantity)
	assert.Equal(t, "10.00", it.Price.StringFixed(2))
	assert.Len(t, h.reminders(t, c.ID), 3)

	finalized, err := h.svc.FinalizeCart(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, cart.StatusFinalized, finalized.Status)
	assert.NotNil(t, finalized.FinalizedAt)
	for _, r := range h.reminders(t, c.ID) {
		assert.Equal(t, cart.ReminderCancelled, r.Status)
	}

	// Late timer for the second reminder.
	h.clock.Advance(6 * time.Hour)
	require.NoError(t, h.engine.OnReminderDue(ctx, rs[1].ID))
	assert.Zero(t, h.notifier.sent)
	r, err := h.store.GetReminder(ctx, rs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, cart.ReminderCancelled, r.Status)
}

func TestAddProduct_StoreFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	failing := cart.NewService(failingStore{Store: h.store}, h.catalog, h.engine, cart.ServiceOptions{Clock: h.clock})
	_, err := failing.AddProduct(ctx, "a@x.com", "P1", 1)
	require.Error(t, err)

	_, err = h.svc.GetActiveCart(ctx, "a@x.com")
	require.ErrorIs(t, err, cart.ErrCartNotFound)
}

// failingStore lets the cart and item writes through and fails the reminder
// schedule, inside the same transaction.
type failingStore struct {
	*sqlite.Store
}

func (f failingStore) WithinTx(ctx context.Context, fn func(q cart.Queries) error) error {
	return f.Store.WithinTx(ctx, func(q cart.Queries) error {
		return fn(failingQueries{Queries: q})
	})
}

type failingQueries struct {
	cart.Queries
}

func (failingQueries) UpsertReminder(context.Context, string, int, time.Time, time.Time) (cart.Reminder, error) {
	return cart.Reminder{}, &cart.StoreError{Op: "upsert reminder", Err: errors.New("disk I/O error")}
}
