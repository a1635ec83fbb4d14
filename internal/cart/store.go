package cart

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Queries is the set of persistence operations the engines run, either
// directly against the store or inside a transaction.
type Queries interface {
	// GetOrCreateActiveCart returns the customer's active cart, creating it if
	// none exists. created reports whether this call inserted it. Concurrent
	// callers for the same customer converge on one cart.
	GetOrCreateActiveCart(ctx context.Context, customerEmail string, now time.Time) (c Cart, created bool, err error)
	GetCart(ctx context.Context, cartID string) (Cart, error)
	// LockCart reads the cart and holds a row lock until the transaction ends.
	LockCart(ctx context.Context, cartID string) (Cart, error)
	GetActiveCart(ctx context.Context, customerEmail string) (Cart, error)
	FinalizeCart(ctx context.Context, cartID string, at time.Time) error

	ListItems(ctx context.Context, cartID string) ([]Item, error)
	// AddItem inserts the line or increments its quantity. The price of an
	// existing line is left as is.
	AddItem(ctx context.Context, cartID, productID string, quantity int, price decimal.Decimal, now time.Time) (Item, error)

	// UpsertReminder creates the (cart, ordinal) slot or re-arms it as pending.
	UpsertReminder(ctx context.Context, cartID string, ordinal int, scheduledAt, now time.Time) (Reminder, error)
	GetReminder(ctx context.Context, reminderID string) (Reminder, error)
	ListReminders(ctx context.Context, cartID string) ([]Reminder, error)
	ListDueReminders(ctx context.Context, now time.Time, limit int) ([]Reminder, error)
	CancelPendingReminders(ctx context.Context, cartID string, now time.Time) (int64, error)
	// The conditional transitions below only touch pending rows and report
	// whether a row changed.
	CancelReminder(ctx context.Context, reminderID string, now time.Time) (bool, error)
	MarkReminderSent(ctx context.Context, reminderID string, at time.Time) (bool, error)
	MarkReminderFailed(ctx context.Context, reminderID string, at time.Time) (bool, error)
	// ClaimReminder leases a pending reminder to one delivery until the given
	// time. It reports false while another lease is unexpired.
	ClaimReminder(ctx context.Context, reminderID string, now, until time.Time) (bool, error)
	// ReleaseReminder drops the lease taken with the same until value.
	ReleaseReminder(ctx context.Context, reminderID string, until time.Time) (bool, error)

	Statistics(ctx context.Context, dayStart time.Time) (Statistics, error)
}

// Store is the durable, transactional persistence for carts, items and reminders.
type Store interface {
	Queries
	// WithinTx runs fn in one transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithinTx(ctx context.Context, fn func(q Queries) error) error
}

// Catalog resolves the current unit price of a product.
type Catalog interface {
	Price(ctx context.Context, productID string) (decimal.Decimal, error)
}
