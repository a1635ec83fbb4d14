package cart

import (
	"time"

	"github.com/shopspring/decimal"
)

type Cart struct {
	ID            string     `json:"id"`
	CustomerEmail string     `json:"customer_email"`
	Status        Status     `json:"status"`
	FinalizedAt   *time.Time `json:"finalized_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	Items         []Item     `json:"items"`
}

// Total sums price x quantity over the loaded items.
func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.Subtotal())
	}
	return total
}

func (c Cart) IsActive() bool {
	return c.Status == StatusActive
}

// Item is one product line. Price is the unit price captured when the line
// was first inserted.
type Item struct {
	ID        string          `json:"id"`
	CartID    string          `json:"cart_id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (i Item) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Reminder is one scheduled follow-up slot of a cart, keyed by (CartID, Ordinal).
// FailedAt marks a reminder whose delivery retries were exhausted; it stays pending.
type Reminder struct {
	ID          string         `json:"id"`
	CartID      string         `json:"cart_id"`
	Ordinal     int            `json:"reminder_number"`
	ScheduledAt time.Time      `json:"scheduled_at"`
	SentAt      *time.Time     `json:"sent_at,omitempty"`
	FailedAt    *time.Time     `json:"failed_at,omitempty"`
	Status      ReminderStatus `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (r Reminder) IsPending() bool {
	return r.Status == ReminderPending
}

// Statistics are the aggregate counters reported by monitoring.
type Statistics struct {
	ActiveCarts        int64 `json:"active_carts"`
	FinalizedToday     int64 `json:"finalized_today"`
	PendingReminders   int64 `json:"pending_reminders"`
	SentRemindersToday int64 `json:"sent_reminders_today"`
	FailedReminders    int64 `json:"failed_reminders"`
}
