package reminder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/clock"
)

const (
	defaultSweepBatch = 500
	defaultClaimTTL   = 5 * time.Minute
)

// Notification is what the engine hands to a Notifier. Rendering and
// transport belong to the notifier.
type Notification struct {
	ReminderID      string
	CartID          string
	CustomerEmail   string
	Ordinal         int
	Tone            Tone
	CompletionToken string
	Items           []cart.Item
	Total           decimal.Decimal
	ScheduledAt     time.Time
}

type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// Dispatcher fires a task no earlier than notBefore, at least once.
type Dispatcher interface {
	Schedule(ctx context.Context, taskID string, notBefore time.Time) error
}

type TokenSigner interface {
	Sign(cartID string) string
}

// NotifyError reports a failed delivery. The reminder stays pending.
type NotifyError struct {
	ReminderID string
	Ordinal    int
	Err        error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notify reminder %s (ordinal %d): %v", e.ReminderID, e.Ordinal, e.Err)
}

func (e *NotifyError) Unwrap() error { return e.Err }

type EngineOptions struct {
	Clock  clock.Clock
	Logger *slog.Logger
	// SweepBatch caps how many due reminders one sweep reads. Zero means 500.
	SweepBatch int
	// ClaimTTL is how long one delivery holds a reminder while sending. It
	// must stay below the sweeper grace. Zero means five minutes.
	ClaimTTL time.Duration
}

// Engine schedules, cancels and fires cart reminders.
type Engine struct {
	cfg        Config
	store      cart.Store
	notifier   Notifier
	dispatcher Dispatcher
	tokens     TokenSigner
	clock      clock.Clock
	logger     *slog.Logger
	sweepBatch int
	claimTTL   time.Duration
}

func NewEngine(cfg Config, store cart.Store, notifier Notifier, dispatcher Dispatcher, tokens TokenSigner, opts EngineOptions) *Engine {
	e := &Engine{
		cfg:        cfg,
		store:      store,
		notifier:   notifier,
		dispatcher: dispatcher,
		tokens:     tokens,
		clock:      opts.Clock,
		logger:     opts.Logger,
		sweepBatch: opts.SweepBatch,
		claimTTL:   opts.ClaimTTL,
	}
	if e.clock == nil {
		e.clock = clock.Real{}
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if e.sweepBatch <= 0 {
		e.sweepBatch = defaultSweepBatch
	}
	if e.claimTTL <= 0 {
		e.claimTTL = defaultClaimTTL
	}
	return e
}

func (e *Engine) Enabled() bool { return e.cfg.Enabled }

// EstablishSchedule upserts one pending reminder per configured slot, anchored
// at the current time. A slot that already exists is re-armed.
func (e *Engine) EstablishSchedule(ctx context.Context, q cart.Queries, c cart.Cart) ([]cart.Reminder, error) {
	if !e.cfg.Enabled {
		return nil, nil
	}

	now := e.clock.Now()
	out := make([]cart.Reminder, 0, len(e.cfg.Slots))
	for _, slot := range e.cfg.Slots {
		r, err := q.UpsertReminder(ctx, c.ID, slot.Ordinal, now.Add(slot.Offset), now)
		if err != nil {
			return nil, fmt.Errorf("upsert reminder %d: %w", slot.Ordinal, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Arm programs a dispatcher timer per reminder. Only the reminder id travels
// with the timer.
func (e *Engine) Arm(ctx context.Context, reminders []cart.Reminder) error {
	var errs []error
	for _, r := range reminders {
		if err := e.dispatcher.Schedule(ctx, r.ID, r.ScheduledAt); err != nil {
			errs = append(errs, fmt.Errorf("schedule reminder %s: %w", r.ID, err))
		}
	}
	return errors.Join(errs...)
}

// CancelPending cancels every pending reminder of the cart. In-flight timers
// are not revoked; OnReminderDue fences them.
func (e *Engine) CancelPending(ctx context.Context, q cart.Queries, cartID string) (int64, error) {
	return q.CancelPendingReminders(ctx, cartID, e.clock.Now())
}

// OnReminderDue is the fire handler. It re-reads the reminder and its cart
// and only sends when the reminder is still pending and the cart still
// active. Safe to call more than once for the same id: the send runs under a
// lease on the reminder, and a delivery that finds the lease held drops out.
func (e *Engine) OnReminderDue(ctx context.Context, reminderID string) error {
	r, err := e.store.GetReminder(ctx, reminderID)
	if errors.Is(err, cart.ErrReminderNotFound) {
		e.logger.Warn("due reminder no longer exists", "reminder_id", reminderID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load reminder %s: %w", reminderID, err)
	}
	if !r.IsPending() {
		e.logger.Debug("reminder already resolved", "reminder_id", r.ID, "status", r.Status)
		return nil
	}

	c, err := e.store.GetCart(ctx, r.CartID)
	if errors.Is(err, cart.ErrCartNotFound) {
		e.logger.Warn("due reminder has no cart", "reminder_id", r.ID, "cart_id", r.CartID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load cart %s: %w", r.CartID, err)
	}

	if !c.IsActive() {
		if _, err := e.store.CancelReminder(ctx, r.ID, e.clock.Now()); err != nil {
			return fmt.Errorf("cancel reminder %s: %w", r.ID, err)
		}
		e.logger.Info("reminder cancelled, cart no longer active",
			"reminder_id", r.ID,
			"cart_id", c.ID,
			"cart_status", c.Status,
		)
		return nil
	}

	c.Items, err = e.store.ListItems(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("load items of cart %s: %w", c.ID, err)
	}

	now := e.clock.Now()
	until := now.Add(e.claimTTL)
	claimed, err := e.store.ClaimReminder(ctx, r.ID, now, until)
	if err != nil {
		return fmt.Errorf("claim reminder %s: %w", r.ID, err)
	}
	if !claimed {
		e.logger.Info("reminder claimed by another delivery", "reminder_id", r.ID, "cart_id", c.ID)
		return nil
	}

	if err := e.notifier.Send(ctx, e.notification(r, c)); err != nil {
		if _, rerr := e.store.ReleaseReminder(ctx, r.ID, until); rerr != nil {
			e.logger.Warn("release reminder claim failed", "reminder_id", r.ID, "error", rerr)
		}
		return &NotifyError{ReminderID: r.ID, Ordinal: r.Ordinal, Err: err}
	}

	// A failure here means the notification went out but is not recorded;
	// a redelivery after the lease expires may send it again.
	marked, err := e.store.MarkReminderSent(ctx, r.ID, e.clock.Now())
	if err != nil {
		return fmt.Errorf("mark reminder %s sent: %w", r.ID, err)
	}
	if !marked {
		e.logger.Info("reminder resolved while sending", "reminder_id", r.ID, "cart_id", c.ID)
		return nil
	}

	e.logger.Info("reminder sent",
		"reminder_id", r.ID,
		"cart_id", c.ID,
		"customer_email", c.CustomerEmail,
		"ordinal", r.Ordinal,
	)
	return nil
}

// OnDeliveryExhausted escalates a reminder whose retries ran out. The
// reminder stays pending and is flagged with failed_at.
func (e *Engine) OnDeliveryExhausted(ctx context.Context, reminderID string, cause error) error {
	attrs := []any{"reminder_id", reminderID, "error", cause}
	if r, err := e.store.GetReminder(ctx, reminderID); err == nil {
		attrs = append(attrs, "cart_id", r.CartID, "ordinal", r.Ordinal, "status", r.Status)
	}
	e.logger.Error("reminder delivery failed after all retries", attrs...)

	if _, err := e.store.MarkReminderFailed(ctx, reminderID, e.clock.Now()); err != nil {
		return fmt.Errorf("mark reminder %s failed: %w", reminderID, err)
	}
	return nil
}

// SweepResult is the outcome of one ProcessDueReminders pass.
type SweepResult struct {
	Scanned   int
	Cancelled int
	Due       []cart.Reminder
}

// ProcessDueReminders scans pending reminders whose time has come, cancels
// the ones whose cart is no longer active and returns the rest as due.
func (e *Engine) ProcessDueReminders(ctx context.Context) (SweepResult, error) {
	now := e.clock.Now()
	due, err := e.store.ListDueReminders(ctx, now, e.sweepBatch)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list due reminders: %w", err)
	}

	res := SweepResult{Scanned: len(due)}
	status := make(map[string]cart.Status)
	for _, r := range due {
		st, ok := status[r.CartID]
		if !ok {
			c, err := e.store.GetCart(ctx, r.CartID)
			if errors.Is(err, cart.ErrCartNotFound) {
				continue
			}
			if err != nil {
				return res, fmt.Errorf("load cart %s: %w", r.CartID, err)
			}
			st = c.Status
			status[r.CartID] = st
		}

		if st != cart.StatusActive {
			changed, err := e.store.CancelReminder(ctx, r.ID, now)
			if err != nil {
				return res, fmt.Errorf("cancel reminder %s: %w", r.ID, err)
			}
			if changed {
				res.Cancelled++
			}
			continue
		}
		res.Due = append(res.Due, r)
	}
	return res, nil
}

func (e *Engine) notification(r cart.Reminder, c cart.Cart) Notification {
	n := Notification{
		ReminderID:    r.ID,
		CartID:        c.ID,
		CustomerEmail: c.CustomerEmail,
		Ordinal:       r.Ordinal,
		Tone:          ToneFor(r.Ordinal),
		Items:         c.Items,
		Total:         c.Total(),
		ScheduledAt:   r.ScheduledAt,
	}
	if e.tokens != nil {
		n.CompletionToken = e.tokens.Sign(c.ID)
	}
	return n
}
