package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/cart"
)

const reminderColumns = `id, cart_id, reminder_number, scheduled_at, sent_at, failed_at, status, created_at, updated_at`

func scanReminder(row rowScanner) (cart.Reminder, error) {
	var (
		r            cart.Reminder
		sent, failed sql.NullTime
		status       string
	)
	if err := row.Scan(&r.ID, &r.CartID, &r.Ordinal, &r.ScheduledAt, &sent, &failed, &status, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return cart.Reminder{}, err
	}
	r.Status = cart.ReminderStatus(status)
	r.SentAt = nullTime(sent)
	r.FailedAt = nullTime(failed)
	r.ScheduledAt = r.ScheduledAt.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

func (q queries) UpsertReminder(ctx context.Context, cartID string, ordinal int, scheduledAt, now time.Time) (cart.Reminder, error) {
	_, err := q.q.ExecContext(ctx, `
INSERT INTO cart_reminders (id, cart_id, reminder_number, scheduled_at, status, created_at, updated_at)
VALUES (?, ?, ?, ?, 'pending', ?, ?)
ON CONFLICT (cart_id, reminder_number) DO UPDATE
SET scheduled_at = excluded.scheduled_at,
    status = 'pending',
    sent_at = NULL,
    failed_at = NULL,
    claimed_until = NULL,
    updated_at = excluded.updated_at`,
		uuid.NewString(), cartID, ordinal, scheduledAt, now, now)
	if err != nil {
		return cart.Reminder{}, cart.WrapStoreError("upsert reminder", err)
	}

	r, err := scanReminder(q.q.QueryRowContext(ctx,
		`SELECT `+reminderColumns+` FROM cart_reminders WHERE cart_id = ? AND reminder_number = ?`, cartID, ordinal))
	if err != nil {
		return cart.Reminder{}, cart.WrapStoreError("reload reminder", err)
	}
	return r, nil
}

func (q queries) GetReminder(ctx context.Context, reminderID string) (cart.Reminder, error) {
	r, err := scanReminder(q.q.QueryRowContext(ctx,
		`SELECT `+reminderColumns+` FROM cart_reminders WHERE id = ?`, reminderID))
	if errors.Is(err, sql.ErrNoRows) {
		return cart.Reminder{}, cart.ErrReminderNotFound
	}
	if err != nil {
		return cart.Reminder{}, cart.WrapStoreError("get reminder", err)
	}
	return r, nil
}

func (q queries) ListReminders(ctx context.Context, cartID string) ([]cart.Reminder, error) {
	return q.listReminders(ctx, "list reminders",
		`SELECT `+reminderColumns+` FROM cart_reminders WHERE cart_id = ? ORDER BY reminder_number`, cartID)
}

func (q queries) ListDueReminders(ctx context.Context, now time.Time, limit int) ([]cart.Reminder, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}
	return q.listReminders(ctx, "list due reminders", `
SELECT `+reminderColumns+` FROM cart_reminders
WHERE status = 'pending' AND failed_at IS NULL AND scheduled_at <= ?
ORDER BY scheduled_at, id
LIMIT ?`, now, limit)
}

func (q queries) listReminders(ctx context.Context, op, query string, args ...any) ([]cart.Reminder, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, cart.WrapStoreError(op, err)
	}
	defer rows.Close()

	out := []cart.Reminder{}
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, cart.WrapStoreError(op, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, cart.WrapStoreError(op, err)
	}
	return out, nil
}

func (q queries) CancelPendingReminders(ctx context.Context, cartID string, now time.Time) (int64, error) {
	res, err := q.q.ExecContext(ctx, `
UPDATE cart_reminders SET status = 'cancelled', updated_at = ?
WHERE cart_id = ? AND status = 'pending'`, now, cartID)
	if err != nil {
		return 0, cart.WrapStoreError("cancel pending reminders", err)
	}
	n, err := affected(res)
	return n, cart.WrapStoreError("cancel pending reminders", err)
}

func (q queries) CancelReminder(ctx context.Context, reminderID string, now time.Time) (bool, error) {
	return q.transition(ctx, "cancel reminder", `
UPDATE cart_reminders SET status = 'cancelled', updated_at = ?
WHERE id = ? AND status = 'pending'`, now, reminderID)
}

func (q queries) MarkReminderSent(ctx context.Context, reminderID string, at time.Time) (bool, error) {
	return q.transition(ctx, "mark reminder sent", `
UPDATE cart_reminders SET status = 'sent', sent_at = ?, updated_at = ?
WHERE id = ? AND status = 'pending'`, at, at, reminderID)
}

func (q queries) MarkReminderFailed(ctx context.Context, reminderID string, at time.Time) (bool, error) {
	return q.transition(ctx, "mark reminder failed", `
UPDATE cart_reminders SET failed_at = ?, updated_at = ?
WHERE id = ? AND status = 'pending'`, at, at, reminderID)
}

func (q queries) ClaimReminder(ctx context.Context, reminderID string, now, until time.Time) (bool, error) {
	return q.transition(ctx, "claim reminder", `
UPDATE cart_reminders SET claimed_until = ?
WHERE id = ? AND status = 'pending' AND (claimed_until IS NULL OR claimed_until <= ?)`, until, reminderID, now)
}

func (q queries) ReleaseReminder(ctx context.Context, reminderID string, until time.Time) (bool, error) {
	return q.transition(ctx, "release reminder", `
UPDATE cart_reminders SET claimed_until = NULL
WHERE id = ? AND claimed_until = ?`, reminderID, until)
}

func (q queries) transition(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := q.q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, cart.WrapStoreError(op, err)
	}
	n, err := affected(res)
	if err != nil {
		return false, cart.WrapStoreError(op, err)
	}
	return n == 1, nil
}
