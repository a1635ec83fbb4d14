package postgres

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/cart"
)

const reminderColumns = `id, cart_id, reminder_number, scheduled_at, sent_at, failed_at, status, created_at, updated_at`

func scanReminder(row rowScanner) (cart.Reminder, error) {
	var (
		r      cart.Reminder
		status string
	)
	if err := row.Scan(&r.ID, &r.CartID, &r.Ordinal, &r.ScheduledAt, &r.SentAt, &r.FailedAt, &status, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return cart.Reminder{}, err
	}
	r.Status = cart.ReminderStatus(status)
	r.SentAt = utcPtr(r.SentAt)
	r.FailedAt = utcPtr(r.FailedAt)
	r.ScheduledAt = r.ScheduledAt.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

// UpsertReminder creates the reminder for (cartID, ordinal) or re-arms the
// existing one as pending at the new time.
func (q queries) UpsertReminder(ctx context.Context, cartID string, ordinal int, scheduledAt, now time.Time) (cart.Reminder, error) {
	r, err := scanReminder(q.q.QueryRow(ctx, `
INSERT INTO cart_reminders (id, cart_id, reminder_number, scheduled_at, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, 'pending', $5, $5)
ON CONFLICT (cart_id, reminder_number) DO UPDATE
SET scheduled_at = EXCLUDED.scheduled_at,
    status = 'pending',
    sent_at = NULL,
    failed_at = NULL,
    claimed_until = NULL,
    updated_at = EXCLUDED.updated_at
RETURNING `+reminderColumns,
		uuid.NewString(), cartID, ordinal, scheduledAt, now))
	if err != nil {
		return cart.Reminder{}, cart.WrapStoreError("upsert reminder", err)
	}
	return r, nil
}

func (q queries) GetReminder(ctx context.Context, reminderID string) (cart.Reminder, error) {
	r, err := scanReminder(q.q.QueryRow(ctx,
		`SELECT `+reminderColumns+` FROM cart_reminders WHERE id = $1`, reminderID))
	if isNoRows(err) {
		return cart.Reminder{}, cart.ErrReminderNotFound
	}
	if err != nil {
		return cart.Reminder{}, cart.WrapStoreError("get reminder", err)
	}
	return r, nil
}

func (q queries) ListReminders(ctx context.Context, cartID string) ([]cart.Reminder, error) {
	return q.listReminders(ctx, "list reminders",
		`SELECT `+reminderColumns+` FROM cart_reminders WHERE cart_id = $1 ORDER BY reminder_number`, cartID)
}

func (q queries) ListDueReminders(ctx context.Context, now time.Time, limit int) ([]cart.Reminder, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}
	return q.listReminders(ctx, "list due reminders", `
SELECT `+reminderColumns+` FROM cart_reminders
WHERE status = 'pending' AND failed_at IS NULL AND scheduled_at <= $1
ORDER BY scheduled_at, id
LIMIT $2`, now, limit)
}

func (q queries) listReminders(ctx context.Context, op, query string, args ...any) ([]cart.Reminder, error) {
	rows, err := q.q.Query(ctx, query, args...)
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
	tag, err := q.q.Exec(ctx, `
UPDATE cart_reminders SET status = 'cancelled', updated_at = $2
WHERE cart_id = $1 AND status = 'pending'`, cartID, now)
	if err != nil {
		return 0, cart.WrapStoreError("cancel pending reminders", err)
	}
	return tag.RowsAffected(), nil
}

func (q queries) CancelReminder(ctx context.Context, reminderID string, now time.Time) (bool, error) {
	return q.transition(ctx, "cancel reminder", `
UPDATE cart_reminders SET status = 'cancelled', updated_at = $2
WHERE id = $1 AND status = 'pending'`, reminderID, now)
}

func (q queries) MarkReminderSent(ctx context.Context, reminderID string, at time.Time) (bool, error) {
	return q.transition(ctx, "mark reminder sent", `
UPDATE cart_reminders SET status = 'sent', sent_at = $2, updated_at = $2
WHERE id = $1 AND status = 'pending'`, reminderID, at)
}

func (q queries) MarkReminderFailed(ctx context.Context, reminderID string, at time.Time) (bool, error) {
	return q.transition(ctx, "mark reminder failed", `
UPDATE cart_reminders SET failed_at = $2, updated_at = $2
WHERE id = $1 AND status = 'pending'`, reminderID, at)
}

func (q queries) ClaimReminder(ctx context.Context, reminderID string, now, until time.Time) (bool, error) {
	return q.transition(ctx, "claim reminder", `
UPDATE cart_reminders SET claimed_until = $3
WHERE id = $1 AND status = 'pending' AND (claimed_until IS NULL OR claimed_until <= $2)`, reminderID, now, until)
}

func (q queries) ReleaseReminder(ctx context.Context, reminderID string, until time.Time) (bool, error) {
	return q.transition(ctx, "release reminder", `
UPDATE cart_reminders SET claimed_until = NULL
WHERE id = $1 AND claimed_until = $2`, reminderID, until)
}

func (q queries) transition(ctx context.Context, op, query string, args ...any) (bool, error) {
	tag, err := q.q.Exec(ctx, query, args...)
	if err != nil {
		return false, cart.WrapStoreError(op, err)
	}
	return tag.RowsAffected() == 1, nil
}
