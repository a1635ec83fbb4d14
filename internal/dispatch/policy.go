// Package dispatch fires reminder tasks no earlier than their scheduled time,
// at least once, retrying failed deliveries with a bounded backoff.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Handler receives fired tasks. OnReminderDue may be invoked more than once
// for the same id and must be idempotent.
type Handler interface {
	OnReminderDue(ctx context.Context, reminderID string) error
	OnDeliveryExhausted(ctx context.Context, reminderID string, cause error) error
}

// RetryPolicy bounds redelivery of a task whose handler failed.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     []time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     []time.Duration{60 * time.Second, 300 * time.Second, 900 * time.Second},
	}
}

func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.MaxAttempts > 1 && len(p.Backoff) == 0 {
		return errors.New("retry backoff required when more than one attempt is allowed")
	}
	for i, d := range p.Backoff {
		if d <= 0 {
			return fmt.Errorf("retry backoff %d must be positive, got %s", i+1, d)
		}
	}
	return nil
}

// Exhausted reports whether no attempt is left after the given (1-based)
// attempt failed.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}

// Delay is the wait before the attempt following a failed attempt. The last
// backoff entry repeats when attempts outnumber entries.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	i := attempt - 1
	if i < 0 {
		i = 0
	}
	if i >= len(p.Backoff) {
		i = len(p.Backoff) - 1
	}
	return p.Backoff[i]
}
