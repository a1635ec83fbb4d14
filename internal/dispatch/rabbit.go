package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/clock"
)

const (
	serviceName    = "cart-service-go"
	WorkQueue      = serviceName + ".reminder.due"
	FailedQueue    = serviceName + ".reminder.failed"
	delayQueueBase = serviceName + ".reminder.delay."

	// Idle delay queues are dropped this long after their TTL would have
	// emptied them.
	delayQueueLinger = time.Hour

	headerLastError = "x-last-error"
)

// DelayQueueName names the queue that holds messages for delay before
// dead-lettering them into the work queue.
func DelayQueueName(delay time.Duration) string {
	return delayQueueBase + strconv.FormatInt(delaySeconds(delay), 10) + "s"
}

// delaySeconds rounds up so a task never fires early.
func delaySeconds(delay time.Duration) int64 {
	return int64(math.Ceil(delay.Seconds()))
}

type task struct {
	ReminderID string `json:"reminder_id"`
	Attempt    int    `json:"attempt"`
}

// channel is the subset of *amqp.Channel the dispatcher needs.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type RabbitOptions struct {
	Clock    clock.Clock
	Logger   *slog.Logger
	Prefetch int
}

// Rabbit implements delayed delivery with per-delay TTL queues that
// dead-letter into a shared work queue.
type Rabbit struct {
	conn     *amqp.Connection
	policy   RetryPolicy
	clock    clock.Clock
	logger   *slog.Logger
	prefetch int

	mu sync.Mutex
	ch channel
}

func NewRabbit(conn *amqp.Connection, policy RetryPolicy, opts RabbitOptions) (*Rabbit, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	r, err := newRabbit(ch, policy, opts)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	r.conn = conn
	return r, nil
}

func newRabbit(ch channel, policy RetryPolicy, opts RabbitOptions) (*Rabbit, error) {
	r := &Rabbit{
		ch:       ch,
		policy:   policy,
		clock:    opts.Clock,
		logger:   opts.Logger,
		prefetch: opts.Prefetch,
	}
	if r.clock == nil {
		r.clock = clock.Real{}
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if r.prefetch <= 0 {
		r.prefetch = 10
	}

	for _, q := range []string{WorkQueue, FailedQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return nil, fmt.Errorf("declare queue %s: %w", q, err)
		}
	}
	return r, nil
}

func (r *Rabbit) Schedule(ctx context.Context, taskID string, notBefore time.Time) error {
	return r.publish(ctx, task{ReminderID: taskID, Attempt: 1}, notBefore.Sub(r.clock.Now()), nil)
}

func (r *Rabbit) publish(ctx context.Context, t task, delay time.Duration, headers amqp.Table) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	queue := WorkQueue
	if delay > 0 {
		queue = DelayQueueName(delay)
		// Redeclared on every publish so x-expires never drops a queue that
		// still holds messages.
		ttl := delaySeconds(delay) * 1000
		args := amqp.Table{
			"x-message-ttl":             ttl,
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": WorkQueue,
			"x-expires":                 ttl + delayQueueLinger.Milliseconds(),
		}
		if _, err := r.ch.QueueDeclare(queue, true, false, false, false, args); err != nil {
			return fmt.Errorf("declare delay queue %s: %w", queue, err)
		}
	}

	return r.send(ctx, queue, body, headers)
}

// send publishes to queue through the default exchange. Callers hold r.mu.
func (r *Rabbit) send(ctx context.Context, queue string, body []byte, headers amqp.Table) error {
	return r.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    r.clock.Now(),
		Headers:      headers,
		Body:         body,
	})
}

// Close closes the publishing channel. The connection belongs to the caller.
func (r *Rabbit) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ch.Close()
}

// Run consumes the work queue until ctx is cancelled.
func (r *Rabbit) Run(ctx context.Context, h Handler) error {
	if r.conn == nil {
		return errors.New("rabbit dispatcher has no connection")
	}
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(r.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := ch.Consume(WorkQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", WorkQueue, err)
	}

	r.logger.Info("reminder dispatcher consuming", "queue", WorkQueue)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("stopping reminder dispatcher")
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("reminder work queue channel closed")
			}
			r.handle(ctx, h, d)
		}
	}
}

func (r *Rabbit) handle(ctx context.Context, h Handler, d amqp.Delivery) {
	var t task
	if err := json.Unmarshal(d.Body, &t); err != nil || t.ReminderID == "" {
		r.logger.Error("dropping undecodable reminder task", "message_id", d.MessageId, "error", err)
		_ = d.Nack(false, false)
		return
	}
	if t.Attempt < 1 {
		t.Attempt = 1
	}

	herr := h.OnReminderDue(ctx, t.ReminderID)
	if herr == nil {
		_ = d.Ack(false)
		return
	}
	if ctx.Err() != nil {
		// Shutting down; the broker redelivers without spending an attempt.
		_ = d.Nack(false, true)
		return
	}

	if r.policy.Exhausted(t.Attempt) {
		if err := r.publishFailed(ctx, t, amqp.Table{headerLastError: herr.Error()}); err != nil {
			r.logger.Error("publish failed task", "reminder_id", t.ReminderID, "error", err)
			_ = d.Nack(false, true)
			return
		}
		if err := h.OnDeliveryExhausted(ctx, t.ReminderID, herr); err != nil {
			r.logger.Error("exhausted handler failed", "reminder_id", t.ReminderID, "error", err)
		}
		_ = d.Ack(false)
		return
	}

	delay := r.policy.Delay(t.Attempt)
	next := task{ReminderID: t.ReminderID, Attempt: t.Attempt + 1}
	if err := r.publish(ctx, next, delay, amqp.Table{headerLastError: herr.Error()}); err != nil {
		r.logger.Error("republish reminder task", "reminder_id", t.ReminderID, "error", err)
		_ = d.Nack(false, true)
		return
	}
	r.logger.Warn("reminder delivery failed, retrying",
		"reminder_id", t.ReminderID,
		"attempt", t.Attempt,
		"retry_in", delay.String(),
		"error", herr,
	)
	_ = d.Ack(false)
}

func (r *Rabbit) publishFailed(ctx context.Context, t task, headers amqp.Table) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.send(ctx, FailedQueue, body, headers)
}
