package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/clock"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/contracts"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/http/middleware"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/reminder"
)

const publishTimeout = 3 * time.Second

type publishChannel interface {
	exchangeDeclarer
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type envelope interface {
	Validate() error
}

type PublisherOptions struct {
	Clock  clock.Clock
	Logger *slog.Logger
}

// Publisher emits enveloped cart events to the topic exchange.
type Publisher struct {
	mu     sync.Mutex
	ch     publishChannel
	seq    SequenceRepository
	clock  clock.Clock
	logger *slog.Logger
}

var _ cart.EventPublisher = (*Publisher)(nil)

func NewPublisher(conn *amqp.Connection, seq SequenceRepository, opts PublisherOptions) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	p, err := newPublisher(ch, seq, opts)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	return p, nil
}

func newPublisher(ch publishChannel, seq SequenceRepository, opts PublisherOptions) (*Publisher, error) {
	if err := declareEventsExchange(ch); err != nil {
		return nil, fmt.Errorf("declare %s: %w", EventsExchange, err)
	}
	p := &Publisher{ch: ch, seq: seq, clock: opts.Clock, logger: opts.Logger}
	if p.clock == nil {
		p.clock = clock.Real{}
	}
	if p.logger == nil {
		p.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p, nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.Close()
}

func (p *Publisher) PublishCartOpened(ctx context.Context, c cart.Cart) error {
	opts, err := p.options(ctx, c.ID)
	if err != nil {
		return err
	}
	env := contracts.BuildCartOpenedEvent(c, opts)
	return p.publish(ctx, CartOpenedRoutingKey, env.EventName, env.EventID, env.CorrelationID, env)
}

func (p *Publisher) PublishCartFinalized(ctx context.Context, c cart.Cart, cancelledReminders int64) error {
	opts, err := p.options(ctx, c.ID)
	if err != nil {
		return err
	}
	env := contracts.BuildCartFinalizedEvent(c, cancelledReminders, opts)
	return p.publish(ctx, CartFinalizedRoutingKey, env.EventName, env.EventID, env.CorrelationID, env)
}

// PublishCartReminderDue hands a due reminder to whatever renders and mails it.
// The reminder id is the causation id so consumers can drop redeliveries.
func (p *Publisher) PublishCartReminderDue(ctx context.Context, n reminder.Notification, completionURL string) error {
	opts, err := p.options(ctx, n.CartID)
	if err != nil {
		return err
	}
	opts.CausationID = n.ReminderID
	env := contracts.BuildCartReminderDueEvent(n, completionURL, opts)
	return p.publish(ctx, CartReminderDueRoutingKey, env.EventName, env.EventID, env.CorrelationID, env)
}

func (p *Publisher) options(ctx context.Context, partitionKey string) (contracts.EnvelopeOptions, error) {
	seq, err := p.seq.NextSequence(ctx, partitionKey)
	if err != nil {
		return contracts.EnvelopeOptions{}, fmt.Errorf("next sequence: %w", err)
	}
	return contracts.EnvelopeOptions{
		PartitionKey:  partitionKey,
		Sequence:      seq,
		Producer:      contracts.CartServiceProducer,
		CorrelationID: middleware.GetCorrelationID(ctx),
		OccurredAt:    p.clock.Now(),
	}, nil
}

func (p *Publisher) publish(ctx context.Context, routingKey, eventName, eventID, correlationID string, env envelope) error {
	if err := env.Validate(); err != nil {
		return fmt.Errorf("invalid %s envelope: %w", eventName, err)
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventName, err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(
		pubCtx,
		EventsExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     eventID,
			CorrelationId: correlationID,
			Type:          eventName,
			Timestamp:     p.clock.Now(),
			Body:          body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", eventName, err)
	}

	p.logger.Debug("event published", "event", eventName, "routing_key", routingKey, "event_id", eventID)
	return nil
}
