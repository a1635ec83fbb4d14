package contracts

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const CartServiceProducer = "cart-service"

// Envelope wraps every event the cart service publishes. Consumers order
// events of one cart by Sequence within PartitionKey.
type Envelope[P any] struct {
	EventName     string    `json:"eventName"`
	EventVersion  int       `json:"eventVersion"`
	EventID       string    `json:"eventId"`
	CorrelationID string    `json:"correlationId,omitempty"`
	CausationID   string    `json:"causationId,omitempty"`
	Producer      string    `json:"producer"`
	PartitionKey  string    `json:"partitionKey"`
	Sequence      int64     `json:"sequence"`
	OccurredAt    time.Time `json:"occurredAt"`
	Schema        string    `json:"schema"`
	Payload       P         `json:"payload"`
}

type EnvelopeOptions struct {
	PartitionKey  string
	Sequence      int64
	Producer      string
	SchemaPath    string
	CorrelationID string
	CausationID   string
	EventID       string
	OccurredAt    time.Time
}

func newEnvelope[P any](name string, version int, defaultSchema string, payload P, opts EnvelopeOptions) Envelope[P] {
	eventID := opts.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	}

	occurredAt := opts.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	schemaPath := opts.SchemaPath
	if schemaPath == "" {
		schemaPath = defaultSchema
	}

	producer := opts.Producer
	if producer == "" {
		producer = CartServiceProducer
	}

	return Envelope[P]{
		EventName:     name,
		EventVersion:  version,
		EventID:       eventID,
		CorrelationID: opts.CorrelationID,
		CausationID:   opts.CausationID,
		Producer:      producer,
		PartitionKey:  opts.PartitionKey,
		Sequence:      opts.Sequence,
		OccurredAt:    occurredAt,
		Schema:        schemaPath,
		Payload:       payload,
	}
}

// Validate checks the envelope fields every consumer relies on.
func (e Envelope[P]) Validate() error {
	switch {
	case e.EventName == "":
		return errors.New("eventName is required")
	case e.EventVersion < 1:
		return errors.New("eventVersion must be positive")
	case e.EventID == "":
		return errors.New("eventId is required")
	case e.Producer == "":
		return errors.New("producer is required")
	case e.PartitionKey == "":
		return errors.New("partitionKey is required")
	case e.Sequence <= 0:
		return errors.New("sequence must be positive")
	case e.OccurredAt.IsZero():
		return errors.New("occurredAt is required")
	}
	return nil
}
