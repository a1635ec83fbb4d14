package contracts

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/reminder"
)

var (
	now       = time.Date(2025, time.May, 5, 10, 0, 0, 0, time.UTC)
	cartID    = "a9c9bf1d-32f2-46a0-9243-97c2cf8a6c4a"
	fixedOpts = EnvelopeOptions{
		PartitionKey:  cartID,
		CorrelationID: "53b0fd3e-8d6b-49af-8c1f-12cf4182c2f7",
		EventID:       "73b0fd3e-8d6b-49af-8c1f-12cf4182c2f7",
		OccurredAt:    now,
	}
)

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden.json"),
	)
}

func sampleItems() []cart.Item {
	return []cart.Item{
		{ProductID: "P1", Quantity: 2, Price: decimal.RequireFromString("10.00")},
		{ProductID: "P2", Quantity: 1, Price: decimal.RequireFromString("4.5")},
	}
}

func TestBuildCartOpenedEvent(t *testing.T) {
	c := cart.Cart{ID: cartID, CustomerEmail: "a@x.com", Status: cart.StatusActive, CreatedAt: now}

	opts := fixedOpts
	opts.Sequence = 1
	env := BuildCartOpenedEvent(c, opts)

	require.NoError(t, env.Validate())
	newGoldie(t).AssertJson(t, "cart_opened", env)
}

func TestBuildCartFinalizedEvent(t *testing.T) {
	finalizedAt := now.Add(time.Hour)
	c := cart.Cart{
		ID:            cartID,
		CustomerEmail: "a@x.com",
		Status:        cart.StatusFinalized,
		FinalizedAt:   &finalizedAt,
		CreatedAt:     now,
		Items:         sampleItems(),
	}

	opts := fixedOpts
	opts.Sequence = 2
	opts.CausationID = "63b0fd3e-8d6b-49af-8c1f-12cf4182c2f7"
	env := BuildCartFinalizedEvent(c, 3, opts)

	require.NoError(t, env.Validate())
	assert.Equal(t, "24.50", env.Payload.TotalAmount)
	newGoldie(t).AssertJson(t, "cart_finalized", env)
}

func TestBuildCartReminderDueEvent(t *testing.T) {
	items := sampleItems()
	n := reminder.Notification{
		ReminderID:      "5f2a86c4-7d0e-4b61-9d59-0d1f1f3b8a10",
		CartID:          cartID,
		CustomerEmail:   "a@x.com",
		Ordinal:         2,
		Tone:            reminder.ToneFor(2),
		CompletionToken: "deadbeef",
		Items:           items,
		Total:           decimal.RequireFromString("24.5"),
		ScheduledAt:     now.Add(6 * time.Hour),
	}

	opts := fixedOpts
	opts.Sequence = 3
	opts.OccurredAt = now.Add(6 * time.Hour)
	env := BuildCartReminderDueEvent(n, "https://shop.example.com/api/cart/"+cartID+"/complete?token=deadbeef", opts)

	require.NoError(t, env.Validate())
	assert.Equal(t, "Your cart is waiting for you", env.Payload.Subject)
	newGoldie(t).AssertJson(t, "cart_reminder_due", env)
}

func TestEnvelopeDefaults(t *testing.T) {
	env := BuildCartOpenedEvent(cart.Cart{ID: cartID}, EnvelopeOptions{PartitionKey: cartID, Sequence: 1})

	_, err := uuid.Parse(env.EventID)
	assert.NoError(t, err, "event id is generated")
	assert.Equal(t, CartServiceProducer, env.Producer)
	assert.Equal(t, CartOpenedEnvelopedSchemaPath, env.Schema)
	assert.False(t, env.OccurredAt.IsZero())
	assert.Equal(t, time.UTC, env.OccurredAt.Location())
}

func TestEnvelopeValidate(t *testing.T) {
	makeEnvelope := func() Envelope[CartOpenedPayload] {
		opts := fixedOpts
		opts.Sequence = 1
		return BuildCartOpenedEvent(cart.Cart{ID: cartID, CustomerEmail: "a@x.com", CreatedAt: now}, opts)
	}

	require.NoError(t, makeEnvelope().Validate())

	t.Run("missing partition key", func(t *testing.T) {
		env := makeEnvelope()
		env.PartitionKey = ""
		assert.ErrorContains(t, env.Validate(), "partitionKey")
	})

	t.Run("missing sequence", func(t *testing.T) {
		env := makeEnvelope()
		env.Sequence = 0
		assert.ErrorContains(t, env.Validate(), "sequence")
	})

	t.Run("missing event name", func(t *testing.T) {
		env := makeEnvelope()
		env.EventName = ""
		assert.ErrorContains(t, env.Validate(), "eventName")
	})

	t.Run("zero version", func(t *testing.T) {
		env := makeEnvelope()
		env.EventVersion = 0
		assert.ErrorContains(t, env.Validate(), "eventVersion")
	})
}
