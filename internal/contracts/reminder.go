package contracts

import (
	"time"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/reminder"
)

const (
	CartReminderDueEventName           = "CartReminderDue"
	CartReminderDueEventVersion        = 1
	CartReminderDueEnvelopedSchemaPath = "contracts/events/cart/CartReminderDue.v1.enveloped.schema.json"
)

// CartReminderDuePayload is everything a mail service needs to render and
// send one reminder.
type CartReminderDuePayload struct {
	ReminderID     string     `json:"reminderId"`
	CartID         string     `json:"cartId"`
	CustomerEmail  string     `json:"customerEmail"`
	ReminderNumber int        `json:"reminderNumber"`
	Tone           string     `json:"tone"`
	Subject        string     `json:"subject"`
	CompletionURL  string     `json:"completionUrl,omitempty"`
	Items          []CartItem `json:"items"`
	TotalAmount    string     `json:"totalAmount"`
	ScheduledAt    time.Time  `json:"scheduledAt"`
}

func BuildCartReminderDueEvent(n reminder.Notification, completionURL string, opts EnvelopeOptions) Envelope[CartReminderDuePayload] {
	payload := CartReminderDuePayload{
		ReminderID:     n.ReminderID,
		CartID:         n.CartID,
		CustomerEmail:  n.CustomerEmail,
		ReminderNumber: n.Ordinal,
		Tone:           string(n.Tone),
		Subject:        n.Tone.Subject(),
		CompletionURL:  completionURL,
		Items:          itemsOf(n.Items),
		TotalAmount:    n.Total.StringFixed(2),
		ScheduledAt:    n.ScheduledAt,
	}
	return newEnvelope(CartReminderDueEventName, CartReminderDueEventVersion, CartReminderDueEnvelopedSchemaPath, payload, opts)
}
