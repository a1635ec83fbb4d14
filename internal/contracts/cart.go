package contracts

import (
	"time"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/cart"
)

const (
	CartOpenedEventName           = "CartOpened"
	CartOpenedEventVersion        = 1
	CartOpenedEnvelopedSchemaPath = "contracts/events/cart/CartOpened.v1.enveloped.schema.json"

	CartFinalizedEventName           = "CartFinalized"
	CartFinalizedEventVersion        = 1
	CartFinalizedEnvelopedSchemaPath = "contracts/events/cart/CartFinalized.v1.enveloped.schema.json"
)

type CartOpenedPayload struct {
	CartID        string    `json:"cartId"`
	CustomerEmail string    `json:"customerEmail"`
	CreatedAt     time.Time `json:"createdAt"`
}

type CartFinalizedPayload struct {
	CartID             string     `json:"cartId"`
	CustomerEmail      string     `json:"customerEmail"`
	Items              []CartItem `json:"items"`
	TotalAmount        string     `json:"totalAmount"`
	FinalizedAt        time.Time  `json:"finalizedAt"`
	CancelledReminders int64      `json:"cancelledReminders"`
}

// CartItem carries prices as fixed two-decimal strings.
type CartItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
}

func BuildCartOpenedEvent(c cart.Cart, opts EnvelopeOptions) Envelope[CartOpenedPayload] {
	payload := CartOpenedPayload{
		CartID:        c.ID,
		CustomerEmail: c.CustomerEmail,
		CreatedAt:     c.CreatedAt,
	}
	return newEnvelope(CartOpenedEventName, CartOpenedEventVersion, CartOpenedEnvelopedSchemaPath, payload, opts)
}

func BuildCartFinalizedEvent(c cart.Cart, cancelledReminders int64, opts EnvelopeOptions) Envelope[CartFinalizedPayload] {
	payload := CartFinalizedPayload{
		CartID:             c.ID,
		CustomerEmail:      c.CustomerEmail,
		Items:              itemsOf(c.Items),
		TotalAmount:        c.Total().StringFixed(2),
		CancelledReminders: cancelledReminders,
	}
	if c.FinalizedAt != nil {
		payload.FinalizedAt = *c.FinalizedAt
	}
	return newEnvelope(CartFinalizedEventName, CartFinalizedEventVersion, CartFinalizedEnvelopedSchemaPath, payload, opts)
}

func itemsOf(items []cart.Item) []CartItem {
	out := make([]CartItem, 0, len(items))
	for _, it := range items {
		out = append(out, CartItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price.StringFixed(2),
		})
	}
	return out
}
