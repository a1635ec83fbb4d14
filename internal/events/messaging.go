package events

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	EventsExchange            = "ecommerce.events"
	CartOpenedRoutingKey      = "cart.opened.v1"
	CartFinalizedRoutingKey   = "cart.finalized.v1"
	CartReminderDueRoutingKey = "cart.reminder.due.v1"
)

// exchangeDeclarer is satisfied by *amqp.Channel.
type exchangeDeclarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
}

func declareEventsExchange(ch exchangeDeclarer) error {
	return ch.ExchangeDeclare(
		EventsExchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
}
