// Package notify delivers due reminders to customers.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/reminder"
)

// CompletionLinks builds the link a customer follows to finalize a cart.
type CompletionLinks struct {
	base *url.URL
}

func NewCompletionLinks(publicBaseURL string) (CompletionLinks, error) {
	if strings.TrimSpace(publicBaseURL) == "" {
		return CompletionLinks{}, nil
	}
	u, err := url.Parse(strings.TrimRight(publicBaseURL, "/"))
	if err != nil {
		return CompletionLinks{}, fmt.Errorf("parse public base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return CompletionLinks{}, fmt.Errorf("public base url %q must be absolute", publicBaseURL)
	}
	return CompletionLinks{base: u}, nil
}

// URL returns "" when no base URL is configured or the token is empty.
func (l CompletionLinks) URL(cartID, token string) string {
	if l.base == nil || token == "" {
		return ""
	}
	u := l.base.JoinPath("api", "cart", cartID, "complete")
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String()
}

type ReminderPublisher interface {
	PublishCartReminderDue(ctx context.Context, n reminder.Notification, completionURL string) error
}

// EventNotifier publishes a CartReminderDue event for the mail service.
type EventNotifier struct {
	publisher ReminderPublisher
	links     CompletionLinks
}

var _ reminder.Notifier = (*EventNotifier)(nil)

func NewEventNotifier(publisher ReminderPublisher, links CompletionLinks) *EventNotifier {
	return &EventNotifier{publisher: publisher, links: links}
}

func (n *EventNotifier) Send(ctx context.Context, note reminder.Notification) error {
	return n.publisher.PublishCartReminderDue(ctx, note, n.links.URL(note.CartID, note.CompletionToken))
}

// LogNotifier writes reminders to the log. Used when no broker is configured.
type LogNotifier struct {
	logger *slog.Logger
	links  CompletionLinks
}

var _ reminder.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger *slog.Logger, links CompletionLinks) *LogNotifier {
	return &LogNotifier{logger: logger, links: links}
}

func (n *LogNotifier) Send(ctx context.Context, note reminder.Notification) error {
	n.logger.InfoContext(ctx, "cart reminder",
		"to", note.CustomerEmail,
		"subject", note.Tone.Subject(),
		"cart_id", note.CartID,
		"reminder_number", note.Ordinal,
		"items", len(note.Items),
		"total", note.Total.StringFixed(2),
		"completion_url", n.links.URL(note.CartID, note.CompletionToken),
	)
	return nil
}
