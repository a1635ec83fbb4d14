package cart

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/clock"
)

// ReminderScheduler is the part of the reminder engine the cart lifecycle drives.
type ReminderScheduler interface {
	// EstablishSchedule persists the reminder rows of a freshly created cart
	// through q, inside the caller's transaction.
	EstablishSchedule(ctx context.Context, q Queries, c Cart) ([]Reminder, error)
	// Arm hands persisted reminders to the delayed dispatcher. Called after commit.
	Arm(ctx context.Context, reminders []Reminder) error
	CancelPending(ctx context.Context, q Queries, cartID string) (int64, error)
}

// EventPublisher receives lifecycle events after their transaction committed.
type EventPublisher interface {
	PublishCartOpened(ctx context.Context, c Cart) error
	PublishCartFinalized(ctx context.Context, c Cart, cancelledReminders int64) error
}

type ServiceOptions struct {
	Clock  clock.Clock
	Logger *slog.Logger
	Events EventPublisher
}

// Service owns cart creation, merge-on-add and finalization.
type Service struct {
	store     Store
	catalog   Catalog
	reminders ReminderScheduler
	events    EventPublisher
	clock     clock.Clock
	logger    *slog.Logger
}

func NewService(store Store, catalog Catalog, reminders ReminderScheduler, opts ServiceOptions) *Service {
	s := &Service{
		store:     store,
		catalog:   catalog,
		reminders: reminders,
		events:    opts.Events,
		clock:     opts.Clock,
		logger:    opts.Logger,
	}
	if s.clock == nil {
		s.clock = clock.Real{}
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.events == nil {
		s.events = noopEvents{}
	}
	return s
}

// AddProduct adds quantity units of a product to the customer's active cart,
// creating the cart (and its reminder schedule) when there is none.
func (s *Service) AddProduct(ctx context.Context, customerEmail, productID string, quantity int) (Item, error) {
	customerEmail = strings.TrimSpace(customerEmail)
	productID = strings.TrimSpace(productID)
	switch {
	case customerEmail == "":
		return Item{}, ErrInvalidCustomer
	case productID == "":
		return Item{}, ErrInvalidProduct
	case quantity < 1:
		return Item{}, ErrInvalidQuantity
	}

	// The catalog may be remote, so the price is resolved before the
	// transaction opens.
	price, err := s.catalog.Price(ctx, productID)
	if err != nil {
		return Item{}, fmt.Errorf("resolve price of %s: %w", productID, err)
	}

	var (
		item      Item
		c         Cart
		created   bool
		scheduled []Reminder
	)
	err = s.store.WithinTx(ctx, func(q Queries) error {
		now := s.clock.Now()

		var err error
		c, created, err = q.GetOrCreateActiveCart(ctx, customerEmail, now)
		if err != nil {
			return err
		}

		item, err = q.AddItem(ctx, c.ID, productID, quantity, price, now)
		if err != nil {
			return err
		}

		// Reminders are scheduled once per cart, in the transaction that created it.
		if created {
			scheduled, err = s.reminders.EstablishSchedule(ctx, q, c)
			if err != nil {
				return fmt.Errorf("establish reminder schedule: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return Item{}, err
	}

	if created {
		s.logger.Info("cart created",
			"cart_id", c.ID,
			"customer_email", customerEmail,
			"reminders", len(scheduled),
		)
		if err := s.reminders.Arm(ctx, scheduled); err != nil {
			s.logger.Warn("arm reminder timers failed, sweep will pick them up",
				"cart_id", c.ID,
				"error", err,
			)
		}
		if err := s.events.PublishCartOpened(ctx, c); err != nil {
			s.logger.Warn("publish cart opened failed", "cart_id", c.ID, "error", err)
		}
	}

	s.logger.Debug("product added to cart",
		"cart_id", c.ID,
		"product_id", productID,
		"quantity", item.Quantity,
	)
	return item, nil
}

// FinalizeCart moves an active cart to finalized and cancels its pending
// reminders. Finalizing a cart that is not active fails with ErrAlreadyFinalized.
func (s *Service) FinalizeCart(ctx context.Context, cartID string) (Cart, error) {
	var (
		c         Cart
		cancelled int64
	)
	err := s.store.WithinTx(ctx, func(q Queries) error {
		var err error
		c, err = q.LockCart(ctx, cartID)
		if err != nil {
			return err
		}
		if c.Status != StatusActive {
			return ErrAlreadyFinalized
		}

		now := s.clock.Now()
		if err = q.FinalizeCart(ctx, cartID, now); err != nil {
			return err
		}
		c.Status = StatusFinalized
		c.FinalizedAt = &now
		c.UpdatedAt = now

		cancelled, err = s.reminders.CancelPending(ctx, q, cartID)
		if err != nil {
			return fmt.Errorf("cancel pending reminders: %w", err)
		}

		c.Items, err = q.ListItems(ctx, cartID)
		return err
	})
	if err != nil {
		return Cart{}, err
	}

	s.logger.Info("cart finalized",
		"cart_id", c.ID,
		"customer_email", c.CustomerEmail,
		"cancelled_reminders", cancelled,
	)
	if err := s.events.PublishCartFinalized(ctx, c, cancelled); err != nil {
		s.logger.Warn("publish cart finalized failed", "cart_id", c.ID, "error", err)
	}
	return c, nil
}

// GetActiveCart returns the customer's active cart with its items.
func (s *Service) GetActiveCart(ctx context.Context, customerEmail string) (Cart, error) {
	customerEmail = strings.TrimSpace(customerEmail)
	if customerEmail == "" {
		return Cart{}, ErrInvalidCustomer
	}

	c, err := s.store.GetActiveCart(ctx, customerEmail)
	if err != nil {
		return Cart{}, err
	}
	return s.withItems(ctx, c)
}

// GetCart returns any cart by id with its items.
func (s *Service) GetCart(ctx context.Context, cartID string) (Cart, error) {
	c, err := s.store.GetCart(ctx, cartID)
	if err != nil {
		return Cart{}, err
	}
	return s.withItems(ctx, c)
}

func (s *Service) withItems(ctx context.Context, c Cart) (Cart, error) {
	items, err := s.store.ListItems(ctx, c.ID)
	if err != nil {
		return Cart{}, err
	}
	c.Items = items
	return c, nil
}

type noopEvents struct{}

func (noopEvents) PublishCartOpened(context.Context, Cart) error { return nil }

func (noopEvents) PublishCartFinalized(context.Context, Cart, int64) error { return nil }
