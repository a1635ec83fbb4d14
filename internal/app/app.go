// Package app wires configuration into a running cart service: storage,
// dispatcher, reminder engine, cart service and HTTP handler.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/catalog"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/clock"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/config"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/dispatch"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/events"
	httpapi "github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/http"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/monitoring"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/notify"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/reminder"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/store/postgres"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/store/sqlite"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/token"
)

const rabbitDialAttempts = 10

// ProductStore is the local products table both stores carry.
type ProductStore interface {
	cart.Catalog
	Product(ctx context.Context, productID string) (catalog.Product, error)
	UpsertProduct(ctx context.Context, p catalog.Product, now time.Time) error
}

// Storage is an open store plus the database/sql handle used for
// migrations and event sequences.
type Storage struct {
	Store    cart.Store
	Products ProductStore
	SQL      *sql.DB

	closers []func()
}

// OpenStorage connects to the configured driver and applies migrations when
// cfg.RunMigrations is set.
func OpenStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Storage, error) {
	s := &Storage{}
	switch cfg.StoreDriver {
	case db.Postgres:
		handle, err := db.OpenPostgres(cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		s.SQL = handle
		s.closers = append(s.closers, func() { _ = handle.Close() })

		if cfg.RunMigrations {
			if err := db.RunMigrations(db.Postgres, handle, logger); err != nil {
				s.Close()
				return nil, err
			}
		}

		pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)

		st := postgres.New(pool)
		s.Store, s.Products = st, st

	case db.SQLite:
		handle, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		s.SQL = handle
		s.closers = append(s.closers, func() { _ = handle.Close() })

		if cfg.RunMigrations {
			if err := db.RunMigrations(db.SQLite, handle, logger); err != nil {
				s.Close()
				return nil, err
			}
		}

		st := sqlite.New(handle)
		s.Store, s.Products = st, st

	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
	return s, nil
}

// Close releases connections in reverse order of opening.
func (s *Storage) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// Dispatcher is the delayed delivery backend the service runs.
type Dispatcher interface {
	reminder.Dispatcher
	Run(ctx context.Context, h dispatch.Handler) error
}

type Options struct {
	Clock clock.Clock
	// AfterFunc overrides the in-process dispatcher's timers.
	AfterFunc dispatch.AfterFunc
}

// App holds every long-lived component of the cart service.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Storage *Storage

	Tokens     *token.Signer
	Dispatcher Dispatcher
	Publisher  *events.Publisher
	Engine     *reminder.Engine
	Carts      *cart.Service
	Sweeper    *reminder.Sweeper
	Stats      *monitoring.Stats

	closers []func() error
}

// New builds the service. With RABBITMQ_URL set, reminders are dispatched
// through RabbitMQ and delivered as events; otherwise timers are kept in
// process and notifications are logged.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	signer, err := token.NewSigner(cfg.CompletionSecret)
	if err != nil {
		return nil, err
	}
	links, err := notify.NewCompletionLinks(cfg.PublicBaseURL)
	if err != nil {
		return nil, err
	}

	storage, err := OpenStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Storage: storage,
		Tokens:  signer,
	}

	var (
		notifier  reminder.Notifier
		lifecycle cart.EventPublisher
	)
	if cfg.RabbitURL != "" {
		conn, err := events.Dial(ctx, cfg.RabbitURL, rabbitDialAttempts, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		a.closers = append(a.closers, conn.Close)

		if err := a.wireRabbit(conn, clk); err != nil {
			a.Close()
			return nil, err
		}
		notifier = notify.NewEventNotifier(a.Publisher, links)
		lifecycle = a.Publisher
	} else {
		inproc := dispatch.NewInProcess(cfg.Retry, dispatch.InProcessOptions{
			Clock:     clk,
			Logger:    logger,
			AfterFunc: opts.AfterFunc,
		})
		a.Dispatcher = inproc
		a.closers = append(a.closers, inproc.Close)
		notifier = notify.NewLogNotifier(logger, links)
	}

	var prices cart.Catalog = storage.Products
	if cfg.CatalogURL != "" {
		client, err := catalog.NewClient(cfg.CatalogURL, cfg.CatalogTimeout)
		if err != nil {
			a.Close()
			return nil, err
		}
		prices = client
	}

	a.Engine = reminder.NewEngine(cfg.Reminders, storage.Store, notifier, a.Dispatcher, signer, reminder.EngineOptions{
		Clock:  clk,
		Logger: logger,
	})
	a.Carts = cart.NewService(storage.Store, prices, a.Engine, cart.ServiceOptions{
		Clock:  clk,
		Logger: logger,
		Events: lifecycle,
	})
	a.Sweeper = reminder.NewSweeper(a.Engine, a.Dispatcher, reminder.SweeperOptions{
		Interval: cfg.SweepInterval,
		Grace:    cfg.SweepGrace,
		Clock:    clk,
		Logger:   logger,
	})
	a.Stats = monitoring.NewStats(storage.Store, cfg.StatsCacheTTL, clk)
	return a, nil
}

func (a *App) wireRabbit(conn *amqp.Connection, clk clock.Clock) error {
	publisher, err := events.NewPublisher(conn, events.NewSequenceRepository(a.Storage.SQL), events.PublisherOptions{
		Clock:  clk,
		Logger: a.Logger,
	})
	if err != nil {
		return fmt.Errorf("create event publisher: %w", err)
	}
	a.Publisher = publisher
	a.closers = append(a.closers, publisher.Close)

	rabbit, err := dispatch.NewRabbit(conn, a.Config.Retry, dispatch.RabbitOptions{
		Clock:  clk,
		Logger: a.Logger,
	})
	if err != nil {
		return fmt.Errorf("create reminder dispatcher: %w", err)
	}
	a.Dispatcher = rabbit
	a.closers = append(a.closers, rabbit.Close)
	return nil
}

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler {
	return httpapi.NewRouter(httpapi.NewCartHandler(a.Carts, a.Tokens, a.Stats, a.Logger))
}

// RunWorkers runs the dispatcher consumer and the sweeper until ctx is
// cancelled.
func (a *App) RunWorkers(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Dispatcher.Run(ctx, a.Engine) })
	g.Go(func() error { return a.Sweeper.Run(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
	a.Storage.Close()
}
