package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/app"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/config"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/logging"
)

func main() {
	cfg, err := config.Load()
	logger := logging.New(logging.Options{
		Service: "cart-service",
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
	})
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      a.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("cart-service listening", "port", cfg.Port, "store", cfg.StoreDriver, "broker", cfg.RabbitURL != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return a.RunWorkers(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("cart-service stopped with error", "error", err)
		a.Close()
		os.Exit(1)
	}
}
