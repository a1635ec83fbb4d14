package reminder

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/clock"
)

type SweeperOptions struct {
	Interval time.Duration
	// Grace is how long past its scheduled time a reminder may stay pending
	// before the sweep re-dispatches it. It must outlast the dispatcher's
	// full retry chain.
	Grace  time.Duration
	Clock  clock.Clock
	Logger *slog.Logger
}

// SweepReport adds what the sweeper did with the due reminders.
type SweepReport struct {
	SweepResult
	Redispatched int
	InFlight     int
}

// Sweeper periodically reconciles reminders whose timers were lost.
type Sweeper struct {
	engine     *Engine
	dispatcher Dispatcher
	interval   time.Duration
	grace      time.Duration
	clock      clock.Clock
	logger     *slog.Logger
}

func NewSweeper(engine *Engine, dispatcher Dispatcher, opts SweeperOptions) *Sweeper {
	s := &Sweeper{
		engine:     engine,
		dispatcher: dispatcher,
		interval:   opts.Interval,
		grace:      opts.Grace,
		clock:      opts.Clock,
		logger:     opts.Logger,
	}
	if s.interval <= 0 {
		s.interval = 5 * time.Minute
	}
	if s.grace <= 0 {
		s.grace = 30 * time.Minute
	}
	if s.clock == nil {
		s.clock = clock.Real{}
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("reminder sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			s.logger.Info("stopping reminder sweeper")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce runs one sweep. Due reminders overdue by more than the grace period
// are dispatched again for immediate delivery. Reminders flagged as failed
// are never listed as due, so they neither get retried nor fill the batch.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepReport, error) {
	res, err := s.engine.ProcessDueReminders(ctx)
	report := SweepReport{SweepResult: res}
	if err != nil {
		return report, err
	}

	now := s.clock.Now()
	cutoff := now.Add(-s.grace)
	for _, r := range res.Due {
		if r.ScheduledAt.After(cutoff) {
			report.InFlight++
			continue
		}
		if err := s.dispatcher.Schedule(ctx, r.ID, now); err != nil {
			return report, err
		}
		report.Redispatched++
	}

	if report.Scanned > 0 {
		s.logger.Info("reminder sweep",
			"scanned", report.Scanned,
			"cancelled", report.Cancelled,
			"redispatched", report.Redispatched,
			"in_flight", report.InFlight,
		)
	}
	return report, nil
}
