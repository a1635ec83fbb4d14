package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/clock"
)

var ErrClosed = errors.New("dispatcher closed")

// AfterFunc arms f to run after d and returns a function that disarms it.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

func realAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

type InProcessOptions struct {
	Clock     clock.Clock
	Logger    *slog.Logger
	AfterFunc AfterFunc
}

// InProcess keeps timers in memory. Tasks armed before a restart are lost and
// left to the sweeper.
type InProcess struct {
	policy    RetryPolicy
	clock     clock.Clock
	logger    *slog.Logger
	afterFunc AfterFunc

	mu      sync.Mutex
	handler Handler
	ctx     context.Context
	ready   chan struct{}
	stopped chan struct{}
	closed  bool
	nextID  uint64
	timers  map[uint64]func() bool
	running sync.WaitGroup
}

func NewInProcess(policy RetryPolicy, opts InProcessOptions) *InProcess {
	d := &InProcess{
		policy:    policy,
		clock:     opts.Clock,
		logger:    opts.Logger,
		afterFunc: opts.AfterFunc,
		ready:     make(chan struct{}),
		stopped:   make(chan struct{}),
		timers:    make(map[uint64]func() bool),
	}
	if d.clock == nil {
		d.clock = clock.Real{}
	}
	if d.logger == nil {
		d.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if d.afterFunc == nil {
		d.afterFunc = realAfterFunc
	}
	return d
}

func (d *InProcess) Schedule(_ context.Context, taskID string, notBefore time.Time) error {
	delay := notBefore.Sub(d.clock.Now())
	if delay < 0 {
		delay = 0
	}
	return d.arm(taskID, 1, delay)
}

// Run binds the handler and blocks until ctx is cancelled or the dispatcher
// is closed. Timers that fire before Run wait for it.
func (d *InProcess) Run(ctx context.Context, h Handler) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	if d.handler != nil {
		d.mu.Unlock()
		return errors.New("dispatcher already running")
	}
	d.handler = h
	d.ctx = ctx
	close(d.ready)
	d.mu.Unlock()

	select {
	case <-ctx.Done():
	case <-d.stopped:
	}

	_ = d.Close()
	d.logger.Info("in-process dispatcher stopped")
	return nil
}

// Close stops pending timers, releases timers waiting for Run and waits for
// running handlers. It is safe to call more than once, with or without Run.
func (d *InProcess) Close() error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.stopped)
	}
	for id, stop := range d.timers {
		stop()
		delete(d.timers, id)
	}
	d.mu.Unlock()

	d.running.Wait()
	return nil
}

func (d *InProcess) arm(taskID string, attempt int, delay time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	d.nextID++
	id := d.nextID
	d.timers[id] = d.afterFunc(delay, func() { d.fire(id, taskID, attempt) })
	return nil
}

func (d *InProcess) fire(timerID uint64, taskID string, attempt int) {
	d.mu.Lock()
	delete(d.timers, timerID)
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.running.Add(1)
	d.mu.Unlock()
	defer d.running.Done()

	select {
	case <-d.ready:
	case <-d.stopped:
		return
	}
	d.mu.Lock()
	h, ctx := d.handler, d.ctx
	d.mu.Unlock()

	err := h.OnReminderDue(ctx, taskID)
	if err == nil {
		return
	}
	if ctx.Err() != nil {
		return
	}

	if d.policy.Exhausted(attempt) {
		if xerr := h.OnDeliveryExhausted(ctx, taskID, err); xerr != nil {
			d.logger.Error("exhausted handler failed", "task_id", taskID, "error", xerr)
		}
		return
	}

	delay := d.policy.Delay(attempt)
	d.logger.Warn("reminder delivery failed, retrying",
		"task_id", taskID,
		"attempt", attempt,
		"retry_in", delay.String(),
		"error", err,
	)
	if err := d.arm(taskID, attempt+1, delay); err != nil {
		d.logger.Warn("retry not armed", "task_id", taskID, "error", err)
	}
}
