// Package monitoring exposes cart statistics for dashboards and logs.
package monitoring

import (
	"context"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/clock"
)

const DefaultStatsTTL = 300 * time.Second

type StatsSource interface {
	Statistics(ctx context.Context, dayStart time.Time) (cart.Statistics, error)
}

// Stats is a read-through cache over the store's aggregate counters. It
// never caches cart or reminder rows.
type Stats struct {
	source StatsSource
	cache  *cache.Cache
	clock  clock.Clock
}

func NewStats(source StatsSource, ttl time.Duration, clk clock.Clock) *Stats {
	if ttl <= 0 {
		ttl = DefaultStatsTTL
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Stats{
		source: source,
		cache:  cache.New(ttl, 2*ttl),
		clock:  clk,
	}
}

// Get returns today's statistics (UTC day), at most one TTL stale.
func (s *Stats) Get(ctx context.Context) (cart.Statistics, error) {
	dayStart := s.clock.Now().UTC().Truncate(24 * time.Hour)
	key := "cart-stats:" + dayStart.Format(time.DateOnly)

	if v, ok := s.cache.Get(key); ok {
		return v.(cart.Statistics), nil
	}

	st, err := s.source.Statistics(ctx, dayStart)
	if err != nil {
		return cart.Statistics{}, err
	}
	s.cache.Set(key, st, cache.DefaultExpiration)
	return st, nil
}

func (s *Stats) Invalidate() {
	s.cache.Flush()
}

// LogMetrics writes one structured line with the current statistics.
func LogMetrics(ctx context.Context, stats *Stats, logger *slog.Logger) (cart.Statistics, error) {
	st, err := stats.Get(ctx)
	if err != nil {
		return cart.Statistics{}, err
	}
	logger.InfoContext(ctx, "cart metrics",
		"active_carts", st.ActiveCarts,
		"finalized_today", st.FinalizedToday,
		"pending_reminders", st.PendingReminders,
		"sent_reminders_today", st.SentRemindersToday,
		"failed_reminders", st.FailedReminders,
	)
	return st, nil
}
