package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	windowHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sliding_window_hits_total",
		Help: "Total number of sliding window hits by backend.",
	}, []string{"backend"})

	windowRedisErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sliding_window_redis_errors_total",
		Help: "Total number of Redis errors encountered by sliding windows.",
	})
)

func init() {
	prometheus.MustRegister(windowHitsTotal, windowRedisErrorsTotal)
}

// AdaptiveWindow delegates to a primary (Redis) window and falls back to an
// in-memory window when the primary fails.
type AdaptiveWindow struct {
	primary  Window
	fallback Window
	log      *slog.Logger
}

var _ Window = (*AdaptiveWindow)(nil)

// NewAdaptiveWindow creates a window that adapts between Redis and in-memory backends.
func NewAdaptiveWindow(primary, fallback Window, log *slog.Logger) *AdaptiveWindow {
	if log == nil {
		log = slog.Default()
	}

	return &AdaptiveWindow{
		primary:  primary,
		fallback: fallback,
		log:      log,
	}
}

func (a *AdaptiveWindow) Hit(ctx context.Context, key string, span time.Duration) (int, error) {
	count, err := a.primary.Hit(ctx, key, span)
	if err == nil {
		windowHitsTotal.WithLabelValues("redis").Inc()
		return count, nil
	}

	windowRedisErrorsTotal.Inc()
	a.log.Warn("redis window failed, falling back to in-memory", slog.String("key", key), slog.Any("error", err))

	windowHitsTotal.WithLabelValues("fallback").Inc()
	return a.fallback.Hit(ctx, key, span)
}

func (a *AdaptiveWindow) Count(ctx context.Context, key string, span time.Duration) (int, error) {
	count, err := a.primary.Count(ctx, key, span)
	if err == nil {
		return count, nil
	}

	windowRedisErrorsTotal.Inc()
	return a.fallback.Count(ctx, key, span)
}

func (a *AdaptiveWindow) Reset(ctx context.Context, key string) error {
	primaryErr := a.primary.Reset(ctx, key)
	if err := a.fallback.Reset(ctx, key); err != nil {
		return err
	}
	return primaryErr
}
