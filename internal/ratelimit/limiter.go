package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	rateLimitChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ratelimit_checks_total",
		Help: "Total number of rate limit checks by result.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(rateLimitChecksTotal)
}

// Result captures the outcome of a rate-limit evaluation.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter describes a rate-limiting strategy interface.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// ErrLimitExceeded indicates the rate limit has been reached for the key.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// WindowLimiter enforces "limit events per window" on top of a sliding Window.
// Rejected attempts still count, so a client hammering a closed limit stays closed.
type WindowLimiter struct {
	window Window
	log    *slog.Logger
}

var _ Limiter = (*WindowLimiter)(nil)

func NewLimiter(window Window, log *slog.Logger) *WindowLimiter {
	if log == nil {
		log = slog.Default()
	}

	return &WindowLimiter{window: window, log: log}
}

func (l *WindowLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	now := time.Now()
	if limit <= 0 {
		return &Result{Allowed: false, Remaining: 0, ResetAt: now.Add(window)}, ErrLimitExceeded
	}

	count, err := l.window.Hit(ctx, "limit:"+key, window)
	if err != nil {
		return nil, err
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	result := &Result{
		Allowed:   count <= limit,
		Remaining: remaining,
		ResetAt:   now.Add(window),
	}

	rateLimitChecksTotal.WithLabelValues(boolLabel(result.Allowed)).Inc()
	if !result.Allowed {
		return result, ErrLimitExceeded
	}

	return result, nil
}

func boolLabel(value bool) string {
	if value {
		return "allowed"
	}
	return "rejected"
}
