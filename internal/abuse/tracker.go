package abuse

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Proton-105/clicker-social/internal/ratelimit"
	"github.com/Proton-105/clicker-social/pkg/metrics"
)

const (
	DefaultBurstWindow    = 10 * time.Second
	DefaultBurstThreshold = 12
)

// Burst describes a click burst that crossed the suspicious threshold.
type Burst struct {
	Username string        `json:"username"`
	Count    int           `json:"count"`
	Window   time.Duration `json:"window"`
	At       time.Time     `json:"at"`
}

// Reporter receives burst reports. Implementations must be safe for concurrent use.
type Reporter interface {
	ReportBurst(ctx context.Context, b Burst) error
}

// Tracker counts clicks per session in a sliding window and reports a burst
// once when the count reaches the threshold. It re-arms after the count
// drops below the threshold again. The "already reported" flag lives in a
// ratelimit.Latch next to the window, so instances sharing the window share it.
type Tracker struct {
	window    ratelimit.Window
	latch     ratelimit.Latch
	reporter  Reporter
	span      time.Duration
	threshold int
	log       *slog.Logger

	wg sync.WaitGroup
}

func NewTracker(window ratelimit.Window, reporter Reporter, span time.Duration, threshold int, log *slog.Logger) *Tracker {
	if span <= 0 {
		span = DefaultBurstWindow
	}
	if threshold <= 0 {
		threshold = DefaultBurstThreshold
	}
	if log == nil {
		log = slog.Default()
	}

	return &Tracker{
		window:    window,
		reporter:  reporter,
		span:      span,
		threshold: threshold,
		log:       log,
		latch:     ratelimit.NewMemoryLatch(),
	}
}

// WithLatch replaces the in-process report latch, e.g. with a RedisLatch.
func (t *Tracker) WithLatch(latch ratelimit.Latch) *Tracker {
	if latch != nil {
		t.latch = latch
	}
	return t
}

// Observe records one click for sessionKey and returns the number of clicks
// in the window. The report, when due, is sent in the background and its
// failure is only logged.
func (t *Tracker) Observe(ctx context.Context, sessionKey, username string) (int, error) {
	count, err := t.window.Hit(ctx, sessionKey, t.span)
	if err != nil {
		return 0, err
	}

	if !t.shouldReport(ctx, sessionKey, count) {
		return count, nil
	}

	burst := Burst{Username: username, Count: count, Window: t.span, At: time.Now().UTC()}
	t.log.Warn("click burst detected",
		slog.String("username", username),
		slog.Int("count", count),
		slog.Duration("window", t.span),
	)

	if t.reporter == nil {
		return count, nil
	}

	reportCtx := context.WithoutCancel(ctx)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := t.reporter.ReportBurst(reportCtx, burst); err != nil {
			t.log.Warn("failed to report click burst", slog.String("username", username), slog.Any("error", err))
			return
		}
		metrics.RecordAbuseReport("burst")
	}()

	return count, nil
}

func (t *Tracker) shouldReport(ctx context.Context, key string, count int) bool {
	if count < t.threshold {
		if err := t.latch.Clear(ctx, key); err != nil {
			t.log.Warn("failed to re-arm burst report", slog.Any("error", err))
		}
		return false
	}

	armed, err := t.latch.Set(ctx, key, t.span)
	if err != nil {
		t.log.Warn("burst report latch unavailable, skipping report", slog.Any("error", err))
		return false
	}
	return armed
}

// Count returns the clicks currently in the window without recording one.
func (t *Tracker) Count(ctx context.Context, sessionKey string) (int, error) {
	return t.window.Count(ctx, sessionKey, t.span)
}

// Reset forgets the session's window and report flag, e.g. when its
// connection closes or its token is revoked.
func (t *Tracker) Reset(ctx context.Context, sessionKey string) error {
	return errors.Join(
		t.latch.Clear(ctx, sessionKey),
		t.window.Reset(ctx, sessionKey),
	)
}

// Wait blocks until in-flight reports have finished.
func (t *Tracker) Wait() {
	t.wg.Wait()
}
