package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/clicker-social/internal/health"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestShutdown_RunsHooksInReverseOrder(t *testing.T) {
	s := NewShutdown(testLogger())

	var order []string
	s.Register("store", func(context.Context) error { order = append(order, "store"); return nil })
	s.Register("bus", func(context.Context) error { order = append(order, "bus"); return errors.New("drain failed") })
	s.Register("http", func(context.Context) error { order = append(order, "http"); return nil })

	err := s.Execute(context.Background())

	assert.Equal(t, []string{"http", "bus", "store"}, order)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bus: drain failed")
}

func TestShutdown_AbandonsHooksAfterDeadline(t *testing.T) {
	s := NewShutdown(testLogger())

	var ranLast bool
	s.Register("last", func(context.Context) error { ranLast = true; return nil })
	s.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Execute(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ranLast)
}

func TestProbes(t *testing.T) {
	checker := health.NewChecker(testLogger())
	failing := true
	checker.AddCheck("mongo", health.CheckFunc(func(context.Context) error {
		if failing {
			return errors.New("no primary")
		}
		return nil
	}))

	p := NewProbes(checker, testLogger())
	ctx := context.Background()

	require.NoError(t, p.Liveness(ctx))

	results, err := p.Report(ctx)
	assert.EqualError(t, err, "unhealthy: mongo")
	assert.Equal(t, "no primary", results["mongo"])

	failing = false
	assert.NoError(t, p.Readiness(ctx))

	p.Drain()
	assert.Error(t, p.Readiness(ctx))
	assert.NoError(t, p.Liveness(ctx))
}
