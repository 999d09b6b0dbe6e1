package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/Proton-105/clicker-social/internal/health"
)

// HealthChecker exposes liveness and readiness probes.
type HealthChecker interface {
	Liveness(ctx context.Context) error
	Readiness(ctx context.Context) error
}

// Probes answers liveness from process state and readiness from the
// dependency checks. Readiness fails once draining starts.
type Probes struct {
	checker  *health.Checker
	draining atomic.Bool
	log      *slog.Logger
}

var _ HealthChecker = (*Probes)(nil)

func NewProbes(checker *health.Checker, log *slog.Logger) *Probes {
	if log == nil {
		log = slog.Default()
	}
	return &Probes{checker: checker, log: log}
}

// Liveness reports success while the process is running.
func (p *Probes) Liveness(ctx context.Context) error {
	p.log.DebugContext(ctx, "liveness probe called")
	return nil
}

// Readiness fails when draining or when any dependency check fails.
func (p *Probes) Readiness(ctx context.Context) error {
	_, err := p.Report(ctx)
	return err
}

// Report runs the dependency checks and returns their statuses along with
// the readiness verdict.
func (p *Probes) Report(ctx context.Context) (map[string]string, error) {
	if p.draining.Load() {
		return map[string]string{}, fmt.Errorf("shutting down")
	}
	if p.checker == nil {
		return map[string]string{}, nil
	}

	results := p.checker.Check(ctx)
	if health.Healthy(results) {
		return results, nil
	}

	var failed []string
	for _, name := range p.checker.Names() {
		if status, ok := results[name]; ok && status != health.StatusOK {
			failed = append(failed, name)
		}
	}
	return results, fmt.Errorf("unhealthy: %s", strings.Join(failed, ", "))
}

// Drain marks the service as not ready so load balancers stop routing to it.
func (p *Probes) Drain() {
	if !p.draining.Swap(true) {
		p.log.Info("readiness switched off for shutdown")
	}
}
