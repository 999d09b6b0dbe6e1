package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/Proton-105/clicker-social/pkg/metrics"
)

const DefaultRefreshInterval = 60 * time.Second

// ProgressFunc builds the boxes.progress payload for one player.
type ProgressFunc func(ctx context.Context, username string) (any, error)

// Registry tracks live sessions and periodically pushes box progress to them.
type Registry struct {
	progress ProgressFunc
	interval time.Duration
	log      *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	sched gocron.Scheduler
}

func NewRegistry(progress ProgressFunc, interval time.Duration, log *slog.Logger) *Registry {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if log == nil {
		log = slog.Default()
	}

	return &Registry{
		progress: progress,
		interval: interval,
		log:      log,
		sessions: make(map[string]*Session),
	}
}

func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	r.sessions[s.ID()] = s
	n := len(r.sessions)
	r.mu.Unlock()

	metrics.SetActiveSessions(n)
}

func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	delete(r.sessions, s.ID())
	n := len(r.sessions)
	r.mu.Unlock()

	metrics.SetActiveSessions(n)
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Serve registers s, runs it and unregisters it when it ends.
func (r *Registry) Serve(ctx context.Context, s *Session) error {
	r.Add(s)
	defer r.Remove(s)

	r.pushProgress(ctx, s)
	return s.Run(ctx)
}

// PushProgress sends boxes.progress to every live session.
func (r *Registry) PushProgress(ctx context.Context) {
	for _, s := range r.snapshot() {
		r.pushProgress(ctx, s)
	}
}

func (r *Registry) pushProgress(ctx context.Context, s *Session) {
	if r.progress == nil {
		return
	}

	data, err := r.progress(ctx, s.Username())
	if err != nil {
		r.log.WarnContext(ctx, "box progress refresh failed", slog.String("username", s.Username()), slog.Any("error", err))
		return
	}
	s.Push(Outbound{Type: TypeBoxesProgress, Data: data})
}

// Start schedules the periodic progress push.
func (r *Registry) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create session scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(r.interval),
		gocron.NewTask(func() {
			r.PushProgress(ctx)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("schedule progress refresh: %w", err)
	}

	sched.Start()
	r.sched = sched

	r.log.InfoContext(ctx, "session refresh scheduled", slog.Duration("interval", r.interval))
	return nil
}

// Shutdown stops the scheduler and closes every live session.
func (r *Registry) Shutdown() error {
	var err error
	if r.sched != nil {
		err = r.sched.Shutdown()
	}
	for _, s := range r.snapshot() {
		s.Close()
	}
	return err
}
