package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const DefaultCleanupCron = "0 4 * * *"

type Scheduler interface {
	RegisterTasks() error
	Run()
	Shutdown()
}

type scheduler struct {
	asynqScheduler *asynq.Scheduler
	cleanupCron    string
	retention      time.Duration
	log            *slog.Logger
}

// NewScheduler builds the periodic task scheduler. cleanupCron defaults to
// DefaultCleanupCron.
func NewScheduler(redisOpt asynq.RedisConnOpt, cleanupCron string, retention time.Duration, log *slog.Logger) Scheduler {
	if cleanupCron == "" {
		cleanupCron = DefaultCleanupCron
	}

	return &scheduler{
		asynqScheduler: asynq.NewScheduler(redisOpt, nil),
		cleanupCron:    cleanupCron,
		retention:      retention,
		log:            log,
	}
}

func (s *scheduler) RegisterTasks() error {
	task, err := NewModerationCleanupTask(s.retention)
	if err != nil {
		return err
	}

	if _, err := s.asynqScheduler.Register(s.cleanupCron, task); err != nil {
		return err
	}

	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: registered moderation cleanup task", slog.String("cron", s.cleanupCron))
	}

	return nil
}

func (s *scheduler) Run() {
	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: starting")
	}

	go func() {
		if err := s.asynqScheduler.Run(); err != nil && s.log != nil {
			s.log.ErrorContext(context.Background(), "scheduler: run failed", "error", err)
		}
	}()
}

func (s *scheduler) Shutdown() {
	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: shutting down")
	}

	s.asynqScheduler.Shutdown()
}
