package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/clicker-social/internal/abuse"
)

// Manager describes the minimal queue operations needed by the application.
type Manager interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type manager struct {
	client *asynq.Client
	log    *slog.Logger
}

// NewManager builds a Manager backed by an asynq client.
func NewManager(redisOpt asynq.RedisConnOpt, log *slog.Logger) Manager {
	client := asynq.NewClient(redisOpt)

	return &manager{
		client: client,
		log:    log,
	}
}

func (m *manager) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	info, err := m.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return nil, err
	}

	if m.log != nil {
		m.log.DebugContext(ctx, "jobs: task enqueued", slog.String("task_type", task.Type()), slog.String("task_id", info.ID), slog.String("queue", info.Queue))
	}
	return info, nil
}

func (m *manager) Close() error {
	return m.client.Close()
}

// QueueReporter hands click bursts to the moderation worker instead of
// writing them inline.
type QueueReporter struct {
	manager Manager
}

var _ abuse.Reporter = (*QueueReporter)(nil)

func NewQueueReporter(manager Manager) *QueueReporter {
	return &QueueReporter{manager: manager}
}

func (r *QueueReporter) ReportBurst(ctx context.Context, b abuse.Burst) error {
	task, err := NewModerationReportTask(ModerationReportPayload{
		Username: b.Username,
		Count:    b.Count,
		WindowMs: b.Window.Milliseconds(),
		At:       b.At,
	})
	if err != nil {
		return err
	}

	_, err = r.manager.Enqueue(ctx, task)
	return err
}

// BurstFromPayload restores the burst a QueueReporter enqueued.
func BurstFromPayload(p ModerationReportPayload) abuse.Burst {
	return abuse.Burst{
		Username: p.Username,
		Count:    p.Count,
		Window:   time.Duration(p.WindowMs) * time.Millisecond,
		At:       p.At,
	}
}
