package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TaskTypeModerationReport  = "moderation:report"
	TaskTypeModerationCleanup = "moderation:cleanup"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Queues is the weighted queue set the worker consumes.
var Queues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

// ModerationReportPayload carries one click burst to the moderation log.
type ModerationReportPayload struct {
	Username string    `json:"username"`
	Count    int       `json:"count"`
	WindowMs int64     `json:"window_ms"`
	At       time.Time `json:"at"`
}

type ModerationCleanupPayload struct {
	OlderThan time.Duration `json:"older_than"`
}

func NewModerationReportTask(p ModerationReportPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeModerationReport, payload, asynq.Queue(QueueCritical), asynq.MaxRetry(5)), nil
}

func NewModerationCleanupTask(olderThan time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(ModerationCleanupPayload{OlderThan: olderThan})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeModerationCleanup, payload, asynq.Queue(QueueLow)), nil
}
