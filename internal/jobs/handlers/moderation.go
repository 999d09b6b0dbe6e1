package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/clicker-social/internal/abuse"
	"github.com/Proton-105/clicker-social/internal/jobs"
	"github.com/Proton-105/clicker-social/internal/repository"
)

// ModerationReportHandler writes queued click bursts to the moderation log.
type ModerationReportHandler struct {
	reporter abuse.Reporter
	log      *slog.Logger
}

func NewModerationReportHandler(reporter abuse.Reporter, log *slog.Logger) *ModerationReportHandler {
	return &ModerationReportHandler{reporter: reporter, log: log}
}

func (h *ModerationReportHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.ModerationReportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		if h.log != nil {
			h.log.ErrorContext(ctx, "moderation report: failed to decode payload", slog.String("task_type", t.Type()), slog.String("error", err.Error()))
		}
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	if err := h.reporter.ReportBurst(ctx, jobs.BurstFromPayload(payload)); err != nil {
		return fmt.Errorf("report burst for %s: %w", payload.Username, err)
	}

	if h.log != nil {
		h.log.InfoContext(ctx, "moderation report stored",
			slog.String("task_type", t.Type()),
			slog.String("username", payload.Username),
			slog.Int("count", payload.Count),
		)
	}
	return nil
}

// ModerationCleanupHandler prunes moderation entries past their retention.
type ModerationCleanupHandler struct {
	entries   repository.ModerationRepository
	retention time.Duration
	now       func() time.Time
	log       *slog.Logger
}

func NewModerationCleanupHandler(entries repository.ModerationRepository, retention time.Duration, log *slog.Logger) *ModerationCleanupHandler {
	return &ModerationCleanupHandler{entries: entries, retention: retention, now: time.Now, log: log}
}

func (h *ModerationCleanupHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.ModerationCleanupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	olderThan := payload.OlderThan
	if olderThan <= 0 {
		olderThan = h.retention
	}
	if olderThan <= 0 {
		return nil
	}

	cutoff := h.now().Add(-olderThan)
	removed, err := h.entries.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete moderation entries: %w", err)
	}

	if h.log != nil {
		h.log.InfoContext(ctx, "moderation entries pruned",
			slog.Int64("removed", removed),
			slog.Time("cutoff", cutoff),
		)
	}
	return nil
}
