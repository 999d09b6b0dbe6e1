package abuse

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Proton-105/clicker-social/internal/domain"
	"github.com/Proton-105/clicker-social/internal/repository"
)

const ModerationTypeFastClicks = "fast_clicks"

// StoreReporter persists a burst as a moderation log entry and bumps the
// user's suspicious-event counter.
type StoreReporter struct {
	store repository.Store
}

var _ Reporter = (*StoreReporter)(nil)

func NewStoreReporter(store repository.Store) *StoreReporter {
	return &StoreReporter{store: store}
}

func (r *StoreReporter) ReportBurst(ctx context.Context, b Burst) error {
	entry := &domain.ModerationEntry{
		ID:   uuid.NewString(),
		User: b.Username,
		Type: ModerationTypeFastClicks,
		Meta: map[string]any{
			"count":    b.Count,
			"windowMs": b.Window.Milliseconds(),
		},
		At: b.At,
	}
	if err := r.store.Moderation().Insert(ctx, entry); err != nil {
		return fmt.Errorf("insert moderation entry: %w", err)
	}

	if err := r.store.Users().Update(ctx, b.Username, repository.UserUpdate{SuspiciousDelta: 1}); err != nil {
		return fmt.Errorf("increment suspicious events: %w", err)
	}
	return nil
}
