package feed

import (
	"context"
	"log/slog"

	"github.com/Proton-105/clicker-social/internal/domain"
	apperrors "github.com/Proton-105/clicker-social/internal/errors"
)

// Refresher is told that a user's record changed, so cached copies and open
// screens can catch up. Callers treat a nil Refresher as a no-op.
type Refresher interface {
	Refresh(ctx context.Context, username string)
}

// UserReloader drops a cached record and reads it back from the store.
type UserReloader interface {
	Invalidate(ctx context.Context, username string)
	Reload(ctx context.Context, username string) (*domain.User, error)
}

// CacheRefresher invalidates the user cache and publishes the fresh record
// on the user's feed.
type CacheRefresher struct {
	users     UserReloader
	publisher Publisher
	log       *slog.Logger
}

var _ Refresher = (*CacheRefresher)(nil)

func NewCacheRefresher(users UserReloader, publisher Publisher, log *slog.Logger) *CacheRefresher {
	if log == nil {
		log = slog.Default()
	}
	return &CacheRefresher{users: users, publisher: publisher, log: log}
}

func (r *CacheRefresher) Refresh(ctx context.Context, username string) {
	r.users.Invalidate(ctx, username)

	u, err := r.users.Reload(ctx, username)
	if err != nil {
		apperrors.SideEffect(ctx, r.log, "refresh.reload", err)
		return
	}

	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, KindUser, username, TypeUserUpdated, u); err != nil {
		apperrors.SideEffect(ctx, r.log, "refresh.publish", err)
	}
}

// Refresh calls r when it is set.
func Refresh(ctx context.Context, r Refresher, username string) {
	if r == nil {
		return
	}
	r.Refresh(ctx, username)
}
