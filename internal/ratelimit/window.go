package ratelimit

import (
	"context"
	"time"
)

// Window is a sliding-window event counter. Hit records one event for key
// and returns how many events fall inside the trailing span, including it.
type Window interface {
	Hit(ctx context.Context, key string, span time.Duration) (int, error)
	Count(ctx context.Context, key string, span time.Duration) (int, error)
	Reset(ctx context.Context, key string) error
}
