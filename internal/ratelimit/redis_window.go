package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisWindow implements Window using Redis sorted sets scored by event time.
type RedisWindow struct {
	client *redis.Client
	prefix string
	log    *slog.Logger
}

var _ Window = (*RedisWindow)(nil)

// NewRedisWindow creates a Redis-backed window whose keys live under prefix (e.g. "ratelimit:").
func NewRedisWindow(client *redis.Client, prefix string, log *slog.Logger) *RedisWindow {
	if log == nil {
		log = slog.Default()
	}

	return &RedisWindow{
		client: client,
		prefix: prefix,
		log:    log,
	}
}

func (w *RedisWindow) Hit(ctx context.Context, key string, span time.Duration) (int, error) {
	if w.client == nil {
		return 0, errors.New("redis client is not configured for sliding windows")
	}

	now := time.Now()
	redisKey := w.prefix + key

	pipe := w.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", cutoffScore(now, span))
	pipe.ZAdd(ctx, redisKey, redis.Z{
		Score:  millis(now),
		Member: uuid.NewString(),
	})
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, span*2)

	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error("sliding window pipeline failed", slog.String("key", key), slog.Any("error", err))
		return 0, err
	}

	count, err := countCmd.Result()
	if err != nil {
		w.log.Error("sliding window failed to read count", slog.String("key", key), slog.Any("error", err))
		return 0, err
	}

	return int(count), nil
}

func (w *RedisWindow) Count(ctx context.Context, key string, span time.Duration) (int, error) {
	if w.client == nil {
		return 0, errors.New("redis client is not configured for sliding windows")
	}

	now := time.Now()
	redisKey := w.prefix + key

	pipe := w.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", cutoffScore(now, span))
	countCmd := pipe.ZCard(ctx, redisKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	count, err := countCmd.Result()
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (w *RedisWindow) Reset(ctx context.Context, key string) error {
	if w.client == nil {
		return nil
	}
	return w.client.Del(ctx, w.prefix+key).Err()
}

func millis(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Millisecond)
}

func cutoffScore(now time.Time, span time.Duration) string {
	return fmt.Sprintf("%f", millis(now.Add(-span)))
}
