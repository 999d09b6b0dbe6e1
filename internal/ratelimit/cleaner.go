package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cleaner periodically trims expired events from Redis windows and drops
// empty keys, and prunes idle in-memory buckets.
type Cleaner struct {
	redisClient *redis.Client
	memory      *MemoryWindow
	prefixes    []string
	maxAge      time.Duration
	log         *slog.Logger
	interval    time.Duration
}

// NewCleaner constructs a Cleaner instance for keys under prefixes.
func NewCleaner(client *redis.Client, memory *MemoryWindow, prefixes []string, maxAge, interval time.Duration, log *slog.Logger) *Cleaner {
	if log == nil {
		log = slog.Default()
	}

	return &Cleaner{
		redisClient: client,
		memory:      memory,
		prefixes:    prefixes,
		maxAge:      maxAge,
		log:         log,
		interval:    interval,
	}
}

// Run starts the cleaner loop until the context is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	if c.interval <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("window cleaner stopped", slog.String("reason", ctx.Err().Error()))
			return
		case <-ticker.C:
			c.Cleanup(ctx)
		}
	}
}

// Cleanup runs one pass and returns how many Redis keys were removed.
func (c *Cleaner) Cleanup(ctx context.Context) int {
	if c.memory != nil {
		if n := c.memory.Cleanup(c.maxAge); n > 0 {
			c.log.Debug("in-memory window buckets pruned", slog.Int("buckets_removed", n))
		}
	}

	if c.redisClient == nil || ctx.Err() != nil {
		return 0
	}

	cleaned := 0
	for _, prefix := range c.prefixes {
		cleaned += c.cleanupPrefix(ctx, prefix)
	}

	if cleaned > 0 {
		c.log.Info("window keys cleaned", slog.Int("keys_removed", cleaned))
	}
	return cleaned
}

func (c *Cleaner) cleanupPrefix(ctx context.Context, prefix string) int {
	const scanCount = 100

	cutoff := fmt.Sprintf("(%f", millis(time.Now().Add(-c.maxAge)))
	var cursor uint64
	cleaned := 0

	for {
		keys, nextCursor, err := c.redisClient.Scan(ctx, cursor, prefix+"*", scanCount).Result()
		if err != nil {
			c.log.Error("window scan failed", slog.String("prefix", prefix), slog.Any("error", err))
			return cleaned
		}

		for _, key := range keys {
			pipe := c.redisClient.TxPipeline()
			pipe.ZRemRangeByScore(ctx, key, "-inf", cutoff)
			cardCmd := pipe.ZCard(ctx, key)
			if _, err := pipe.Exec(ctx); err != nil {
				c.log.Warn("cleanup pipeline failed", slog.String("key", key), slog.Any("error", err))
				continue
			}

			if count, err := cardCmd.Result(); err != nil || count > 0 {
				continue
			}

			if err := c.redisClient.Del(ctx, key).Err(); err != nil {
				c.log.Warn("failed to delete empty window key", slog.String("key", key), slog.Any("error", err))
				continue
			}
			cleaned++
		}

		if nextCursor == 0 {
			break
		}
		cursor = nextCursor
	}

	return cleaned
}
