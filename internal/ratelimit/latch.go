package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Latch is a set-once flag per key with a TTL. Set reports whether this call
// armed the flag; while it is held, further calls return false and extend it.
type Latch interface {
	Set(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Clear(ctx context.Context, key string) error
}

// MemoryLatch keeps flags in process. Expired flags are swept on Set.
type MemoryLatch struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

var _ Latch = (*MemoryLatch)(nil)

func NewMemoryLatch() *MemoryLatch {
	return &MemoryLatch{until: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryLatch) Set(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for k, exp := range m.until {
		if !exp.After(now) {
			delete(m.until, k)
		}
	}

	_, held := m.until[key]
	m.until[key] = now.Add(ttl)
	return !held, nil
}

func (m *MemoryLatch) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.until, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of flags currently held.
func (m *MemoryLatch) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.until)
}

// RedisLatch shares flags between instances with SET NX under prefix.
type RedisLatch struct {
	client *redis.Client
	prefix string
	log    *slog.Logger
}

var _ Latch = (*RedisLatch)(nil)

func NewRedisLatch(client *redis.Client, prefix string, log *slog.Logger) *RedisLatch {
	if log == nil {
		log = slog.Default()
	}
	return &RedisLatch{client: client, prefix: prefix, log: log}
}

func (l *RedisLatch) Set(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if l.client == nil {
		return false, errors.New("redis client is not configured for latches")
	}

	redisKey := l.prefix + key
	armed, err := l.client.SetNX(ctx, redisKey, 1, ttl).Result()
	if err != nil {
		l.log.Error("latch set failed", slog.String("key", key), slog.Any("error", err))
		return false, err
	}
	if !armed {
		if err := l.client.PExpire(ctx, redisKey, ttl).Err(); err != nil {
			l.log.Warn("latch extend failed", slog.String("key", key), slog.Any("error", err))
		}
	}
	return armed, nil
}

func (l *RedisLatch) Clear(ctx context.Context, key string) error {
	if l.client == nil {
		return errors.New("redis client is not configured for latches")
	}
	return l.client.Del(ctx, l.prefix+key).Err()
}
