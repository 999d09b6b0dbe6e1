package usercache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/clicker-social/internal/domain"
)

func newTestCache(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewCache(client, ttl), mr
}

func TestCache_RoundTripKeepsModerationState(t *testing.T) {
	cache, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	events := 4
	user := domain.NewUser("neo", "Neo", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	user.Balance = 12.5
	user.ShadowBanned = true
	user.Behavior.SuspiciousEvents = &events
	user.Friends = []string{"trinity"}

	require.NoError(t, cache.Set(ctx, user))
	assert.True(t, mr.Exists("usercache:neo"))
	assert.Equal(t, time.Minute, mr.TTL("usercache:neo"))

	got, err := cache.Get(ctx, "neo")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 12.5, got.Balance)
	assert.True(t, got.ShadowBanned)
	assert.Equal(t, 4, got.SuspiciousEvents())
	assert.Equal(t, []string{"trinity"}, got.Friends)
	assert.True(t, user.CreatedAt.Equal(got.CreatedAt))
}

func TestCache_MissAndInvalidate(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	got, err := cache.Get(ctx, "neo")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, cache.Set(ctx, domain.NewUser("neo", "", time.Now())))
	require.NoError(t, cache.Invalidate(ctx, "neo"))

	got, err = cache.Get(ctx, "neo")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCache_NilIsNoop(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	got, err := cache.Get(ctx, "neo")
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, cache.Set(ctx, &domain.User{ID: "neo"}))
	assert.NoError(t, cache.Invalidate(ctx, "neo"))
}
