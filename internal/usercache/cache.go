// Package usercache keeps a short-lived copy of user records in Redis. Records
// are stored as BSON so moderation fields hidden from JSON survive the round trip.
package usercache

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/Proton-105/clicker-social/internal/domain"
)

const keyPrefix = "usercache:"

// Cache provides Redis-backed caching for user records.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a user cache backed by the provided Redis client.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Get fetches a cached user record. A miss returns (nil, nil).
func (c *Cache) Get(ctx context.Context, username string) (*domain.User, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}

	data, err := c.client.Get(ctx, cacheKey(username)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached user: %w", err)
	}

	var user domain.User
	if err := bson.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("decode cached user: %w", err)
	}

	return &user, nil
}

// Set stores the user record for the cache TTL.
func (c *Cache) Set(ctx context.Context, user *domain.User) error {
	if c == nil || c.client == nil || user == nil || c.ttl <= 0 {
		return nil
	}

	payload, err := bson.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user for cache: %w", err)
	}

	if err := c.client.Set(ctx, cacheKey(user.ID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("set cached user: %w", err)
	}

	return nil
}

// Invalidate removes the cached record if it exists.
func (c *Cache) Invalidate(ctx context.Context, username string) error {
	if c == nil || c.client == nil {
		return nil
	}

	if err := c.client.Del(ctx, cacheKey(username)).Err(); err != nil {
		return fmt.Errorf("delete cached user: %w", err)
	}

	return nil
}

func cacheKey(username string) string {
	return keyPrefix + username
}
