// Package identity resolves the acting player from a bearer session token.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const sessionPrefix = "session:"

// ErrUnknownSession is returned when a token is missing, expired or revoked.
var ErrUnknownSession = errors.New("identity: unknown session")

// RevokeHook runs after a token has been revoked.
type RevokeHook func(ctx context.Context, token string) error

// Sessions stores token → username bindings in Redis with a sliding TTL.
type Sessions struct {
	client   *redis.Client
	ttl      time.Duration
	onRevoke []RevokeHook
}

func NewSessions(client *redis.Client, ttl time.Duration) *Sessions {
	return &Sessions{client: client, ttl: ttl}
}

// Create mints a new token for username.
func (s *Sessions) Create(ctx context.Context, username string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	token := hex.EncodeToString(buf)

	if err := s.client.Set(ctx, sessionPrefix+token, username, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return token, nil
}

// Resolve returns the username bound to token and extends its TTL.
func (s *Sessions) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnknownSession
	}

	var username string
	var err error
	if s.ttl > 0 {
		username, err = s.client.GetEx(ctx, sessionPrefix+token, s.ttl).Result()
	} else {
		username, err = s.client.Get(ctx, sessionPrefix+token).Result()
	}
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrUnknownSession
		}
		return "", fmt.Errorf("resolve session: %w", err)
	}
	return username, nil
}

// OnRevoke registers hook to run after every successful Revoke. Hook
// failures are joined into Revoke's error; the token stays revoked.
func (s *Sessions) OnRevoke(hook RevokeHook) {
	if hook != nil {
		s.onRevoke = append(s.onRevoke, hook)
	}
}

func (s *Sessions) Revoke(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, sessionPrefix+token).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	var errs []error
	for _, hook := range s.onRevoke {
		if err := hook(ctx, token); err != nil {
			errs = append(errs, fmt.Errorf("revoke hook: %w", err))
		}
	}
	return errors.Join(errs...)
}
