// Package idempotency replays the recorded response of a mutating request
// when a client retries it with the same Idempotency-Key.
package idempotency

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var ErrRequestInProgress = errors.New("request with this key is already in progress")

const (
	DefaultTTL     = 24 * time.Hour
	DefaultLockTTL = time.Minute
	pollInterval   = 100 * time.Millisecond
)

// Response is the recorded outcome of an operation.
type Response struct {
	Code        int    `json:"code"`
	ContentType string `json:"contentType,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

type Operation func(ctx context.Context) (*Response, error)

type Result struct {
	Response  *Response
	FromCache bool
}

type Manager interface {
	Execute(
		ctx context.Context,
		key string,
		ttl time.Duration,
		fn Operation,
	) (*Result, error)
}

type manager struct {
	store   Store
	lockTTL time.Duration
	log     *slog.Logger
}

func NewManager(store Store, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}

	return &manager{
		store:   store,
		lockTTL: DefaultLockTTL,
		log:     log,
	}
}

// Execute runs fn at most once per key within ttl. A concurrent call with
// the same key waits briefly for the first to finish and replays its
// response, or fails with ErrRequestInProgress. A failed fn records nothing,
// so the key can be retried. A nil response is not recorded either.
func (m *manager) Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if fn == nil {
		return nil, errors.New("operation fn cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	waited := time.Duration(0)
	for {
		record, err := m.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if record != nil && record.Status == StatusCompleted {
			return &Result{Response: record.Response, FromCache: true}, nil
		}

		locked, err := m.store.Lock(ctx, key, m.lockTTL)
		if err != nil {
			return nil, err
		}
		if locked {
			break
		}

		if waited >= m.lockTTL {
			return nil, ErrRequestInProgress
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
			waited += pollInterval
		}
	}

	defer func() {
		if err := m.store.ReleaseLock(context.WithoutCancel(ctx), key); err != nil {
			m.log.Warn("failed to release idempotency lock", slog.String("key", key), slog.Any("error", err))
		}
	}()

	// the previous holder may have finished between Get and Lock
	record, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if record != nil && record.Status == StatusCompleted {
		return &Result{Response: record.Response, FromCache: true}, nil
	}

	resp, err := fn(ctx)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return &Result{}, nil
	}

	if err := m.store.Set(ctx, key, &Record{Status: StatusCompleted, Response: resp}, ttl); err != nil {
		m.log.Warn("failed to record idempotent response", slog.String("key", key), slog.Any("error", err))
	}

	return &Result{Response: resp}, nil
}
