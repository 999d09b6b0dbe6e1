package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisBus publishes and subscribes feed events through Redis pub/sub.
type RedisBus struct {
	client *redis.Client
	log    *slog.Logger
	now    func() time.Time
}

var (
	_ Publisher = (*RedisBus)(nil)
	_ Source    = (*RedisBus)(nil)
)

func NewRedisBus(client *redis.Client, log *slog.Logger) *RedisBus {
	if log == nil {
		log = slog.Default()
	}
	return &RedisBus{client: client, log: log, now: time.Now}
}

func (b *RedisBus) Publish(ctx context.Context, kind Kind, key, eventType string, data any) error {
	var raw json.RawMessage
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("encode feed payload: %w", err)
		}
		raw = encoded
	}

	payload, err := json.Marshal(Event{Kind: kind, Key: key, Type: eventType, Data: raw, At: b.now().UTC()})
	if err != nil {
		return fmt.Errorf("encode feed event: %w", err)
	}

	if err := b.client.Publish(ctx, Channel(kind, key), payload).Err(); err != nil {
		return fmt.Errorf("publish feed event: %w", err)
	}
	return nil
}

// Subscribe blocks until Redis confirms the subscription.
func (b *RedisBus) Subscribe(ctx context.Context, kind Kind, key string) (Subscription, error) {
	channel := Channel(kind, key)
	pubsub := b.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		events: make(chan Event, 32),
		done:   make(chan struct{}),
	}
	go sub.pump(b.log, channel)
	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	events chan Event
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) Events() <-chan Event {
	return s.events
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}

func (s *redisSubscription) pump(log *slog.Logger, channel string) {
	defer close(s.events)

	for msg := range s.pubsub.Channel() {
		var evt Event
		if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
			log.Warn("dropping malformed feed event", slog.String("channel", channel), slog.Any("error", err))
			continue
		}

		select {
		case s.events <- evt:
		case <-s.done:
			return
		}
	}
}
