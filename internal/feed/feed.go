// Package feed carries live change events (record updates, inbox items,
// clan chat) between service instances over Redis pub/sub.
package feed

import (
	"context"
	"encoding/json"
	"time"
)

type Kind string

const (
	KindUser  Kind = "user"
	KindInbox Kind = "inbox"
	KindClan  Kind = "clan"
)

// Event types.
const (
	TypeUserUpdated  = "user.updated"
	TypeNotification = "notification"
	TypeDirect       = "message.direct"
	TypeClanChat     = "clan.chat"
)

// Event is one message on a feed. Data holds the JSON payload as published.
type Event struct {
	Kind Kind            `json:"kind"`
	Key  string          `json:"key"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
	At   time.Time       `json:"at"`
}

// Channel returns the pub/sub channel name of the feed kind/key.
func Channel(kind Kind, key string) string {
	return "feed:" + string(kind) + ":" + key
}

type Publisher interface {
	Publish(ctx context.Context, kind Kind, key, eventType string, data any) error
}

// Subscription delivers events until Close is called. Close is idempotent.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

type Source interface {
	Subscribe(ctx context.Context, kind Kind, key string) (Subscription, error)
}
