// Package repository defines the document-store contract used by the game services.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Proton-105/clicker-social/internal/domain"
)

// ErrNotFound is returned when the addressed document does not exist.
var ErrNotFound = errors.New("repository: document not found")

// ErrDuplicate is returned when inserting a document whose id already exists.
var ErrDuplicate = errors.New("repository: duplicate document")

// TxFunc is the body of an atomic transaction. It may be invoked more than
// once if the backend retries on write conflicts, so it must not have side
// effects outside tx.
type TxFunc func(ctx context.Context, tx Tx) error

// Store is the document store. RunTransaction gives serializable
// read-modify-write over users and clans; the per-collection repositories
// perform individually atomic operations.
type Store interface {
	RunTransaction(ctx context.Context, fn TxFunc) error
	Users() UserRepository
	Clans() ClanRepository
	Notifications() NotificationRepository
	Messages() MessageRepository
	ClanChat() ChatRepository
	Moderation() ModerationRepository
}

// Tx is the view of the store inside a transaction.
type Tx interface {
	User(ctx context.Context, username string) (*domain.User, error)
	UpdateUser(ctx context.Context, username string, upd UserUpdate) error
	Clan(ctx context.Context, id string) (*domain.Clan, error)
	InsertClan(ctx context.Context, clan *domain.Clan) error
	UpdateClan(ctx context.Context, id string, upd ClanUpdate) error
	DeleteClan(ctx context.Context, id string) error
}

type ClanRepository interface {
	Get(ctx context.Context, id string) (*domain.Clan, error)
	SearchBySlug(ctx context.Context, prefix string, limit int) ([]domain.Clan, error)
}

// ClanUpdate lists membership changes applied atomically to one clan.
type ClanUpdate struct {
	AddMembers    []string
	RemoveMembers []string
	Owner         *string
}

// ApplyTo mirrors the store-side semantics of upd on an in-memory clan.
func (u ClanUpdate) ApplyTo(c *domain.Clan) {
	c.Members = addToSet(c.Members, u.AddMembers)
	c.Members = pull(c.Members, u.RemoveMembers)
	if u.Owner != nil {
		c.Owner = *u.Owner
	}
}

type NotificationRepository interface {
	Insert(ctx context.Context, n *domain.Notification) error
	ListFor(ctx context.Context, to string, limit int) ([]domain.Notification, error)
}

type MessageRepository interface {
	Insert(ctx context.Context, m *domain.DirectMessage) error
	ListFor(ctx context.Context, to string, limit int) ([]domain.DirectMessage, error)
}

type ChatRepository interface {
	Insert(ctx context.Context, m *domain.ChatMessage) error
	// Last returns up to limit most recent messages of the clan, oldest first.
	Last(ctx context.Context, clanID string, limit int) ([]domain.ChatMessage, error)
}

type ModerationRepository interface {
	Insert(ctx context.Context, e *domain.ModerationEntry) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
