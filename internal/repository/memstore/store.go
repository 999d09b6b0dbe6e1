// Package memstore is an in-process implementation of repository.Store.
// Transactions are serialized under one mutex and staged on copies, so a
// failed transaction leaves no trace.
package memstore

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Proton-105/clicker-social/internal/domain"
	"github.com/Proton-105/clicker-social/internal/repository"
)

type Store struct {
	mu            sync.Mutex
	users         map[string]*domain.User
	clans         map[string]*domain.Clan
	notifications []domain.Notification
	messages      []domain.DirectMessage
	chat          []domain.ChatMessage
	moderation    []domain.ModerationEntry
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users: make(map[string]*domain.User),
		clans: make(map[string]*domain.Clan),
	}
}

// RunTransaction runs fn against a staged copy and commits it only when fn
// returns nil. fn must not call back into s outside tx.
func (s *Store) RunTransaction(ctx context.Context, fn repository.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &tx{
		store:        s,
		users:        make(map[string]*domain.User),
		clans:        make(map[string]*domain.Clan),
		deletedClans: make(map[string]bool),
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}

	for id, u := range tx.users {
		s.users[id] = u
	}
	for id, c := range tx.clans {
		s.clans[id] = c
	}
	for id := range tx.deletedClans {
		delete(s.clans, id)
	}

	return nil
}

func (s *Store) Users() repository.UserRepository                 { return users{s} }
func (s *Store) Clans() repository.ClanRepository                 { return clans{s} }
func (s *Store) Notifications() repository.NotificationRepository { return notifications{s} }
func (s *Store) Messages() repository.MessageRepository           { return messages{s} }
func (s *Store) ClanChat() repository.ChatRepository              { return chat{s} }
func (s *Store) Moderation() repository.ModerationRepository      { return moderation{s} }

// ModerationEntries returns a snapshot of the moderation log.
func (s *Store) ModerationEntries() []domain.ModerationEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.moderation)
}

type tx struct {
	store        *Store
	users        map[string]*domain.User
	clans        map[string]*domain.Clan
	deletedClans map[string]bool
}

func (t *tx) user(username string) (*domain.User, bool) {
	if u, ok := t.users[username]; ok {
		return u, true
	}
	u, ok := t.store.users[username]
	if !ok {
		return nil, false
	}
	staged := u.Clone()
	t.users[username] = staged
	return staged, true
}

func (t *tx) User(_ context.Context, username string) (*domain.User, error) {
	u, ok := t.user(username)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u.Clone(), nil
}

func (t *tx) UpdateUser(_ context.Context, username string, upd repository.UserUpdate) error {
	u, ok := t.user(username)
	if !ok {
		return repository.ErrNotFound
	}
	upd.ApplyTo(u)
	return nil
}

func (t *tx) clan(id string) (*domain.Clan, bool) {
	if t.deletedClans[id] {
		return nil, false
	}
	if c, ok := t.clans[id]; ok {
		return c, true
	}
	c, ok := t.store.clans[id]
	if !ok {
		return nil, false
	}
	staged := c.Clone()
	t.clans[id] = staged
	return staged, true
}

func (t *tx) Clan(_ context.Context, id string) (*domain.Clan, error) {
	c, ok := t.clan(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c.Clone(), nil
}

func (t *tx) InsertClan(_ context.Context, clan *domain.Clan) error {
	if _, exists := t.clan(clan.ID); exists {
		return repository.ErrDuplicate
	}
	delete(t.deletedClans, clan.ID)
	t.clans[clan.ID] = clan.Clone()
	return nil
}

func (t *tx) UpdateClan(_ context.Context, id string, upd repository.ClanUpdate) error {
	c, ok := t.clan(id)
	if !ok {
		return repository.ErrNotFound
	}
	upd.ApplyTo(c)
	return nil
}

func (t *tx) DeleteClan(_ context.Context, id string) error {
	if _, ok := t.clan(id); !ok {
		return repository.ErrNotFound
	}
	delete(t.clans, id)
	t.deletedClans[id] = true
	return nil
}

type users struct{ s *Store }

func (r users) Get(_ context.Context, username string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[username]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u.Clone(), nil
}

func (r users) FindOne(_ context.Context, field repository.UserField, value string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, id := range sortedKeys(r.s.users) {
		u := r.s.users[id]
		if fieldValue(u, field) == value {
			return u.Clone(), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r users) FindByPrefix(_ context.Context, field repository.UserField, prefix string, limit int) ([]domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []domain.User
	for _, id := range sortedKeys(r.s.users) {
		u := r.s.users[id]
		if strings.HasPrefix(fieldValue(u, field), prefix) {
			out = append(out, *u.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return fieldValue(&out[i], field) < fieldValue(&out[j], field)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r users) Create(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.users[user.ID]; exists {
		return repository.ErrDuplicate
	}
	r.s.users[user.ID] = user.Clone()
	return nil
}

func (r users) Update(_ context.Context, username string, upd repository.UserUpdate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[username]
	if !ok {
		return repository.ErrNotFound
	}
	next := u.Clone()
	upd.ApplyTo(next)
	r.s.users[username] = next
	return nil
}

func (r users) SetProfile(_ context.Context, username string, patch repository.ProfilePatch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[username]
	if !ok {
		return repository.ErrNotFound
	}
	next := u.Clone()
	if patch.ProfileName != nil {
		next.ProfileName = *patch.ProfileName
	}
	if patch.ProfileColor != nil {
		next.ProfileColor = *patch.ProfileColor
	}
	r.s.users[username] = next
	return nil
}

func fieldValue(u *domain.User, field repository.UserField) string {
	switch field {
	case repository.FieldUsername:
		return u.Username
	case repository.FieldUsernameLower:
		return u.UsernameLower
	case repository.FieldProfileName:
		return u.ProfileName
	case repository.FieldEmail:
		return u.Email
	default:
		return ""
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type clans struct{ s *Store }

func (r clans) Get(_ context.Context, id string) (*domain.Clan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.clans[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c.Clone(), nil
}

func (r clans) SearchBySlug(_ context.Context, prefix string, limit int) ([]domain.Clan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []domain.Clan
	for _, id := range sortedKeys(r.s.clans) {
		c := r.s.clans[id]
		if strings.HasPrefix(c.Slug, prefix) {
			out = append(out, *c.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type notifications struct{ s *Store }

func (r notifications) Insert(_ context.Context, n *domain.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.notifications = append(r.s.notifications, *n)
	return nil
}

func (r notifications) ListFor(_ context.Context, to string, limit int) ([]domain.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []domain.Notification
	for i := len(r.s.notifications) - 1; i >= 0; i-- {
		if n := r.s.notifications[i]; n.To == to {
			out = append(out, n)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type messages struct{ s *Store }

func (r messages) Insert(_ context.Context, m *domain.DirectMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.messages = append(r.s.messages, *m)
	return nil
}

func (r messages) ListFor(_ context.Context, to string, limit int) ([]domain.DirectMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []domain.DirectMessage
	for i := len(r.s.messages) - 1; i >= 0; i-- {
		if m := r.s.messages[i]; m.To == to {
			out = append(out, m)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type chat struct{ s *Store }

func (r chat) Insert(_ context.Context, m *domain.ChatMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.chat = append(r.s.chat, *m)
	return nil
}

func (r chat) Last(_ context.Context, clanID string, limit int) ([]domain.ChatMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []domain.ChatMessage
	for _, m := range r.s.chat {
		if m.ClanID == clanID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type moderation struct{ s *Store }

func (r moderation) Insert(_ context.Context, e *domain.ModerationEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.moderation = append(r.s.moderation, *e)
	return nil
}

func (r moderation) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	before := len(r.s.moderation)
	r.s.moderation = slices.DeleteFunc(r.s.moderation, func(e domain.ModerationEntry) bool {
		return e.At.Before(cutoff)
	})
	return int64(before - len(r.s.moderation)), nil
}
