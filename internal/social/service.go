// Package social implements the friend graph and direct messages. Each
// write is an individually atomic per-field update; no transaction spans
// both players.
package social

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Proton-105/clicker-social/internal/domain"
	apperrors "github.com/Proton-105/clicker-social/internal/errors"
	"github.com/Proton-105/clicker-social/internal/feed"
	"github.com/Proton-105/clicker-social/internal/i18n"
	"github.com/Proton-105/clicker-social/internal/lookup"
	"github.com/Proton-105/clicker-social/internal/notify"
	"github.com/Proton-105/clicker-social/internal/repository"
	"github.com/Proton-105/clicker-social/pkg/metrics"
)

const (
	MaxTextLen       = 500
	DefaultInboxSize = 50
)

type Deps struct {
	Store     repository.Store
	Finder    *lookup.Finder
	Notifier  notify.Notifier
	Publisher feed.Publisher
	Refresher feed.Refresher
	// Translator renders stored notification texts.
	Translator i18n.Translator
	Log        *slog.Logger
	Now        func() time.Time
}

type Service struct {
	store     repository.Store
	finder    *lookup.Finder
	notifier  notify.Notifier
	publisher feed.Publisher
	refresher feed.Refresher
	tr        i18n.Translator
	log       *slog.Logger
	now       func() time.Time
}

func NewService(d Deps) *Service {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Finder == nil {
		d.Finder = lookup.NewFinder(d.Store.Users())
	}

	return &Service{
		store:     d.Store,
		finder:    d.Finder,
		notifier:  d.Notifier,
		publisher: d.Publisher,
		refresher: d.Refresher,
		tr:        d.Translator,
		log:       d.Log,
		now:       d.Now,
	}
}

// Friend is a friend-list entry with display data.
type Friend struct {
	Username     string `json:"username"`
	DisplayName  string `json:"displayName"`
	ProfileColor string `json:"profileColor"`
}

type FriendsView struct {
	Friends  []Friend `json:"friends"`
	Incoming []string `json:"incoming"`
	Outgoing []string `json:"outgoing"`
}

func (s *Service) loadUser(ctx context.Context, username string) (*domain.User, error) {
	u, err := s.store.Users().Get(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFoundError("user", username)
		}
		return nil, apperrors.NewStoreError(err)
	}
	return u, nil
}

func (s *Service) update(ctx context.Context, username string, upd *repository.UserUpdate) error {
	if err := s.store.Users().Update(ctx, username, *upd); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFoundError("user", username)
		}
		return apperrors.NewStoreError(err)
	}
	return nil
}

func (s *Service) notify(ctx context.Context, typ domain.NotificationType, from *domain.User, to string) {
	notify.BestEffort(ctx, s.notifier, s.log, &domain.Notification{
		To:        to,
		From:      from.ID,
		Type:      typ,
		Message:   notify.Message(s.tr, typ, from.DisplayName()),
		CreatedAt: s.now().UTC(),
	})
}

func (s *Service) refresh(ctx context.Context, usernames ...string) {
	for _, u := range usernames {
		feed.Refresh(ctx, s.refresher, u)
	}
}

// SendRequest resolves identifier and files a friend request to that
// player. An unknown identifier fails with EntityNotFound and changes nothing.
// Repeating a pending request is a no-op.
func (s *Service) SendRequest(ctx context.Context, me, identifier string) (target *domain.User, err error) {
	defer func() { metrics.RecordSocial("friend_request", metrics.Result(err)) }()

	target, err = s.finder.Find(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if target.ID == me {
		return nil, apperrors.NewValidationError("you cannot befriend yourself")
	}

	sender, err := s.loadUser(ctx, me)
	if err != nil {
		return nil, err
	}
	if sender.IsFriend(target.ID) {
		return nil, apperrors.NewDuplicateMembershipError(fmt.Sprintf("%s is already a friend", target.ID))
	}
	alreadyPending := target.HasIncomingRequest(me)

	upd := &repository.UserUpdate{}
	if err := s.update(ctx, me, upd.AddTo(repository.ListRequestsSent, target.ID)); err != nil {
		return nil, err
	}
	upd = &repository.UserUpdate{}
	if err := s.update(ctx, target.ID, upd.AddTo(repository.ListRequestsReceived, me)); err != nil {
		return nil, err
	}

	if !alreadyPending {
		s.notify(ctx, domain.NotificationFriendRequest, sender, target.ID)
	}
	s.refresh(ctx, me, target.ID)

	s.log.InfoContext(ctx, "friend request sent", slog.String("from", me), slog.String("to", target.ID))
	return target, nil
}

// Accept turns a pending request from `from` into a friendship on both sides.
func (s *Service) Accept(ctx context.Context, me, from string) (err error) {
	defer func() { metrics.RecordSocial("friend_accept", metrics.Result(err)) }()

	receiver, err := s.loadUser(ctx, me)
	if err != nil {
		return err
	}
	if !receiver.HasIncomingRequest(from) {
		return apperrors.NewNotFoundError("friend_request", from)
	}

	upd := &repository.UserUpdate{}
	upd.PullFrom(repository.ListRequestsSent, me).AddTo(repository.ListFriends, me)
	if err := s.update(ctx, from, upd); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			stale := &repository.UserUpdate{}
			if cleanErr := s.update(ctx, me, stale.PullFrom(repository.ListRequestsReceived, from)); cleanErr != nil {
				apperrors.SideEffect(ctx, s.log, "friends.drop_stale_request", cleanErr)
			}
		}
		return err
	}

	upd = &repository.UserUpdate{}
	upd.PullFrom(repository.ListRequestsReceived, from).AddTo(repository.ListFriends, from)
	if err := s.update(ctx, me, upd); err != nil {
		return err
	}

	s.notify(ctx, domain.NotificationFriendAccept, receiver, from)
	s.refresh(ctx, me, from)
	return nil
}

// Reject drops a pending request from `from`. Rejecting twice is a no-op.
func (s *Service) Reject(ctx context.Context, me, from string) (err error) {
	defer func() { metrics.RecordSocial("friend_reject", metrics.Result(err)) }()

	upd := &repository.UserUpdate{}
	if err := s.update(ctx, me, upd.PullFrom(repository.ListRequestsReceived, from)); err != nil {
		return err
	}

	upd = &repository.UserUpdate{}
	if err := s.update(ctx, from, upd.PullFrom(repository.ListRequestsSent, me)); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return err
	}

	s.refresh(ctx, me, from)
	return nil
}

// Remove ends a friendship on both sides.
func (s *Service) Remove(ctx context.Context, me, other string) (err error) {
	defer func() { metrics.RecordSocial("friend_remove", metrics.Result(err)) }()

	upd := &repository.UserUpdate{}
	if err := s.update(ctx, me, upd.PullFrom(repository.ListFriends, other)); err != nil {
		return err
	}

	upd = &repository.UserUpdate{}
	if err := s.update(ctx, other, upd.PullFrom(repository.ListFriends, me)); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return err
	}

	s.refresh(ctx, me, other)
	return nil
}

// Friends lists the player's friends with display data plus pending requests.
// Friends whose records vanished are skipped.
func (s *Service) Friends(ctx context.Context, me string) (*FriendsView, error) {
	u, err := s.loadUser(ctx, me)
	if err != nil {
		return nil, err
	}

	view := &FriendsView{
		Friends:  make([]Friend, 0, len(u.Friends)),
		Incoming: append([]string{}, u.FriendRequestsReceived...),
		Outgoing: append([]string{}, u.FriendRequestsSent...),
	}
	for _, name := range u.Friends {
		f, err := s.store.Users().Get(ctx, name)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				return nil, apperrors.NewStoreError(err)
			}
			continue
		}
		view.Friends = append(view.Friends, Friend{Username: f.ID, DisplayName: f.DisplayName(), ProfileColor: f.Color()})
	}
	return view, nil
}

// SendDirect delivers a private message to a friend.
func (s *Service) SendDirect(ctx context.Context, me, to, text string) (msg *domain.DirectMessage, err error) {
	defer func() { metrics.RecordSocial("direct_message", metrics.Result(err)) }()

	text, err = CleanText(text)
	if err != nil {
		return nil, err
	}

	sender, err := s.loadUser(ctx, me)
	if err != nil {
		return nil, err
	}
	if !sender.IsFriend(to) {
		return nil, apperrors.NewNotFoundError("friend", to)
	}

	msg = &domain.DirectMessage{
		ID:        uuid.NewString(),
		From:      me,
		FromName:  sender.DisplayName(),
		To:        to,
		Text:      text,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Messages().Insert(ctx, msg); err != nil {
		return nil, apperrors.NewStoreError(err)
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, feed.KindInbox, to, feed.TypeDirect, msg); err != nil {
			apperrors.SideEffect(ctx, s.log, "direct_message.feed", err)
		}
	}
	return msg, nil
}

// Inbox returns the latest direct messages addressed to the player.
func (s *Service) Inbox(ctx context.Context, me string, limit int) ([]domain.DirectMessage, error) {
	if limit <= 0 || limit > DefaultInboxSize {
		limit = DefaultInboxSize
	}
	items, err := s.store.Messages().ListFor(ctx, me, limit)
	if err != nil {
		return nil, apperrors.NewStoreError(err)
	}
	return items, nil
}

// CleanText trims a chat or direct message and enforces 1..500 characters.
func CleanText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperrors.NewValidationError("message is empty")
	}
	if utf8.RuneCountInString(text) > MaxTextLen {
		return "", apperrors.NewValidationError(fmt.Sprintf("message is longer than %d characters", MaxTextLen))
	}
	return text, nil
}
