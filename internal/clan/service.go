// Package clan manages clans, their membership and clan chat.
package clan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/Proton-105/clicker-social/internal/domain"
	apperrors "github.com/Proton-105/clicker-social/internal/errors"
	"github.com/Proton-105/clicker-social/internal/feed"
	"github.com/Proton-105/clicker-social/internal/i18n"
	"github.com/Proton-105/clicker-social/internal/notify"
	"github.com/Proton-105/clicker-social/internal/repository"
	"github.com/Proton-105/clicker-social/internal/social"
	"github.com/Proton-105/clicker-social/pkg/metrics"
)

const (
	MinNameLen = 3
	MaxNameLen = 32

	IDPrefix = "clan_"

	MaxHistory         = 500
	DefaultSearchLimit = 20
	MaxSearchLimit     = 50
)

type Deps struct {
	Store      repository.Store
	Notifier   notify.Notifier
	Publisher  feed.Publisher
	Refresher  feed.Refresher
	Translator i18n.Translator
	Log        *slog.Logger
	Now        func() time.Time
}

type Service struct {
	store     repository.Store
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
	return &Service{
		store:     d.Store,
		notifier:  d.Notifier,
		publisher: d.Publisher,
		refresher: d.Refresher,
		tr:        d.Translator,
		log:       d.Log,
		now:       d.Now,
	}
}

func newID() string {
	return IDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < MinNameLen || n > MaxNameLen {
		return "", apperrors.NewValidationError(fmt.Sprintf("clan name must be %d to %d characters", MinNameLen, MaxNameLen))
	}
	if slug.Make(name) == "" {
		return "", apperrors.NewValidationError("clan name needs at least one letter or digit")
	}
	return name, nil
}

func txUser(ctx context.Context, tx repository.Tx, username string) (*domain.User, error) {
	u, err := tx.User(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFoundError("user", username)
		}
		return nil, apperrors.NewStoreError(err)
	}
	return u, nil
}

func txClan(ctx context.Context, tx repository.Tx, id string) (*domain.Clan, error) {
	c, err := tx.Clan(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFoundError("clan", id)
		}
		return nil, apperrors.NewStoreError(err)
	}
	return c, nil
}

func txError(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.NewStoreError(err)
}

// Create founds a clan owned by me. A player belongs to at most one clan.
func (s *Service) Create(ctx context.Context, me, name string) (c *domain.Clan, err error) {
	defer func() { metrics.RecordSocial("clan_create", metrics.Result(err)) }()

	name, err = validateName(name)
	if err != nil {
		return nil, err
	}

	clan := &domain.Clan{
		ID:        newID(),
		Name:      name,
		Slug:      slug.Make(name),
		Owner:     me,
		Members:   []string{me},
		Invites:   []string{},
		CreatedAt: s.now().UTC(),
	}

	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx repository.Tx) error {
		u, err := txUser(ctx, tx, me)
		if err != nil {
			return err
		}
		if u.ClanID != "" {
			return apperrors.NewDuplicateMembershipError(fmt.Sprintf("%s is already in clan %s", me, u.ClanID))
		}

		if err := tx.InsertClan(ctx, clan); err != nil {
			return apperrors.NewStoreError(err)
		}
		upd := &repository.UserUpdate{}
		if err := tx.UpdateUser(ctx, me, *upd.SetClan(clan.ID)); err != nil {
			return apperrors.NewStoreError(err)
		}
		return nil
	})
	if err != nil {
		return nil, txError(err)
	}

	feed.Refresh(ctx, s.refresher, me)
	s.log.InfoContext(ctx, "clan created", slog.String("clan_id", clan.ID), slog.String("owner", me))
	return clan, nil
}

// Join adds me to clan id and notifies its owner.
func (s *Service) Join(ctx context.Context, me, id string) (c *domain.Clan, err error) {
	defer func() { metrics.RecordSocial("clan_join", metrics.Result(err)) }()

	var joined *domain.Clan
	var member *domain.User

	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx repository.Tx) error {
		clan, err := txClan(ctx, tx, id)
		if err != nil {
			return err
		}
		u, err := txUser(ctx, tx, me)
		if err != nil {
			return err
		}
		if clan.HasMember(me) {
			return apperrors.NewDuplicateMembershipError(fmt.Sprintf("%s is already a member of %s", me, id))
		}
		if u.ClanID != "" && u.ClanID != id {
			return apperrors.NewDuplicateMembershipError(fmt.Sprintf("%s is already in clan %s", me, u.ClanID))
		}

		if err := tx.UpdateClan(ctx, id, repository.ClanUpdate{AddMembers: []string{me}}); err != nil {
			return apperrors.NewStoreError(err)
		}
		upd := &repository.UserUpdate{}
		if err := tx.UpdateUser(ctx, me, *upd.SetClan(id)); err != nil {
			return apperrors.NewStoreError(err)
		}

		repository.ClanUpdate{AddMembers: []string{me}}.ApplyTo(clan)
		joined, member = clan, u
		return nil
	})
	if err != nil {
		return nil, txError(err)
	}

	if joined.Owner != me {
		notify.BestEffort(ctx, s.notifier, s.log, &domain.Notification{
			To:        joined.Owner,
			From:      me,
			Type:      domain.NotificationClanJoin,
			Message:   notify.Message(s.tr, domain.NotificationClanJoin, member.DisplayName()),
			CreatedAt: s.now().UTC(),
		})
	}
	feed.Refresh(ctx, s.refresher, me)
	return joined, nil
}

// Leave removes me from clan id. When the owner leaves, ownership passes
// to the first remaining member; the last member leaving deletes the clan.
func (s *Service) Leave(ctx context.Context, me, id string) (err error) {
	defer func() { metrics.RecordSocial("clan_leave", metrics.Result(err)) }()

	var deleted bool

	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx repository.Tx) error {
		clan, err := txClan(ctx, tx, id)
		if err != nil {
			return err
		}
		if !clan.HasMember(me) {
			return apperrors.NewNotFoundError("clan_member", me)
		}

		upd := repository.ClanUpdate{RemoveMembers: []string{me}}
		next := clan.Clone()
		upd.ApplyTo(next)

		switch {
		case len(next.Members) == 0:
			if err := tx.DeleteClan(ctx, id); err != nil {
				return apperrors.NewStoreError(err)
			}
			deleted = true
		default:
			if clan.Owner == me {
				owner := next.Members[0]
				upd.Owner = &owner
			}
			if err := tx.UpdateClan(ctx, id, upd); err != nil {
				return apperrors.NewStoreError(err)
			}
		}

		userUpd := &repository.UserUpdate{}
		if err := tx.UpdateUser(ctx, me, *userUpd.ClearClan()); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewStoreError(err)
		}
		return nil
	})
	if err != nil {
		return txError(err)
	}

	feed.Refresh(ctx, s.refresher, me)
	s.log.InfoContext(ctx, "clan left", slog.String("clan_id", id), slog.String("username", me), slog.Bool("deleted", deleted))
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Clan, error) {
	c, err := s.store.Clans().Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFoundError("clan", id)
		}
		return nil, apperrors.NewStoreError(err)
	}
	return c, nil
}

// Search matches query as an exact clan id, then as a slug prefix.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]domain.Clan, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	limit = min(limit, MaxSearchLimit)

	query = strings.TrimSpace(query)
	out := make([]domain.Clan, 0)

	if strings.HasPrefix(query, IDPrefix) {
		c, err := s.store.Clans().Get(ctx, query)
		switch {
		case err == nil:
			return append(out, *c), nil
		case !errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.NewStoreError(err)
		}
	}

	found, err := s.store.Clans().SearchBySlug(ctx, slug.Make(query), limit)
	if err != nil {
		return nil, apperrors.NewStoreError(err)
	}
	return append(out, found...), nil
}

// SendChat posts text to clan id on behalf of a member.
func (s *Service) SendChat(ctx context.Context, me, id, text string) (msg *domain.ChatMessage, err error) {
	defer func() { metrics.RecordSocial("clan_chat", metrics.Result(err)) }()

	text, err = social.CleanText(text)
	if err != nil {
		return nil, err
	}

	clan, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !clan.HasMember(me) {
		return nil, apperrors.NewNotFoundError("clan_member", me)
	}

	u, err := s.store.Users().Get(ctx, me)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFoundError("user", me)
		}
		return nil, apperrors.NewStoreError(err)
	}

	msg = &domain.ChatMessage{
		ID:        uuid.NewString(),
		ClanID:    id,
		From:      me,
		FromName:  u.DisplayName(),
		FromColor: u.Color(),
		Text:      text,
		Timestamp: s.now().UTC(),
	}
	if err := s.store.ClanChat().Insert(ctx, msg); err != nil {
		return nil, apperrors.NewStoreError(err)
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, feed.KindClan, id, feed.TypeClanChat, msg); err != nil {
			apperrors.SideEffect(ctx, s.log, "clan_chat.feed", err)
		}
	}
	return msg, nil
}

// History returns up to limit of the clan's latest messages, oldest first.
func (s *Service) History(ctx context.Context, id string, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 || limit > MaxHistory {
		limit = MaxHistory
	}
	items, err := s.store.ClanChat().Last(ctx, id, limit)
	if err != nil {
		return nil, apperrors.NewStoreError(err)
	}
	if items == nil {
		items = []domain.ChatMessage{}
	}
	return items, nil
}
