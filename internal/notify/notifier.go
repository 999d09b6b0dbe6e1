// Package notify delivers player notifications (friend requests, clan joins)
// to the store, the live inbox feed and the event bus.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Proton-105/clicker-social/internal/domain"
	apperrors "github.com/Proton-105/clicker-social/internal/errors"
	"github.com/Proton-105/clicker-social/internal/feed"
	"github.com/Proton-105/clicker-social/internal/i18n"
	"github.com/Proton-105/clicker-social/internal/repository"
	"github.com/Proton-105/clicker-social/pkg/metrics"
)

type Notifier interface {
	Create(ctx context.Context, n *domain.Notification) error
}

// StoreNotifier persists notifications and pushes them onto the recipient's inbox feed.
type StoreNotifier struct {
	store     repository.Store
	publisher feed.Publisher
	log       *slog.Logger
	now       func() time.Time
}

var _ Notifier = (*StoreNotifier)(nil)

func NewStoreNotifier(store repository.Store, publisher feed.Publisher, log *slog.Logger) *StoreNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &StoreNotifier{store: store, publisher: publisher, log: log, now: time.Now}
}

// Create fills ID, CreatedAt and Visible, inserts n and publishes it. A feed
// failure is logged; only the insert decides the result.
func (s *StoreNotifier) Create(ctx context.Context, n *domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	n.Visible = true

	if err := s.store.Notifications().Insert(ctx, n); err != nil {
		return apperrors.NewStoreError(err)
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, feed.KindInbox, n.To, feed.TypeNotification, n); err != nil {
			apperrors.SideEffect(ctx, s.log, "notify.feed", err)
		}
	}
	return nil
}

// List returns the most recent notifications addressed to username.
func (s *StoreNotifier) List(ctx context.Context, username string, limit int) ([]domain.Notification, error) {
	items, err := s.store.Notifications().ListFor(ctx, username, limit)
	if err != nil {
		return nil, apperrors.NewStoreError(err)
	}
	return items, nil
}

// Multi fans a notification out to every sink and joins their errors.
type Multi []Notifier

func (m Multi) Create(ctx context.Context, n *domain.Notification) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Create(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BestEffort sends n and logs a failure as a non-critical side effect. The
// caller's operation has already committed and is never rolled back.
func BestEffort(ctx context.Context, notifier Notifier, log *slog.Logger, n *domain.Notification) {
	if notifier == nil || n == nil {
		return
	}

	err := notifier.Create(ctx, n)
	metrics.RecordSocial("notify."+string(n.Type), metrics.Result(err))
	if err != nil {
		apperrors.SideEffect(ctx, log, fmt.Sprintf("notify.%s", n.Type), err)
	}
}

// Message renders the notification text for typ in the translator's
// language, with from as the acting player's display name.
func Message(tr i18n.Translator, typ domain.NotificationType, from string) string {
	if tr == nil {
		return from
	}
	return fmt.Sprintf(tr.T("notifications."+string(typ)), from)
}
