package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/clicker-social/internal/domain"
	apperrors "github.com/Proton-105/clicker-social/internal/errors"
	"github.com/Proton-105/clicker-social/internal/feed"
	"github.com/Proton-105/clicker-social/internal/i18n"
	"github.com/Proton-105/clicker-social/internal/repository/memstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, kind feed.Kind, key, eventType string, data any) error {
	return m.Called(ctx, kind, key, eventType, data).Error(0)
}

type mockBus struct {
	mock.Mock
}

func (m *mockBus) Subject(parts ...string) string {
	return "notifications." + parts[0]
}

func (m *mockBus) Publish(ctx context.Context, subject string, data []byte) error {
	return m.Called(ctx, subject, data).Error(0)
}

func TestStoreNotifier_CreateAndList(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	publisher := &mockPublisher{}
	publisher.On("Publish", mock.Anything, feed.KindInbox, "trinity", feed.TypeNotification, mock.Anything).Return(nil).Once()

	notifier := NewStoreNotifier(store, publisher, testLogger())
	n := &domain.Notification{To: "trinity", From: "neo", Type: domain.NotificationFriendRequest, Message: "neo sent you a friend request"}

	require.NoError(t, notifier.Create(ctx, n))
	assert.NotEmpty(t, n.ID)
	assert.False(t, n.CreatedAt.IsZero())
	assert.True(t, n.Visible)

	items, err := notifier.List(ctx, "trinity", 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, domain.NotificationFriendRequest, items[0].Type)

	publisher.AssertExpectations(t)
}

func TestStoreNotifier_FeedFailureDoesNotFail(t *testing.T) {
	publisher := &mockPublisher{}
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down"))

	notifier := NewStoreNotifier(memstore.New(), publisher, testLogger())
	err := notifier.Create(context.Background(), &domain.Notification{To: "trinity", Type: domain.NotificationFriendAccept})
	assert.NoError(t, err)
}

func TestBusNotifier_PublishesOnTypedSubject(t *testing.T) {
	bus := &mockBus{}
	bus.On("Publish", mock.Anything, "notifications.clan_join", mock.Anything).Return(nil).Once()

	notifier := NewBusNotifier(bus, nil, testLogger())
	require.NoError(t, notifier.Create(context.Background(), &domain.Notification{To: "neo", Type: domain.NotificationClanJoin}))

	bus.AssertExpectations(t)
}

func TestBusNotifier_RetriesThenFails(t *testing.T) {
	bus := &mockBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("no responders"))

	notifier := NewBusNotifier(bus, nil, testLogger())
	err := notifier.Create(context.Background(), &domain.Notification{To: "neo", Type: domain.NotificationClanJoin})

	assert.ErrorIs(t, err, apperrors.ErrExternalService)
	bus.AssertNumberOfCalls(t, "Publish", apperrors.MaxRetries+1)
}

func TestBusNotifier_OpenBreakerSkipsPublish(t *testing.T) {
	bus := &mockBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("down"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	breaker := apperrors.NewCircuitBreaker(apperrors.BreakerSettings{MinRequests: 1, ErrorThreshold: 0.5}, nil)
	notifier := NewBusNotifier(bus, breaker, testLogger())

	_ = notifier.Create(ctx, &domain.Notification{Type: domain.NotificationClanJoin})
	err := notifier.Create(ctx, &domain.Notification{Type: domain.NotificationClanJoin})

	assert.ErrorIs(t, err, apperrors.ErrCircuitOpen)
	bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

type failingNotifier struct{ err error }

func (f failingNotifier) Create(context.Context, *domain.Notification) error { return f.err }

func TestMulti_JoinsErrors(t *testing.T) {
	errA := errors.New("a")
	multi := Multi{failingNotifier{}, nil, failingNotifier{err: errA}}

	err := multi.Create(context.Background(), &domain.Notification{})
	assert.ErrorIs(t, err, errA)

	assert.NoError(t, Multi{failingNotifier{}}.Create(context.Background(), &domain.Notification{}))
}

func TestBestEffort_SwallowsFailure(t *testing.T) {
	assert.NotPanics(t, func() {
		BestEffort(context.Background(), failingNotifier{err: errors.New("boom")}, testLogger(), &domain.Notification{Type: domain.NotificationFriendRequest})
		BestEffort(context.Background(), nil, testLogger(), &domain.Notification{})
	})
}

func TestMessage(t *testing.T) {
	manager, err := i18n.LoadFS(fstest.MapFS{
		"locales/en.yaml": {Data: []byte("notifications:\n  friend_accept: \"%s accepted your friend request\"\n")},
	}, "locales", "en")
	require.NoError(t, err)

	assert.Equal(t, "Neo accepted your friend request", Message(manager.Translator("en"), domain.NotificationFriendAccept, "Neo"))
	assert.Equal(t, "Neo", Message(nil, domain.NotificationFriendAccept, "Neo"))
}
