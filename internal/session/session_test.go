package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/clicker-social/internal/abuse"
	"github.com/Proton-105/clicker-social/internal/calendar"
	"github.com/Proton-105/clicker-social/internal/domain"
	apperrors "github.com/Proton-105/clicker-social/internal/errors"
	"github.com/Proton-105/clicker-social/internal/feed"
	"github.com/Proton-105/clicker-social/internal/ledger"
	"github.com/Proton-105/clicker-social/internal/ratelimit"
	"github.com/Proton-105/clicker-social/internal/repository/memstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeConn struct {
	in     chan Inbound
	out    chan Outbound
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan Inbound, 8),
		out:    make(chan Outbound, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadJSON(v any) error {
	select {
	case m := <-c.in:
		*v.(*Inbound) = m
		return nil
	case <-c.closed:
		return io.EOF
	}
}

func (c *fakeConn) WriteJSON(v any) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	case c.out <- v.(Outbound):
		return nil
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) next(t *testing.T) Outbound {
	t.Helper()

	select {
	case m := <-c.out:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound message")
		return Outbound{}
	}
}

type fakeSub struct {
	events chan feed.Event
	once   sync.Once
}

func (s *fakeSub) Events() <-chan feed.Event { return s.events }

func (s *fakeSub) Close() error {
	s.once.Do(func() { close(s.events) })
	return nil
}

type fakeSource struct {
	mu   sync.Mutex
	subs map[string]*fakeSub
}

func newFakeSource() *fakeSource {
	return &fakeSource{subs: make(map[string]*fakeSub)}
}

func (f *fakeSource) Subscribe(_ context.Context, kind feed.Kind, key string) (feed.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub := &fakeSub{events: make(chan feed.Event, 8)}
	f.subs[feed.Channel(kind, key)] = sub
	return sub, nil
}

func (f *fakeSource) emit(kind feed.Kind, key string, evt feed.Event) bool {
	f.mu.Lock()
	sub := f.subs[feed.Channel(kind, key)]
	f.mu.Unlock()
	if sub == nil {
		return false
	}
	sub.events <- evt
	return true
}

type clanTable map[string]*domain.Clan

func (c clanTable) Get(_ context.Context, id string) (*domain.Clan, error) {
	clan, ok := c[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("clan", id)
	}
	return clan, nil
}

type stubClicks struct{}

func (stubClicks) RecordClick(_ context.Context, sessionKey, _ string) (*ledger.ClickResult, error) {
	if sessionKey == "" {
		return nil, errors.New("missing session key")
	}
	return &ledger.ClickResult{Clicks: 1, DailyClicks: 1, LocalClicks: 1}, nil
}

func startSession(t *testing.T, cfg Config) (*Session, *fakeConn, chan error) {
	t.Helper()

	conn := newFakeConn()
	cfg.Conn = conn
	cfg.Log = testLogger()
	s := New(cfg)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()

	ready := conn.next(t)
	require.Equal(t, TypeReady, ready.Type)
	return s, conn, errCh
}

func TestSession_PingAndFeeds(t *testing.T) {
	source := newFakeSource()
	s, conn, errCh := startSession(t, Config{Username: "neo", Token: "tok", Source: source})

	conn.in <- Inbound{Type: TypePing}
	assert.Equal(t, TypePong, conn.next(t).Type)

	require.True(t, source.emit(feed.KindInbox, "neo", feed.Event{Kind: feed.KindInbox, Key: "neo", Type: feed.TypeDirect}))
	msg := conn.next(t)
	assert.Equal(t, feed.TypeDirect, msg.Type)

	_, ok := s.Feeds().Active(feed.KindUser)
	assert.True(t, ok)

	require.NoError(t, conn.Close())
	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}

	_, ok = s.Feeds().Active(feed.KindUser)
	assert.False(t, ok)
}

func TestSession_ClanWatch(t *testing.T) {
	clans := clanTable{
		"clan_zion":   {ID: "clan_zion", Members: []string{"neo"}},
		"clan_agents": {ID: "clan_agents", Members: []string{"smith"}},
	}
	s, conn, _ := startSession(t, Config{Username: "neo", Token: "tok", Source: newFakeSource(), Clans: clans})
	defer s.Close()

	conn.in <- Inbound{Type: TypeClanWatch, ClanID: "clan_agents"}
	msg := conn.next(t)
	require.Equal(t, TypeError, msg.Type)
	assert.Equal(t, apperrors.CodeNotFound, msg.Data.(map[string]string)["code"])

	conn.in <- Inbound{Type: TypeClanWatch, ClanID: "clan_zion"}
	conn.in <- Inbound{Type: TypePing}
	assert.Equal(t, TypePong, conn.next(t).Type)

	key, ok := s.Feeds().Active(feed.KindClan)
	require.True(t, ok)
	assert.Equal(t, "clan_zion", key)

	conn.in <- Inbound{Type: TypeClanUnwatch}
	conn.in <- Inbound{Type: TypePing}
	assert.Equal(t, TypePong, conn.next(t).Type)
	_, ok = s.Feeds().Active(feed.KindClan)
	assert.False(t, ok)
}

func TestSession_ClickUsesTrackerKey(t *testing.T) {
	s, conn, _ := startSession(t, Config{Username: "neo", Token: "tok", Source: newFakeSource(), Clicks: stubClicks{}})
	defer s.Close()

	assert.Equal(t, TrackerKey("tok"), s.TrackerKey())
	assert.NotEqual(t, TrackerKey("tok"), TrackerKey("other"))

	conn.in <- Inbound{Type: TypeClick}
	msg := conn.next(t)
	require.Equal(t, TypeClickResult, msg.Type)
	assert.Equal(t, int64(1), msg.Data.(*ledger.ClickResult).Clicks)
}

func TestSession_CloseResetsClickWindow(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.Users().Create(ctx, domain.NewUser("neo", "", time.Now())))

	cal, err := calendar.New("UTC")
	require.NoError(t, err)

	tracker := abuse.NewTracker(ratelimit.NewMemoryWindow(testLogger()), nil, 10*time.Second, 12, testLogger())
	led := ledger.New(ledger.Deps{Store: store, Calendar: cal, Tracker: tracker, Log: testLogger()})

	s, conn, errCh := startSession(t, Config{Username: "neo", Token: "tok", Source: newFakeSource(), Clicks: led, Resetter: led})

	for i := 0; i < 5; i++ {
		conn.in <- Inbound{Type: TypeClick}
		require.Equal(t, TypeClickResult, conn.next(t).Type)
	}
	require.Equal(t, 5, led.LocalClicks(ctx, s.TrackerKey()))

	require.NoError(t, conn.Close())
	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}

	count, err := tracker.Count(ctx, s.TrackerKey())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRegistry_PushProgress(t *testing.T) {
	reg := NewRegistry(func(_ context.Context, username string) (any, error) {
		return map[string]string{"for": username}, nil
	}, time.Hour, testLogger())

	conn := newFakeConn()
	s := New(Config{Username: "neo", Token: "tok", Conn: conn, Source: newFakeSource(), Log: testLogger()})

	done := make(chan error, 1)
	go func() { done <- reg.Serve(context.Background(), s) }()

	initial := []string{conn.next(t).Type, conn.next(t).Type}
	assert.ElementsMatch(t, []string{TypeReady, TypeBoxesProgress}, initial)
	assert.Eventually(t, func() bool { return reg.Count() == 1 }, time.Second, 10*time.Millisecond)

	reg.PushProgress(context.Background())
	msg := conn.next(t)
	assert.Equal(t, TypeBoxesProgress, msg.Type)
	assert.Equal(t, map[string]string{"for": "neo"}, msg.Data)

	require.NoError(t, reg.Shutdown())
	<-done
	assert.Equal(t, 0, reg.Count())
}
