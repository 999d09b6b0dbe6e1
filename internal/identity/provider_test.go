package identity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/clicker-social/internal/domain"
	apperrors "github.com/Proton-105/clicker-social/internal/errors"
	"github.com/Proton-105/clicker-social/internal/repository/memstore"
	"github.com/Proton-105/clicker-social/internal/user"
	"github.com/Proton-105/clicker-social/internal/usercache"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	mr       *miniredis.Miniredis
	store    *memstore.Store
	sessions *Sessions
	users    *user.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := memstore.New()
	return fixture{
		mr:       mr,
		store:    store,
		sessions: NewSessions(client, time.Hour),
		users:    user.NewService(store, usercache.NewCache(client, time.Minute), testLogger()),
	}
}

func TestSessions_Lifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, err := f.sessions.Create(ctx, "neo")
	require.NoError(t, err)
	assert.Len(t, token, 64)
	assert.Equal(t, time.Hour, f.mr.TTL("session:"+token))

	username, err := f.sessions.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "neo", username)

	require.NoError(t, f.sessions.Revoke(ctx, token))
	_, err = f.sessions.Resolve(ctx, token)
	assert.ErrorIs(t, err, ErrUnknownSession)

	_, err = f.sessions.Resolve(ctx, "")
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestSessions_RevokeRunsHooks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, err := f.sessions.Create(ctx, "neo")
	require.NoError(t, err)

	var revoked []string
	f.sessions.OnRevoke(func(_ context.Context, tok string) error {
		revoked = append(revoked, tok)
		return nil
	})
	f.sessions.OnRevoke(func(context.Context, string) error {
		return errors.New("window store down")
	})

	err = f.sessions.Revoke(ctx, token)
	assert.ErrorContains(t, err, "window store down")
	assert.Equal(t, []string{token}, revoked)

	_, err = f.sessions.Resolve(ctx, token)
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestSessions_Expire(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, err := f.sessions.Create(ctx, "neo")
	require.NoError(t, err)

	f.mr.FastForward(2 * time.Hour)

	_, err = f.sessions.Resolve(ctx, token)
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestProvider_Authenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, err := f.sessions.Create(ctx, "neo")
	require.NoError(t, err)

	testCases := []struct {
		name        string
		devSessions bool
		token       string
		want        string
		wantErr     error
	}{
		{name: "valid session", token: token, want: "neo"},
		{name: "empty token", token: "  ", wantErr: apperrors.ErrNotAuthenticated},
		{name: "unknown token", token: "nope", wantErr: apperrors.ErrNotAuthenticated},
		{name: "dev token disabled", token: "dev:trinity", wantErr: apperrors.ErrNotAuthenticated},
		{name: "dev token enabled", devSessions: true, token: "dev:trinity", want: "trinity"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			provider := NewProvider(f.sessions, f.users, tc.devSessions, testLogger())

			got, err := provider.Authenticate(ctx, tc.token)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err = f.store.Users().Get(ctx, "trinity")
	assert.NoError(t, err, "dev session creates the user")
}

func TestProvider_CurrentUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Users().Create(ctx, domain.NewUser("neo", "Neo", time.Now())))

	provider := NewProvider(f.sessions, f.users, false, testLogger())

	_, err := provider.CurrentUser(ctx)
	assert.ErrorIs(t, err, apperrors.ErrNotAuthenticated)

	u, err := provider.CurrentUser(WithUsername(ctx, "neo", "tok"))
	require.NoError(t, err)
	assert.Equal(t, "Neo", u.ProfileName)

	_, err = provider.CurrentUser(WithUsername(ctx, "ghost", "tok"))
	assert.ErrorIs(t, err, apperrors.ErrNotAuthenticated)

	assert.Equal(t, "tok", TokenFrom(WithUsername(ctx, "neo", "tok")))
	assert.Empty(t, TokenFrom(ctx))
}
