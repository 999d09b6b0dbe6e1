package user

import (
	"context"
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
	"github.com/Proton-105/clicker-social/internal/repository"
	"github.com/Proton-105/clicker-social/internal/repository/memstore"
	"github.com/Proton-105/clicker-social/internal/usercache"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(t *testing.T) (*Service, *memstore.Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := memstore.New()
	return NewService(store, usercache.NewCache(client, time.Minute), testLogger()), store, mr
}

func strPtr(s string) *string { return &s }

func TestService_LoadUsesCache(t *testing.T) {
	svc, store, mr := newService(t)
	ctx := context.Background()
	require.NoError(t, store.Users().Create(ctx, domain.NewUser("neo", "", time.Now())))

	u, err := svc.Load(ctx, "neo")
	require.NoError(t, err)
	assert.Equal(t, "neo", u.ID)
	assert.True(t, mr.Exists("usercache:neo"))

	require.NoError(t, store.Users().Update(ctx, "neo", repository.UserUpdate{BalanceDelta: 3}))

	cached, err := svc.Load(ctx, "neo")
	require.NoError(t, err)
	assert.Equal(t, 0.0, cached.Balance)

	svc.Invalidate(ctx, "neo")
	fresh, err := svc.Load(ctx, "neo")
	require.NoError(t, err)
	assert.Equal(t, 3.0, fresh.Balance)
}

func TestService_LoadMissing(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.Load(context.Background(), "ghost")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestService_GetOrCreate(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	created, err := svc.GetOrCreate(ctx, " Neo ", "The One")
	require.NoError(t, err)
	assert.Equal(t, "Neo", created.ID)
	assert.Equal(t, "neo", created.UsernameLower)

	again, err := svc.GetOrCreate(ctx, "Neo", "ignored")
	require.NoError(t, err)
	assert.Equal(t, "The One", again.ProfileName)

	_, err = store.Users().Get(ctx, "Neo")
	assert.NoError(t, err)

	_, err = svc.GetOrCreate(ctx, "", "")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestService_UpdateProfile(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	require.NoError(t, store.Users().Create(ctx, domain.NewUser("neo", "", time.Now())))

	testCases := []struct {
		name    string
		patch   repository.ProfilePatch
		wantErr error
	}{
		{name: "blank name", patch: repository.ProfilePatch{ProfileName: strPtr("   ")}, wantErr: apperrors.ErrValidation},
		{name: "bad color", patch: repository.ProfilePatch{ProfileColor: strPtr("red")}, wantErr: apperrors.ErrValidation},
		{name: "valid", patch: repository.ProfilePatch{ProfileName: strPtr(" Thomas "), ProfileColor: strPtr("#ff00AA")}},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			u, err := svc.UpdateProfile(ctx, "neo", tc.patch)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Thomas", u.ProfileName)
			assert.Equal(t, "#ff00AA", u.ProfileColor)
		})
	}

	_, err := svc.UpdateProfile(ctx, "ghost", repository.ProfilePatch{ProfileName: strPtr("x")})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
