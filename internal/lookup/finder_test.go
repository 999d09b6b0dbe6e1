package lookup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/clicker-social/internal/domain"
	apperrors "github.com/Proton-105/clicker-social/internal/errors"
	"github.com/Proton-105/clicker-social/internal/repository"
	"github.com/Proton-105/clicker-social/internal/repository/memstore"
)

func seed(t *testing.T) *memstore.Store {
	t.Helper()

	ctx := context.Background()
	store := memstore.New()
	for _, u := range []*domain.User{
		domain.NewUser("neo", "The One", time.Now()),
		domain.NewUser("Trinity", "", time.Now()),
		domain.NewUser("morpheus", "Captain", time.Now()),
		domain.NewUser("mouse", "", time.Now()),
	} {
		require.NoError(t, store.Users().Create(ctx, u))
	}
	return store
}

func TestFinder_Find(t *testing.T) {
	finder := NewFinder(seed(t).Users())

	testCases := []struct {
		name       string
		identifier string
		want       string
		wantErr    error
	}{
		{name: "exact id", identifier: "neo", want: "neo"},
		{name: "lower-cased id", identifier: "NEO", want: "neo"},
		{name: "username lower", identifier: "trinity", want: "Trinity"},
		{name: "username exact", identifier: "Trinity", want: "Trinity"},
		{name: "profile name", identifier: "The One", want: "neo"},
		{name: "prefix", identifier: "morph", want: "morpheus"},
		{name: "ambiguous prefix takes first", identifier: "mo", want: "morpheus"},
		{name: "surrounding spaces", identifier: "  neo ", want: "neo"},
		{name: "empty", identifier: "   ", wantErr: apperrors.ErrNotFound},
		{name: "unknown", identifier: "smith", wantErr: apperrors.ErrNotFound},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			u, err := finder.Find(context.Background(), tc.identifier)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, u.ID)
		})
	}
}

type brokenUsers struct {
	repository.UserRepository
}

func (brokenUsers) Get(context.Context, string) (*domain.User, error) {
	return nil, errors.New("connection reset")
}

func TestFinder_StoreErrorPropagates(t *testing.T) {
	finder := NewFinder(brokenUsers{})

	_, err := finder.Find(context.Background(), "neo")
	assert.ErrorIs(t, err, apperrors.ErrTransientStore)
}
