// Package lookup resolves whatever a player typed (username, display name,
// partial name) to one user record.
package lookup

import (
	"context"
	"errors"
	"strings"

	"github.com/Proton-105/clicker-social/internal/domain"
	apperrors "github.com/Proton-105/clicker-social/internal/errors"
	"github.com/Proton-105/clicker-social/internal/repository"
)

const prefixLimit = 3

type Finder struct {
	users repository.UserRepository
}

func NewFinder(users repository.UserRepository) *Finder {
	return &Finder{users: users}
}

// Find tries, in order: exact id, lower-cased id, usernameLower, username,
// profileName, then a usernameLower prefix match. The first hit wins.
func (f *Finder) Find(ctx context.Context, identifier string) (*domain.User, error) {
	raw := strings.TrimSpace(identifier)
	if raw == "" {
		return nil, apperrors.NewNotFoundError("user", identifier)
	}
	lower := strings.ToLower(raw)

	steps := []func() (*domain.User, error){
		func() (*domain.User, error) { return f.users.Get(ctx, raw) },
		func() (*domain.User, error) {
			if lower == raw {
				return nil, repository.ErrNotFound
			}
			return f.users.Get(ctx, lower)
		},
		func() (*domain.User, error) { return f.users.FindOne(ctx, repository.FieldUsernameLower, lower) },
		func() (*domain.User, error) { return f.users.FindOne(ctx, repository.FieldUsername, raw) },
		func() (*domain.User, error) { return f.users.FindOne(ctx, repository.FieldProfileName, raw) },
		func() (*domain.User, error) {
			matches, err := f.users.FindByPrefix(ctx, repository.FieldUsernameLower, lower, prefixLimit)
			if err != nil {
				return nil, err
			}
			if len(matches) == 0 {
				return nil, repository.ErrNotFound
			}
			return &matches[0], nil
		},
	}

	for _, step := range steps {
		u, err := step()
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewStoreError(err)
		}
	}

	return nil, apperrors.NewNotFoundError("user", raw)
}
