package user

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/Proton-105/clicker-social/internal/domain"
	apperrors "github.com/Proton-105/clicker-social/internal/errors"
	"github.com/Proton-105/clicker-social/internal/repository"
	"github.com/Proton-105/clicker-social/internal/usercache"
)

const maxProfileNameLen = 32

// Service provides read-through access to user records and the few
// profile writes that do not need a transaction.
type Service struct {
	store repository.Store
	cache *usercache.Cache
	log   *slog.Logger
	now   func() time.Time
}

// NewService constructs a new Service instance. cache may be nil.
func NewService(store repository.Store, cache *usercache.Cache, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, cache: cache, log: log, now: time.Now}
}

// Load returns the user record, preferring the cache. A missing user is
// EntityNotFound.
func (s *Service) Load(ctx context.Context, username string) (*domain.User, error) {
	if cached, err := s.cache.Get(ctx, username); err != nil {
		s.logError(ctx, "load.cache", username, err)
	} else if cached != nil {
		return cached, nil
	}

	return s.Reload(ctx, username)
}

// Reload reads the user from the store and refreshes the cache.
func (s *Service) Reload(ctx context.Context, username string) (*domain.User, error) {
	u, err := s.store.Users().Get(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFoundError("user", username)
		}
		s.logError(ctx, "reload", username, err)
		return nil, apperrors.NewStoreError(err)
	}

	if err := s.cache.Set(ctx, u); err != nil {
		apperrors.SideEffect(ctx, s.log, "usercache.set", err)
	}
	return u, nil
}

// GetOrCreate fetches a user or creates a fresh record when missing.
func (s *Service) GetOrCreate(ctx context.Context, username, profileName string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperrors.NewValidationError("username is required")
	}

	u, err := s.Load(ctx, username)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	newUser := domain.NewUser(username, profileName, s.now())
	if err := s.store.Users().Create(ctx, newUser); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return s.Reload(ctx, username)
		}
		s.logError(ctx, "get_or_create.create", username, err)
		return nil, apperrors.NewStoreError(err)
	}

	s.log.InfoContext(ctx, "user created", slog.String("username", username))
	return newUser, nil
}

// UpdateProfile merge-writes the non-contended profile fields.
func (s *Service) UpdateProfile(ctx context.Context, username string, patch repository.ProfilePatch) (*domain.User, error) {
	if patch.ProfileName != nil {
		name := strings.TrimSpace(*patch.ProfileName)
		if name == "" || len([]rune(name)) > maxProfileNameLen {
			return nil, apperrors.NewValidationError("profile name must be 1-32 characters")
		}
		patch.ProfileName = &name
	}
	if patch.ProfileColor != nil && !validColor(*patch.ProfileColor) {
		return nil, apperrors.NewValidationError("profile color must look like #RRGGBB")
	}
	if patch.IsZero() {
		return s.Load(ctx, username)
	}

	if err := s.store.Users().SetProfile(ctx, username, patch); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFoundError("user", username)
		}
		s.logError(ctx, "update_profile", username, err)
		return nil, apperrors.NewStoreError(err)
	}

	s.Invalidate(ctx, username)
	return s.Reload(ctx, username)
}

// Invalidate drops the cached record.
func (s *Service) Invalidate(ctx context.Context, username string) {
	if err := s.cache.Invalidate(ctx, username); err != nil {
		apperrors.SideEffect(ctx, s.log, "usercache.invalidate", err)
	}
}

func validColor(c string) bool {
	if len(c) != 7 || c[0] != '#' {
		return false
	}
	for _, r := range c[1:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

func (s *Service) logError(ctx context.Context, operation, username string, err error) {
	if s == nil || s.log == nil || err == nil {
		return
	}

	s.log.ErrorContext(ctx, "user service operation failed",
		slog.String("operation", operation),
		slog.String("username", username),
		slog.Any("error", err),
	)
}
