package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/Proton-105/clicker-social/internal/domain"
	apperrors "github.com/Proton-105/clicker-social/internal/errors"
	"github.com/Proton-105/clicker-social/internal/user"
)

// DevTokenPrefix marks development tokens of the form "dev:<username>". They
// are accepted only when dev sessions are enabled and create the user on first use.
const DevTokenPrefix = "dev:"

type usernameKey struct{}
type tokenKey struct{}

// WithUsername stores the authenticated username and its token on ctx.
func WithUsername(ctx context.Context, username, token string) context.Context {
	ctx = context.WithValue(ctx, usernameKey{}, username)
	return context.WithValue(ctx, tokenKey{}, token)
}

// UsernameFrom returns the authenticated username, or "".
func UsernameFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(usernameKey{}).(string); ok {
		return v
	}
	return ""
}

// TokenFrom returns the session token the request was authenticated with.
func TokenFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(tokenKey{}).(string); ok {
		return v
	}
	return ""
}

// Provider answers "who is acting" for a request.
type Provider struct {
	sessions    *Sessions
	users       *user.Service
	devSessions bool
	log         *slog.Logger
}

func NewProvider(sessions *Sessions, users *user.Service, devSessions bool, log *slog.Logger) *Provider {
	if log == nil {
		log = slog.Default()
	}
	return &Provider{sessions: sessions, users: users, devSessions: devSessions, log: log}
}

// Authenticate maps a bearer token to a username.
func (p *Provider) Authenticate(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", apperrors.NewNotAuthenticatedError()
	}

	if p.devSessions && strings.HasPrefix(token, DevTokenPrefix) {
		name := strings.TrimPrefix(token, DevTokenPrefix)
		u, err := p.users.GetOrCreate(ctx, name, "")
		if err != nil {
			return "", err
		}
		return u.ID, nil
	}

	username, err := p.sessions.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, ErrUnknownSession) {
			return "", apperrors.NewNotAuthenticatedError()
		}
		return "", apperrors.NewExternalServiceError("sessions", err)
	}
	return username, nil
}

// CurrentUser returns the record of the authenticated player. A context
// without a session, or a session whose user is gone, is NotAuthenticated.
func (p *Provider) CurrentUser(ctx context.Context) (*domain.User, error) {
	username := UsernameFrom(ctx)
	if username == "" {
		return nil, apperrors.NewNotAuthenticatedError()
	}

	u, err := p.users.Load(ctx, username)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			p.log.WarnContext(ctx, "session refers to missing user", slog.String("username", username))
			return nil, apperrors.NewNotAuthenticatedError()
		}
		return nil, err
	}
	return u, nil
}
