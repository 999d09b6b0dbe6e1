package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Proton-105/clicker-social/internal/identity"
)

// Authenticator maps a bearer token to a username.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// Auth resolves the request's session token and stores the username on
// the request context. Browsers cannot set headers on websocket upgrades,
// so a "token" query parameter is accepted as well.
func Auth(auth Authenticator, writeErr ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				token = r.URL.Query().Get("token")
			}

			username, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				writeErr(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(identity.WithUsername(r.Context(), username, token)))
		})
	}
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
