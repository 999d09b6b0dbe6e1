package middleware

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/Proton-105/clicker-social/internal/errors"
	"github.com/Proton-105/clicker-social/internal/identity"
	"github.com/Proton-105/clicker-social/internal/ratelimit"
)

// RateLimitMiddleware enforces per-user and per-route request limits.
type RateLimitMiddleware struct {
	limiter  ratelimit.Limiter
	rules    *ratelimit.Rules
	writeErr ErrorWriter
	log      *slog.Logger
}

// NewRateLimitMiddleware constructs a rate-limit middleware component.
func NewRateLimitMiddleware(limiter ratelimit.Limiter, rules *ratelimit.Rules, writeErr ErrorWriter, log *slog.Logger) *RateLimitMiddleware {
	if log == nil {
		log = slog.Default()
	}

	return &RateLimitMiddleware{
		limiter:  limiter,
		rules:    rules,
		writeErr: writeErr,
		log:      log,
	}
}

// PerUser applies the per-user rule to every authenticated request.
func (m *RateLimitMiddleware) PerUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, ok := m.subject(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		limit, window, err := m.rules.PerUserLimit()
		if err != nil {
			m.log.ErrorContext(r.Context(), "failed to load per-user rate limit", slog.String("username", username), slog.Any("error", err))
			next.ServeHTTP(w, r)
			return
		}

		if m.check(w, r, "user:"+username, limit, window) {
			next.ServeHTTP(w, r)
		}
	})
}

// Route applies the named route rule, if one is configured.
func (m *RateLimitMiddleware) Route(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, ok := m.subject(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			limit, window, found, err := m.rules.RouteLimit(route)
			if err != nil {
				m.log.ErrorContext(r.Context(), "failed to load route rate limit", slog.String("route", route), slog.Any("error", err))
			}
			if !found || err != nil {
				next.ServeHTTP(w, r)
				return
			}

			if m.check(w, r, "route:"+route+":"+username, limit, window) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

func (m *RateLimitMiddleware) subject(r *http.Request) (string, bool) {
	if m.limiter == nil || !m.rules.Enabled() {
		return "", false
	}
	username := identity.UsernameFrom(r.Context())
	if username == "" || m.rules.IsWhitelisted(username) {
		return "", false
	}
	return username, true
}

// check reports whether the request may proceed. Limiter failures fail open.
func (m *RateLimitMiddleware) check(w http.ResponseWriter, r *http.Request, key string, limit int, window time.Duration) bool {
	result, err := m.limiter.Check(r.Context(), key, limit, window)
	if err != nil && !errors.Is(err, ratelimit.ErrLimitExceeded) {
		m.log.WarnContext(r.Context(), "rate limiter error", slog.String("key", key), slog.Any("error", err))
		return true
	}

	if result != nil {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	}

	if errors.Is(err, ratelimit.ErrLimitExceeded) {
		retryAfter := int(math.Ceil(window.Seconds()))
		if result != nil {
			retryAfter = max(1, int(math.Ceil(time.Until(result.ResetAt).Seconds())))
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

		m.log.WarnContext(r.Context(), "rate limit exceeded", slog.String("key", key))
		m.writeErr(w, r, apperrors.NewRateLimitError(retryAfter))
		return false
	}
	return true
}
