package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Proton-105/clicker-social/internal/errors"
	"github.com/Proton-105/clicker-social/internal/identity"
	"github.com/Proton-105/clicker-social/internal/idempotency"
	"github.com/Proton-105/clicker-social/internal/ratelimit"
	"github.com/Proton-105/clicker-social/pkg/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeStatus maps errors to bare status codes so tests can assert on them.
func writeStatus(w http.ResponseWriter, _ *http.Request, err error) {
	switch {
	case errors.Is(err, apperrors.ErrNotAuthenticated):
		w.WriteHeader(http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrRateLimited):
		w.WriteHeader(http.StatusTooManyRequests)
	case errors.Is(err, apperrors.ErrValidation):
		w.WriteHeader(http.StatusConflict)
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}
}

type tokenTable map[string]string

func (t tokenTable) Authenticate(_ context.Context, token string) (string, error) {
	if u, ok := t[token]; ok {
		return u, nil
	}
	return "", apperrors.NewNotAuthenticatedError()
}

func asUser(r *http.Request, username string) *http.Request {
	return r.WithContext(identity.WithUsername(r.Context(), username, "tok-"+username))
}

func TestAuth(t *testing.T) {
	var seen string
	h := Auth(tokenTable{"abc": "neo"}, writeStatus)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = identity.UsernameFrom(r.Context())
	}))

	testCases := []struct {
		name       string
		header     string
		target     string
		wantStatus int
		wantUser   string
	}{
		{name: "bearer header", header: "Bearer abc", target: "/api/me", wantStatus: http.StatusOK, wantUser: "neo"},
		{name: "query token", target: "/api/ws?token=abc", wantStatus: http.StatusOK, wantUser: "neo"},
		{name: "unknown token", header: "Bearer nope", target: "/api/me", wantStatus: http.StatusUnauthorized},
		{name: "missing token", target: "/api/me", wantStatus: http.StatusUnauthorized},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()

			h.ServeHTTP(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)
			assert.Equal(t, tc.wantUser, seen)
		})
	}
}

func TestRateLimit_PerUserAndRoute(t *testing.T) {
	rules := ratelimit.NewRules(config.RateLimitConfig{
		Enabled:   true,
		Whitelist: []string{"admin"},
		PerUser:   config.RateLimitRule{Limit: 3, Window: "1m"},
		Routes:    map[string]config.RateLimitRule{"daily_claim": {Limit: 1, Window: "1m"}},
	})
	m := NewRateLimitMiddleware(ratelimit.NewLimiter(ratelimit.NewMemoryWindow(testLogger()), testLogger()), rules, writeStatus, testLogger())
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	perUser := m.PerUser(ok)
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		perUser.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodGet, "/", nil), "neo"))
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := httptest.NewRecorder()
	perUser.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodGet, "/", nil), "neo"))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	for i := 0; i < 5; i++ {
		rr := httptest.NewRecorder()
		perUser.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodGet, "/", nil), "admin"))
		require.Equal(t, http.StatusOK, rr.Code)
	}

	route := m.Route("daily_claim")(ok)
	rr = httptest.NewRecorder()
	route.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodPost, "/", nil), "trinity"))
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = httptest.NewRecorder()
	route.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodPost, "/", nil), "trinity"))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	unconfigured := m.Route("chat")(ok)
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		unconfigured.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodPost, "/", nil), "trinity"))
		require.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestIdempotency_ReplaysSuccess(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	manager := idempotency.NewManager(idempotency.NewRedisStore(client, testLogger()), testLogger())

	var calls atomic.Int32
	status := http.StatusOK
	h := Idempotency(manager, "daily_claim", time.Hour, writeStatus, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"n":1}`))
	}))

	do := func(key string) *httptest.ResponseRecorder {
		req := asUser(httptest.NewRequest(http.MethodPost, "/api/daily/claim", nil), "neo")
		if key != "" {
			req.Header.Set(IdempotencyKeyHeader, key)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	first := do("k1")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, `{"n":1}`, first.Body.String())
	assert.Empty(t, first.Header().Get(ReplayedHeader))

	second := do("k1")
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(ReplayedHeader))
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.Equal(t, int32(1), calls.Load())

	do("")
	assert.Equal(t, int32(2), calls.Load())

	status = http.StatusConflict
	failed := do("k2")
	assert.Equal(t, http.StatusConflict, failed.Code)
	assert.Equal(t, `{"n":1}`, failed.Body.String())
	do("k2")
	assert.Equal(t, int32(4), calls.Load())
}
