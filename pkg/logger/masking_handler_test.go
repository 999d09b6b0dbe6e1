package logger

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Proton-105/clicker-social/pkg/config"
)

func TestMaskingHandler_MasksSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewMaskingHandler(slog.NewTextHandler(&buf, nil)))

	log.With(slog.String("token", "abc")).Info("login",
		slog.String("username", "neo"),
		slog.String("Password", "hunter2"),
		slog.Group("request", slog.String("authorization", "Bearer xyz")),
	)

	out := buf.String()
	assert.Contains(t, out, "username=neo")
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "abc")
	assert.NotContains(t, out, "Bearer xyz")
	assert.Contains(t, out, "request.authorization=***")
}

func TestMiddleware_CorrelationID(t *testing.T) {
	testCases := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "generates when missing", incoming: "", keep: false},
		{name: "replaces malformed", incoming: "not-a-uuid", keep: false},
		{name: "keeps valid", incoming: "9b2d4c0e-3b7a-4a57-8f43-7f5f0a3f6a11", keep: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = CorrelationIDFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.incoming != "" {
				req.Header.Set(CorrelationIDHeader, tc.incoming)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.NotEmpty(t, seen)
			assert.Equal(t, seen, rec.Header().Get(CorrelationIDHeader))
			if tc.keep {
				assert.Equal(t, tc.incoming, seen)
			} else {
				assert.NotEqual(t, tc.incoming, seen)
			}
		})
	}
}

func TestCorrelationIDFromContext_Empty(t *testing.T) {
	assert.Equal(t, "", CorrelationIDFromContext(context.Background()))
}

func TestNewHandler_FansOutWithSentryEnabled(t *testing.T) {
	testCases := []struct {
		name   string
		sentry bool
	}{
		{name: "stdout only", sentry: false},
		{name: "stdout and sentry", sentry: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			cfg := config.Config{
				Logger: config.LoggerConfig{Level: "info", Format: "text"},
				Sentry: config.SentryConfig{Enabled: tc.sentry},
			}
			log := slog.New(newHandler(cfg, &buf, slog.LevelInfo))

			log.With(slog.String("clan", "zion")).Error("claim failed", slog.String("token", "secret-token"))
			log.Debug("hidden")

			out := buf.String()
			assert.Contains(t, out, "claim failed")
			assert.Contains(t, out, "clan=zion")
			assert.NotContains(t, out, "secret-token")
			assert.NotContains(t, out, "hidden")
		})
	}
}
