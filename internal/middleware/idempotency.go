package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	apperrors "github.com/Proton-105/clicker-social/internal/errors"
	"github.com/Proton-105/clicker-social/internal/identity"
	"github.com/Proton-105/clicker-social/internal/idempotency"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	ReplayedHeader       = "Idempotent-Replayed"
)

var errNotRecorded = errors.New("response not recorded")

// Idempotency makes a route execute at most once per Idempotency-Key and
// player. Only 2xx responses are recorded; a retry after a failure runs the
// handler again.
func Idempotency(manager idempotency.Manager, route string, ttl time.Duration, writeErr ErrorWriter, log *slog.Logger) func(http.Handler) http.Handler {
	if manager == nil {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	if log == nil {
		log = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := r.Header.Get(IdempotencyKeyHeader)
			username := identity.UsernameFrom(r.Context())
			if clientKey == "" || username == "" {
				next.ServeHTTP(w, r)
				return
			}

			var ran bool
			key := idempotency.RequestKey(username, route, clientKey)

			result, err := manager.Execute(r.Context(), key, ttl, func(ctx context.Context) (*idempotency.Response, error) {
				ran = true
				var body bytes.Buffer
				ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
				ww.Tee(&body)
				next.ServeHTTP(ww, r.WithContext(ctx))

				if ww.Status() < 200 || ww.Status() >= 300 {
					return nil, errNotRecorded
				}
				return &idempotency.Response{
					Code:        ww.Status(),
					ContentType: ww.Header().Get("Content-Type"),
					Body:        body.Bytes(),
				}, nil
			})

			switch {
			case err == nil && result.FromCache:
				replay(w, result.Response)
			case ran:
				if err != nil && !errors.Is(err, errNotRecorded) {
					log.WarnContext(r.Context(), "idempotent response not stored", slog.String("route", route), slog.Any("error", err))
				}
			case errors.Is(err, idempotency.ErrRequestInProgress):
				writeErr(w, r, apperrors.NewValidationError("a request with this Idempotency-Key is still in progress"))
			default:
				log.WarnContext(r.Context(), "idempotency store unavailable, serving without replay protection", slog.String("route", route), slog.Any("error", err))
				next.ServeHTTP(w, r)
			}
		})
	}
}

func replay(w http.ResponseWriter, resp *idempotency.Response) {
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(resp.Code)
	_, _ = w.Write(resp.Body)
}
