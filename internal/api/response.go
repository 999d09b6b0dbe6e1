package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/Proton-105/clicker-social/internal/errors"
	"github.com/Proton-105/clicker-social/internal/i18n"
)

// Envelope wraps every JSON response.
type Envelope struct {
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"durationMs"`
	Data       any    `json:"data,omitempty"`
}

type startKey struct{}

func stamp(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), startKey{}, time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func elapsedMs(ctx context.Context) int64 {
	start, ok := ctx.Value(startKey{}).(time.Time)
	if !ok {
		return 0
	}
	return time.Since(start).Milliseconds()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) ok(w http.ResponseWriter, r *http.Request, status int, message string, data any) {
	writeJSON(w, status, Envelope{
		Success:    true,
		Message:    message,
		DurationMs: elapsedMs(r.Context()),
		Data:       data,
	})
}

// fail is the middleware.ErrorWriter of the API: it logs err through the
// error handler and answers with a localized message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	msg, _ := s.Errors.Handle(r.Context(), err, s.translator(r))
	writeJSON(w, statusFor(err), Envelope{
		Success:    false,
		Message:    msg,
		DurationMs: elapsedMs(r.Context()),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrAlreadyClaimed),
		errors.Is(err, apperrors.ErrDuplicateMembership),
		errors.Is(err, apperrors.ErrBoxLocked):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, apperrors.ErrTransientStore),
		errors.Is(err, apperrors.ErrExternalService):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// translator picks the first supported language of Accept-Language.
func (s *Server) translator(r *http.Request) i18n.Translator {
	if s.I18n == nil {
		return nil
	}
	return s.I18n.Match(r.Header.Get("Accept-Language"))
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		s.Log.DebugContext(r.Context(), "bad request body", slog.Any("error", err))
		return apperrors.NewValidationError("malformed JSON body")
	}
	if err := s.validate.StructCtx(r.Context(), v); err != nil {
		return apperrors.NewValidationError(err.Error())
	}
	return nil
}
