// Package api exposes the game features over HTTP and WebSocket.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Proton-105/clicker-social/internal/clan"
	"github.com/Proton-105/clicker-social/internal/domain"
	apperrors "github.com/Proton-105/clicker-social/internal/errors"
	"github.com/Proton-105/clicker-social/internal/feed"
	"github.com/Proton-105/clicker-social/internal/i18n"
	"github.com/Proton-105/clicker-social/internal/idempotency"
	"github.com/Proton-105/clicker-social/internal/ledger"
	"github.com/Proton-105/clicker-social/internal/middleware"
	"github.com/Proton-105/clicker-social/internal/ratelimit"
	"github.com/Proton-105/clicker-social/internal/session"
	"github.com/Proton-105/clicker-social/internal/social"
	"github.com/Proton-105/clicker-social/internal/user"
	"github.com/Proton-105/clicker-social/pkg/logger"
)

const maxBodyBytes = 16 << 10

// Route names used for rate limit rules and idempotency scoping.
const (
	RouteDailyClaim = "daily_claim"
	RouteBoxOpen    = "box_open"
	RouteFriendReq  = "friend_request"
	RouteMessage    = "message"
	RouteClanChat   = "clan_chat"
)

// NotificationLister reads a player's notifications, newest first.
type NotificationLister interface {
	List(ctx context.Context, username string, limit int) ([]domain.Notification, error)
}

// Readiness reports the dependency checks behind /readyz.
type Readiness interface {
	Report(ctx context.Context) (map[string]string, error)
}

// Deps are the collaborators of the API server. Limiter, Idempotency,
// Sessions and Readiness are optional.
type Deps struct {
	Log            *slog.Logger
	Errors         *apperrors.Handler
	I18n           *i18n.Manager
	Auth           middleware.Authenticator
	Users          *user.Service
	Ledger         *ledger.Ledger
	Social         *social.Service
	Clans          *clan.Service
	Notifications  NotificationLister
	Feeds          feed.Source
	Sessions       *session.Registry
	Limiter        ratelimit.Limiter
	Rules          *ratelimit.Rules
	Idempotency    idempotency.Manager
	IdempotencyTTL time.Duration
	Readiness      Readiness
	AllowedOrigins []string
}

type Server struct {
	Deps

	validate *validator.Validate
	upgrader websocket.Upgrader
}

func NewServer(d Deps) *Server {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Errors == nil {
		d.Errors = apperrors.NewHandler(d.Log, false)
	}

	s := &Server{
		Deps:     d,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Router builds the HTTP handler with the full middleware chain.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(logger.Middleware)
	r.Use(stamp)
	r.Use(chimw.Recoverer)
	r.Use(middleware.New(s.Log))
	r.Use(middleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept-Language", middleware.IdempotencyKeyHeader, logger.CorrelationIDHeader},
		ExposedHeaders:   []string{logger.CorrelationIDHeader, middleware.ReplayedHeader, "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleLiveness)
	r.Get("/readyz", s.handleReadiness)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(s.Auth, s.fail))

		limits := s.rateLimits()
		if limits != nil {
			r.Use(limits.PerUser)
		}
		route := func(name string) []func(http.Handler) http.Handler {
			var chain []func(http.Handler) http.Handler
			if limits != nil {
				chain = append(chain, limits.Route(name))
			}
			return chain
		}
		once := func(name string) []func(http.Handler) http.Handler {
			chain := route(name)
			if s.Idempotency != nil {
				chain = append(chain, middleware.Idempotency(s.Idempotency, name, s.IdempotencyTTL, s.fail, s.Log))
			}
			return chain
		}

		r.Get("/me", s.handleMe)
		r.Patch("/me/profile", s.handleUpdateProfile)

		r.Post("/clicks", s.handleClick)
		r.Get("/daily", s.handleDailyStatus)
		r.With(once(RouteDailyClaim)...).Post("/daily/claim", s.handleClaimDaily)
		r.Get("/boxes", s.handleBoxes)
		r.With(once(RouteBoxOpen)...).Post("/boxes/{kind}/open", s.handleOpenBox)

		r.Get("/friends", s.handleFriends)
		r.With(route(RouteFriendReq)...).Post("/friends/requests", s.handleSendRequest)
		r.Post("/friends/requests/{from}/accept", s.handleAccept)
		r.Post("/friends/requests/{from}/reject", s.handleReject)
		r.Delete("/friends/{username}", s.handleRemoveFriend)

		r.Get("/messages", s.handleInbox)
		r.With(route(RouteMessage)...).Post("/messages", s.handleSendDirect)
		r.Get("/notifications", s.handleNotifications)

		r.Post("/clans", s.handleCreateClan)
		r.Get("/clans", s.handleSearchClans)
		r.Get("/clans/{id}", s.handleGetClan)
		r.Post("/clans/{id}/join", s.handleJoinClan)
		r.Post("/clans/{id}/leave", s.handleLeaveClan)
		r.Get("/clans/{id}/chat", s.handleClanHistory)
		r.With(route(RouteClanChat)...).Post("/clans/{id}/chat", s.handleSendClanChat)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

func (s *Server) rateLimits() *middleware.RateLimitMiddleware {
	if s.Limiter == nil || s.Rules == nil || !s.Rules.Enabled() {
		return nil
	}
	return middleware.NewRateLimitMiddleware(s.Limiter, s.Rules, s.fail, s.Log)
}

func (s *Server) origins() []string {
	if len(s.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.AllowedOrigins
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.origins() {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.ok(w, r, http.StatusOK, "", map[string]string{"status": "alive"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.Readiness == nil {
		s.ok(w, r, http.StatusOK, "", map[string]string{})
		return
	}

	results, err := s.Readiness.Report(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, Envelope{
			Success:    false,
			Message:    err.Error(),
			DurationMs: elapsedMs(r.Context()),
			Data:       results,
		})
		return
	}
	s.ok(w, r, http.StatusOK, "", results)
}
