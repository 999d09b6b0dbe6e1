// Package session runs one live client connection: its feed subscriptions,
// click tracking key and outbound message queue.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Proton-105/clicker-social/internal/domain"
	apperrors "github.com/Proton-105/clicker-social/internal/errors"
	"github.com/Proton-105/clicker-social/internal/feed"
	"github.com/Proton-105/clicker-social/internal/idempotency"
	"github.com/Proton-105/clicker-social/internal/ledger"
)

// Client message types.
const (
	TypeClanWatch   = "clan.watch"
	TypeClanUnwatch = "clan.unwatch"
	TypeClick       = "click"
	TypePing        = "ping"
)

// Server message types. Feed events are forwarded with their own type.
const (
	TypeReady         = "session.ready"
	TypePong          = "pong"
	TypeError         = "error"
	TypeClickResult   = "click.result"
	TypeBoxesProgress = "boxes.progress"
)

const (
	outboundBuffer = 64
	resetTimeout   = 2 * time.Second
)

// Conn is the transport of a session, normally a websocket connection.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

type Inbound struct {
	Type   string `json:"type"`
	ClanID string `json:"clanId,omitempty"`
}

type Outbound struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// ClanReader looks up clans for clan.watch membership checks.
type ClanReader interface {
	Get(ctx context.Context, id string) (*domain.Clan, error)
}

type ClickRecorder interface {
	RecordClick(ctx context.Context, sessionKey, username string) (*ledger.ClickResult, error)
}

// ClickResetter forgets a session's click-burst window.
type ClickResetter interface {
	ResetClicks(ctx context.Context, sessionKey string) error
}

type Config struct {
	Username string
	Token    string
	ClanID   string
	Conn     Conn
	Source   feed.Source
	Clans    ClanReader
	Clicks   ClickRecorder
	// Resetter, when set, clears the burst window on Close.
	Resetter ClickResetter
	Log      *slog.Logger
}

type Session struct {
	id         string
	username   string
	trackerKey string
	clanID     string

	conn     Conn
	feeds    *feed.Controller
	clans    ClanReader
	clicks   ClickRecorder
	resetter ClickResetter
	log      *slog.Logger

	out       chan Outbound
	done      chan struct{}
	closeOnce sync.Once
}

func New(cfg Config) *Session {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	s := &Session{
		id:         uuid.NewString(),
		username:   cfg.Username,
		trackerKey: TrackerKey(cfg.Token),
		clanID:     cfg.ClanID,
		conn:       cfg.Conn,
		clans:      cfg.Clans,
		clicks:     cfg.Clicks,
		resetter:   cfg.Resetter,
		out:        make(chan Outbound, outboundBuffer),
		done:       make(chan struct{}),
	}
	s.log = cfg.Log.With(slog.String("session_id", s.id), slog.String("username", cfg.Username))
	s.feeds = feed.NewController(cfg.Source, s.forward, s.log)
	return s
}

// TrackerKey derives the click-burst tracking key of a session token.
func TrackerKey(token string) string {
	return idempotency.GenerateKey("clicks", token)
}

func (s *Session) ID() string         { return s.id }
func (s *Session) Username() string   { return s.username }
func (s *Session) TrackerKey() string { return s.trackerKey }

func (s *Session) Feeds() *feed.Controller { return s.feeds }

// Push queues msg for the client. A full queue drops msg.
func (s *Session) Push(msg Outbound) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.out <- msg:
		return true
	case <-s.done:
		return false
	default:
		s.log.Warn("session queue full, dropping message", slog.String("type", msg.Type))
		return false
	}
}

func (s *Session) forward(evt feed.Event) {
	s.Push(Outbound{Type: evt.Type, Data: evt})
}

// Run subscribes the session feeds and serves the connection until the
// client disconnects or ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.Close()

	if err := s.feeds.Start(ctx, feed.KindUser, s.username); err != nil {
		return err
	}
	if err := s.feeds.Start(ctx, feed.KindInbox, s.username); err != nil {
		return err
	}
	if s.clanID != "" {
		if err := s.feeds.Start(ctx, feed.KindClan, s.clanID); err != nil {
			s.log.WarnContext(ctx, "clan feed unavailable", slog.String("clan_id", s.clanID), slog.Any("error", err))
		}
	}

	go s.writeLoop()
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	s.Push(Outbound{Type: TypeReady, Data: map[string]string{"sessionId": s.id, "username": s.username}})

	for {
		var msg Inbound
		if err := s.conn.ReadJSON(&msg); err != nil {
			select {
			case <-s.done:
				return nil
			default:
			}
			return err
		}
		s.handle(ctx, msg)
	}
}

func (s *Session) handle(ctx context.Context, msg Inbound) {
	switch msg.Type {
	case TypePing:
		s.Push(Outbound{Type: TypePong})
	case TypeClanWatch:
		if err := s.watchClan(ctx, msg.ClanID); err != nil {
			s.pushError(err)
		}
	case TypeClanUnwatch:
		s.feeds.Stop(feed.KindClan)
	case TypeClick:
		if s.clicks == nil {
			return
		}
		res, err := s.clicks.RecordClick(ctx, s.trackerKey, s.username)
		if err != nil {
			s.pushError(err)
			return
		}
		s.Push(Outbound{Type: TypeClickResult, Data: res})
	default:
		s.pushError(apperrors.NewValidationError("unknown message type " + msg.Type))
	}
}

func (s *Session) watchClan(ctx context.Context, clanID string) error {
	if clanID == "" {
		return apperrors.NewValidationError("clanId is required")
	}
	if s.clans != nil {
		c, err := s.clans.Get(ctx, clanID)
		if err != nil {
			return err
		}
		if !c.HasMember(s.username) {
			return apperrors.NewNotFoundError("clan_member", s.username)
		}
	}
	if key, ok := s.feeds.Active(feed.KindClan); ok && key == clanID {
		return nil
	}
	if err := s.feeds.Start(ctx, feed.KindClan, clanID); err != nil {
		return apperrors.NewExternalServiceError("feed", err)
	}
	return nil
}

func (s *Session) pushError(err error) {
	payload := map[string]string{"message": err.Error()}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		payload["code"] = appErr.Code
	}
	s.Push(Outbound{Type: TypeError, Data: payload})
}

func (s *Session) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.out:
			if err := s.conn.WriteJSON(msg); err != nil {
				s.log.Debug("session write failed", slog.Any("error", err))
				s.Close()
				return
			}
		}
	}
}

// Close stops all feeds, the connection and the click window. It is
// idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.feeds.StopAll()
		if err := s.conn.Close(); err != nil {
			s.log.Debug("session close failed", slog.Any("error", err))
		}
		if s.resetter != nil {
			ctx, cancel := context.WithTimeout(context.Background(), resetTimeout)
			defer cancel()
			if err := s.resetter.ResetClicks(ctx, s.trackerKey); err != nil {
				apperrors.SideEffect(ctx, s.log, "session.reset_clicks", err)
			}
		}
	})
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
