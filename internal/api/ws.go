package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Proton-105/clicker-social/internal/identity"
	"github.com/Proton-105/clicker-social/internal/session"
)

const (
	wsReadLimit = 4 << 10
	wsIdle      = 90 * time.Second
)

// wsConn adapts a websocket connection to session.Conn and extends the read
// deadline on every inbound frame.
type wsConn struct {
	*websocket.Conn
}

func (c wsConn) ReadJSON(v any) error {
	if err := c.Conn.ReadJSON(v); err != nil {
		return err
	}
	return c.SetReadDeadline(time.Now().Add(wsIdle))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.Sessions == nil || s.Feeds == nil {
		http.Error(w, "live sessions are disabled", http.StatusNotImplemented)
		return
	}

	username := identity.UsernameFrom(r.Context())
	u, err := s.Users.Load(r.Context(), username)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.WarnContext(r.Context(), "websocket upgrade failed", slog.Any("error", err))
		return
	}
	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsIdle))

	sess := session.New(session.Config{
		Username: username,
		Token:    identity.TokenFrom(r.Context()),
		ClanID:   u.ClanID,
		Conn:     wsConn{conn},
		Source:   s.Feeds,
		Clans:    s.Clans,
		Clicks:   s.Ledger,
		Resetter: s.Ledger,
		Log:      s.Log,
	})

	ctx := r.Context()
	if err := s.Sessions.Serve(ctx, sess); err != nil && !isClosed(err) {
		s.Log.WarnContext(ctx, "websocket session ended", slog.String("session_id", sess.ID()), slog.Any("error", err))
	}
}

func isClosed(err error) bool {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway
	}
	return errors.Is(err, websocket.ErrCloseSent)
}
