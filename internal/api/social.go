package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Proton-105/clicker-social/internal/identity"
	"github.com/Proton-105/clicker-social/internal/social"
)

const defaultNotificationLimit = 50

type friendRequest struct {
	Target string `json:"target" validate:"required"`
}

type directMessageRequest struct {
	To   string `json:"to" validate:"required"`
	Text string `json:"text" validate:"required"`
}

func (s *Server) handleFriends(w http.ResponseWriter, r *http.Request) {
	view, err := s.Social.Friends(r.Context(), identity.UsernameFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, r, http.StatusOK, "", view)
}

func (s *Server) handleSendRequest(w http.ResponseWriter, r *http.Request) {
	var req friendRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	target, err := s.Social.SendRequest(r.Context(), identity.UsernameFrom(r.Context()), req.Target)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, r, http.StatusOK, s.translator(r).T("friends.request_sent"), social.Friend{
		Username:     target.Username,
		DisplayName:  target.DisplayName(),
		ProfileColor: target.Color(),
	})
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	if err := s.Social.Accept(r.Context(), identity.UsernameFrom(r.Context()), chi.URLParam(r, "from")); err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, r, http.StatusOK, s.translator(r).T("friends.request_accepted"), nil)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	if err := s.Social.Reject(r.Context(), identity.UsernameFrom(r.Context()), chi.URLParam(r, "from")); err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, r, http.StatusOK, s.translator(r).T("friends.request_rejected"), nil)
}

func (s *Server) handleRemoveFriend(w http.ResponseWriter, r *http.Request) {
	if err := s.Social.Remove(r.Context(), identity.UsernameFrom(r.Context()), chi.URLParam(r, "username")); err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, r, http.StatusOK, s.translator(r).T("friends.removed"), nil)
}

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.Social.Inbox(r.Context(), identity.UsernameFrom(r.Context()), queryLimit(r, social.DefaultInboxSize))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, r, http.StatusOK, "", msgs)
}

func (s *Server) handleSendDirect(w http.ResponseWriter, r *http.Request) {
	var req directMessageRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	msg, err := s.Social.SendDirect(r.Context(), identity.UsernameFrom(r.Context()), req.To, req.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, r, http.StatusCreated, s.translator(r).T("messages.sent"), msg)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	list, err := s.Notifications.List(r.Context(), identity.UsernameFrom(r.Context()), queryLimit(r, defaultNotificationLimit))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, r, http.StatusOK, "", list)
}
