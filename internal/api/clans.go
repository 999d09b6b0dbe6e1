package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Proton-105/clicker-social/internal/clan"
	"github.com/Proton-105/clicker-social/internal/identity"
)

type createClanRequest struct {
	Name string `json:"name" validate:"required"`
}

type chatRequest struct {
	Text string `json:"text" validate:"required"`
}

func (s *Server) handleCreateClan(w http.ResponseWriter, r *http.Request) {
	var req createClanRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	c, err := s.Clans.Create(r.Context(), identity.UsernameFrom(r.Context()), req.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, r, http.StatusCreated, s.translator(r).T("clans.created"), c)
}

func (s *Server) handleSearchClans(w http.ResponseWriter, r *http.Request) {
	found, err := s.Clans.Search(r.Context(), r.URL.Query().Get("q"), queryLimit(r, clan.DefaultSearchLimit))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, r, http.StatusOK, "", found)
}

func (s *Server) handleGetClan(w http.ResponseWriter, r *http.Request) {
	c, err := s.Clans.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, r, http.StatusOK, "", c)
}

func (s *Server) handleJoinClan(w http.ResponseWriter, r *http.Request) {
	c, err := s.Clans.Join(r.Context(), identity.UsernameFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, r, http.StatusOK, s.translator(r).T("clans.joined"), c)
}

func (s *Server) handleLeaveClan(w http.ResponseWriter, r *http.Request) {
	if err := s.Clans.Leave(r.Context(), identity.UsernameFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, r, http.StatusOK, s.translator(r).T("clans.left"), nil)
}

func (s *Server) handleClanHistory(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.Clans.History(r.Context(), chi.URLParam(r, "id"), queryLimit(r, clan.MaxHistory))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, r, http.StatusOK, "", msgs)
}

func (s *Server) handleSendClanChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	msg, err := s.Clans.SendChat(r.Context(), identity.UsernameFrom(r.Context()), chi.URLParam(r, "id"), req.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, r, http.StatusCreated, s.translator(r).T("clans.message_sent"), msg)
}
