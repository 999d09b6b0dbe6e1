package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/Proton-105/clicker-social/internal/domain"
	apperrors "github.com/Proton-105/clicker-social/internal/errors"
	"github.com/Proton-105/clicker-social/internal/i18n"
	"github.com/Proton-105/clicker-social/internal/identity"
	"github.com/Proton-105/clicker-social/internal/ledger"
	"github.com/Proton-105/clicker-social/internal/repository"
	"github.com/Proton-105/clicker-social/internal/session"
)

type profileRequest struct {
	ProfileName  *string `json:"profileName" validate:"omitempty,max=32"`
	ProfileColor *string `json:"profileColor" validate:"omitempty,hexcolor"`
}

type meResponse struct {
	User  *domain.User         `json:"user"`
	Daily ledger.DailyStatus   `json:"daily"`
	Boxes []ledger.BoxProgress `json:"boxes"`
}

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func queryLimit(r *http.Request, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// trackerKey is the burst window key of the calling session.
func trackerKey(r *http.Request) string {
	return session.TrackerKey(identity.TokenFrom(r.Context()))
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := s.Users.Load(r.Context(), identity.UsernameFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.ok(w, r, http.StatusOK, "", meResponse{
		User:  u,
		Daily: s.Ledger.DailyStatus(u),
		Boxes: s.Ledger.BoxProgress(u),
	})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	u, err := s.Users.UpdateProfile(r.Context(), identity.UsernameFrom(r.Context()), repository.ProfilePatch{
		ProfileName:  req.ProfileName,
		ProfileColor: req.ProfileColor,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, r, http.StatusOK, s.translator(r).T("profile.updated"), u)
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	res, err := s.Ledger.RecordClick(r.Context(), trackerKey(r), identity.UsernameFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, r, http.StatusOK, "", res)
}

func (s *Server) handleDailyStatus(w http.ResponseWriter, r *http.Request) {
	u, err := s.Users.Load(r.Context(), identity.UsernameFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, r, http.StatusOK, "", s.Ledger.DailyStatus(u))
}

func (s *Server) handleClaimDaily(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := trackerKey(r)

	res, err := s.Ledger.ClaimDaily(ctx, identity.UsernameFrom(ctx), s.Ledger.LocalClicks(ctx, key))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	msg := i18n.Format(s.translator(r), "daily.claimed", money(res.Reward), res.Streak)
	s.ok(w, r, http.StatusOK, msg, res)
}

func (s *Server) handleBoxes(w http.ResponseWriter, r *http.Request) {
	u, err := s.Users.Load(r.Context(), identity.UsernameFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, r, http.StatusOK, "", s.Ledger.BoxProgress(u))
}

func (s *Server) handleOpenBox(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kind := domain.BoxKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		s.fail(w, r, apperrors.NewNotFoundError("box", string(kind)))
		return
	}

	res, err := s.Ledger.OpenBox(ctx, identity.UsernameFrom(ctx), kind, s.Ledger.LocalClicks(ctx, trackerKey(r)))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	msg := i18n.Format(s.translator(r), "boxes.opened", money(res.Box.Reward))
	s.ok(w, r, http.StatusOK, msg, res)
}
