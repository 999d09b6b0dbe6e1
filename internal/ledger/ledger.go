// Package ledger applies the reward payouts (daily claim, loot boxes) to a
// player's balance. Each payout is one store transaction.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Proton-105/clicker-social/internal/abuse"
	"github.com/Proton-105/clicker-social/internal/calendar"
	"github.com/Proton-105/clicker-social/internal/domain"
	apperrors "github.com/Proton-105/clicker-social/internal/errors"
	"github.com/Proton-105/clicker-social/internal/feed"
	"github.com/Proton-105/clicker-social/internal/repository"
	"github.com/Proton-105/clicker-social/pkg/config"
)

// Deps are the collaborators of a Ledger. Scorer, Tracker and Refresher are
// optional: without a scorer every earn factor is 1.0.
type Deps struct {
	Store     repository.Store
	Calendar  *calendar.Calendar
	Scorer    *abuse.Scorer
	Tracker   *abuse.Tracker
	Refresher feed.Refresher
	Boxes     config.BoxesConfig
	// IntN returns a uniform int in [0, n). Defaults to math/rand/v2.
	IntN func(n int) int
	Log  *slog.Logger
}

type Ledger struct {
	store     repository.Store
	cal       *calendar.Calendar
	scorer    *abuse.Scorer
	tracker   *abuse.Tracker
	refresher feed.Refresher
	boxes     config.BoxesConfig
	intN      func(n int) int
	log       *slog.Logger
}

func New(d Deps) *Ledger {
	if d.IntN == nil {
		d.IntN = rand.IntN
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}

	return &Ledger{
		store:     d.Store,
		cal:       d.Calendar,
		scorer:    d.Scorer,
		tracker:   d.Tracker,
		refresher: d.Refresher,
		boxes:     d.Boxes,
		intN:      d.IntN,
		log:       d.Log,
	}
}

func (l *Ledger) earnFactor(u *domain.User, localClicks int) float64 {
	if l.scorer == nil {
		return 1
	}
	return l.scorer.Score(u, localClicks).EarnFactor
}

// afterCommit re-reads the user for the authoritative balance and tells the
// refresher. fallback is used when the re-read fails.
func (l *Ledger) afterCommit(ctx context.Context, username string, fallback float64) float64 {
	balance := fallback
	if u, err := l.store.Users().Get(ctx, username); err != nil {
		apperrors.SideEffect(ctx, l.log, "ledger.reread", err)
	} else {
		balance = u.Balance
	}

	feed.Refresh(ctx, l.refresher, username)
	return balance
}

// txError keeps application errors raised inside a transaction and wraps
// everything else as a transient store failure.
func txError(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.NewStoreError(err)
}

func loadUser(ctx context.Context, tx repository.Tx, username string) (*domain.User, error) {
	u, err := tx.User(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFoundError("user", username)
		}
		return nil, apperrors.NewStoreError(err)
	}
	return u, nil
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func scale(amount, factor float64) float64 {
	return decimal.NewFromFloat(amount).Mul(decimal.NewFromFloat(factor)).Round(2).InexactFloat64()
}

// ClickResult is returned for every recorded click.
type ClickResult struct {
	Clicks      int64   `json:"clicks"`
	DailyClicks int64   `json:"dailyClicks"`
	LocalClicks int     `json:"localClicks"`
	CooldownMs  int64   `json:"cooldownMs"`
	EarnFactor  float64 `json:"earnFactor"`
}

// RecordClick counts one click for the player and returns the pacing for
// the next one. sessionKey scopes the burst window to one client session.
func (l *Ledger) RecordClick(ctx context.Context, sessionKey, username string) (*ClickResult, error) {
	local := 0
	if l.tracker != nil {
		count, err := l.tracker.Observe(ctx, sessionKey, username)
		if err != nil {
			apperrors.SideEffect(ctx, l.log, "ledger.click_window", err)
		}
		local = count
	}

	if err := l.store.Users().Update(ctx, username, repository.UserUpdate{ClicksDelta: 1, DailyClicksDelta: 1}); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFoundError("user", username)
		}
		return nil, apperrors.NewStoreError(err)
	}

	u, err := l.store.Users().Get(ctx, username)
	if err != nil {
		return nil, txError(err)
	}

	base := abuse.DefaultBaseCooldown
	if l.scorer != nil {
		base = l.scorer.Base()
	}
	score := abuse.Score(u, local, base)

	return &ClickResult{
		Clicks:      u.Clicks,
		DailyClicks: u.DailyClicks,
		LocalClicks: local,
		CooldownMs:  score.CooldownMillis(),
		EarnFactor:  score.EarnFactor,
	}, nil
}

// LocalClicks returns the clicks in the session's burst window, or 0 when
// no tracker is configured.
func (l *Ledger) LocalClicks(ctx context.Context, sessionKey string) int {
	if l.tracker == nil {
		return 0
	}
	n, err := l.tracker.Count(ctx, sessionKey)
	if err != nil {
		apperrors.SideEffect(ctx, l.log, "ledger.click_window", err)
		return 0
	}
	return n
}

// ResetClicks drops the session's burst window. It is a no-op without a
// tracker.
func (l *Ledger) ResetClicks(ctx context.Context, sessionKey string) error {
	if l == nil || l.tracker == nil {
		return nil
	}
	return l.tracker.Reset(ctx, sessionKey)
}

// Now exposes the ledger clock, mainly for the status views.
func (l *Ledger) Now() time.Time {
	return l.cal.Now()
}
