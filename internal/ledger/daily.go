package ledger

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Proton-105/clicker-social/internal/calendar"
	"github.com/Proton-105/clicker-social/internal/domain"
	apperrors "github.com/Proton-105/clicker-social/internal/errors"
	"github.com/Proton-105/clicker-social/internal/repository"
	"github.com/Proton-105/clicker-social/pkg/metrics"
)

const (
	maxStreakTier = 7
	baseDaily     = 1.0
	streakStep    = 0.5
)

// ClaimResult describes a committed daily claim.
type ClaimResult struct {
	Day        calendar.DateKey `json:"day"`
	Streak     int              `json:"streak"`
	BaseReward float64          `json:"baseReward"`
	EarnFactor float64          `json:"earnFactor"`
	Reward     float64          `json:"reward"`
	NewBalance float64          `json:"newBalance"`
}

// BaseReward is the unscaled daily reward for a streak: 1.00 on day one,
// +0.50 per consecutive day, capped at day seven (4.00).
func BaseReward(streak int) float64 {
	tier := min(maxStreakTier, max(streak, 1))
	return round2(baseDaily + float64(tier-1)*streakStep)
}

// NextStreak is the streak a claim made today would produce.
func NextStreak(u *domain.User, today calendar.DateKey) int {
	if !u.LastDailyClaim.IsZero() && u.LastDailyClaim == today.Prev() {
		return u.Streak + 1
	}
	return 1
}

// ClaimDaily grants the daily reward at most once per calendar day. The
// check of lastDailyClaim and the balance increment commit together, so
// concurrent claims for the same day pay out exactly once.
func (l *Ledger) ClaimDaily(ctx context.Context, username string, localClicks int) (*ClaimResult, error) {
	var res ClaimResult
	var prevBalance float64

	err := l.store.RunTransaction(ctx, func(ctx context.Context, tx repository.Tx) error {
		u, err := loadUser(ctx, tx, username)
		if err != nil {
			return err
		}

		today := l.cal.Today()
		if u.LastDailyClaim == today {
			return apperrors.NewAlreadyClaimedError(today.String())
		}

		streak := NextStreak(u, today)
		base := BaseReward(streak)
		earn := l.earnFactor(u, localClicks)
		reward := scale(base, earn)

		upd := repository.UserUpdate{
			LastDailyClaim: &today,
			Streak:         &streak,
			BalanceDelta:   reward,
		}
		if err := tx.UpdateUser(ctx, username, upd); err != nil {
			return apperrors.NewStoreError(err)
		}

		prevBalance = u.Balance
		res = ClaimResult{Day: today, Streak: streak, BaseReward: base, EarnFactor: earn, Reward: reward}
		return nil
	})
	if err != nil {
		err = txError(err)
		if errors.Is(err, apperrors.ErrAlreadyClaimed) {
			metrics.RecordClaim("already_claimed", 0)
		} else {
			metrics.RecordClaim("error", 0)
		}
		return nil, err
	}

	res.NewBalance = l.afterCommit(ctx, username, round2(prevBalance+res.Reward))
	metrics.RecordClaim("ok", res.Reward)

	l.log.InfoContext(ctx, "daily reward claimed",
		slog.String("username", username),
		slog.String("day", res.Day.String()),
		slog.Int("streak", res.Streak),
		slog.Float64("reward", res.Reward),
		slog.Float64("earn_factor", res.EarnFactor),
	)
	return &res, nil
}

// DailyStatus is the read-only view of a player's daily reward state.
type DailyStatus struct {
	Today          calendar.DateKey `json:"today"`
	LastDailyClaim calendar.DateKey `json:"lastDailyClaim,omitempty"`
	Streak         int              `json:"streak"`
	ClaimedToday   bool             `json:"claimedToday"`
	NextStreak     int              `json:"nextStreak"`
	NextReward     float64          `json:"nextReward"`
}

func (l *Ledger) DailyStatus(u *domain.User) DailyStatus {
	today := l.cal.Today()
	status := DailyStatus{
		Today:          today,
		LastDailyClaim: u.LastDailyClaim,
		Streak:         u.Streak,
		ClaimedToday:   u.LastDailyClaim == today,
	}
	if !status.ClaimedToday {
		status.NextStreak = NextStreak(u, today)
		status.NextReward = BaseReward(status.NextStreak)
	}
	return status
}
