package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Proton-105/clicker-social/internal/domain"
	apperrors "github.com/Proton-105/clicker-social/internal/errors"
	"github.com/Proton-105/clicker-social/internal/repository"
	"github.com/Proton-105/clicker-social/pkg/config"
	"github.com/Proton-105/clicker-social/pkg/metrics"
)

// BoxResult describes an opened loot box.
type BoxResult struct {
	Box         domain.Box `json:"box"`
	Rolled      int        `json:"rolled"`
	EarnFactor  float64    `json:"earnFactor"`
	NewBalance  float64    `json:"newBalance"`
	DailyClicks int64      `json:"dailyClicks"`
}

// BoxProgress is how far a player is from opening one kind of box.
type BoxProgress struct {
	Kind      domain.BoxKind `json:"kind"`
	Clicks    int64          `json:"clicks"`
	Threshold int64          `json:"threshold"`
	Percent   int            `json:"percent"`
	Openable  bool           `json:"openable"`
}

func (l *Ledger) boxConfig(kind domain.BoxKind) (config.BoxConfig, bool) {
	switch kind {
	case domain.BoxNormal:
		return l.boxes.Normal, true
	case domain.BoxBig:
		return l.boxes.Big, true
	default:
		return config.BoxConfig{}, false
	}
}

func (l *Ledger) roll(cfg config.BoxConfig) int {
	span := cfg.MaxReward - cfg.MinReward + 1
	if span <= 1 {
		return cfg.MinReward
	}
	return cfg.MinReward + l.intN(span)
}

// OpenBox spends threshold daily clicks on a box of kind and credits its
// reward scaled by the earn factor. The click deduction, the balance
// increment and the box history entry commit together.
func (l *Ledger) OpenBox(ctx context.Context, username string, kind domain.BoxKind, localClicks int) (*BoxResult, error) {
	cfg, ok := l.boxConfig(kind)
	if !ok {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown box kind %q", kind))
	}

	rolled := l.roll(cfg)
	boxID := uuid.NewString()

	var res BoxResult
	var prevBalance float64

	err := l.store.RunTransaction(ctx, func(ctx context.Context, tx repository.Tx) error {
		u, err := loadUser(ctx, tx, username)
		if err != nil {
			return err
		}

		if u.DailyClicks < cfg.Threshold {
			return apperrors.NewBoxLockedError(string(kind), u.DailyClicks, cfg.Threshold)
		}

		earn := l.earnFactor(u, localClicks)
		box := domain.Box{
			ID:        boxID,
			Kind:      kind,
			Reward:    scale(float64(rolled), earn),
			CreatedAt: l.cal.Now().UTC(),
		}

		upd := repository.UserUpdate{
			BalanceDelta:     box.Reward,
			DailyClicksDelta: -cfg.Threshold,
			PushBoxes:        []domain.Box{box},
		}
		if err := tx.UpdateUser(ctx, username, upd); err != nil {
			return apperrors.NewStoreError(err)
		}

		prevBalance = u.Balance
		res = BoxResult{
			Box:         box,
			Rolled:      rolled,
			EarnFactor:  earn,
			DailyClicks: u.DailyClicks - cfg.Threshold,
		}
		return nil
	})
	if err != nil {
		err = txError(err)
		result := "error"
		if errors.Is(err, apperrors.ErrBoxLocked) {
			result = "locked"
		}
		metrics.RecordBoxOpen(string(kind), result, 0)
		return nil, err
	}

	res.NewBalance = l.afterCommit(ctx, username, round2(prevBalance+res.Box.Reward))
	metrics.RecordBoxOpen(string(kind), "ok", res.Box.Reward)

	l.log.InfoContext(ctx, "loot box opened",
		slog.String("username", username),
		slog.String("kind", string(kind)),
		slog.Int("rolled", rolled),
		slog.Float64("reward", res.Box.Reward),
	)
	return &res, nil
}

// BoxProgress reports, per box kind, the daily clicks collected towards it.
func (l *Ledger) BoxProgress(u *domain.User) []BoxProgress {
	kinds := []domain.BoxKind{domain.BoxNormal, domain.BoxBig}
	out := make([]BoxProgress, 0, len(kinds))

	for _, kind := range kinds {
		cfg, _ := l.boxConfig(kind)
		p := BoxProgress{
			Kind:      kind,
			Clicks:    u.DailyClicks,
			Threshold: cfg.Threshold,
			Openable:  cfg.Threshold > 0 && u.DailyClicks >= cfg.Threshold,
		}
		if cfg.Threshold > 0 {
			p.Percent = int(min(100, max(0, u.DailyClicks)*100/cfg.Threshold))
		}
		out = append(out, p)
	}
	return out
}
