// Package abuse derives click cooldowns and payout multipliers from a
// player's moderation state, and detects click bursts.
package abuse

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/Proton-105/clicker-social/internal/domain"
)

const (
	DefaultBaseCooldown = 1500 * time.Millisecond
	MinCooldown         = 100 * time.Millisecond

	shadowBanMultiplier = 8
	softBanMultiplier   = 100
	suspicionStep       = 3
	stepPenalty         = 0.5
	perEventPenalty     = 0.12
	minEarnFactor       = 0.05
	burstClicks         = 8
	burstPenalty        = 0.6
)

// Result is the pacing applied to a player's next action and the fraction
// of every payout they actually receive.
type Result struct {
	Cooldown   time.Duration `json:"-"`
	EarnFactor float64       `json:"earnFactor"`
}

func (r Result) CooldownMillis() int64 {
	return r.Cooldown.Milliseconds()
}

// Score computes the cooldown and earn factor for u given its recent local
// click count. It is pure: the same inputs always give the same Result.
func Score(u *domain.User, localClicks int, base time.Duration) Result {
	if base <= 0 {
		base = DefaultBaseCooldown
	}

	if u != nil && u.ShadowBanned {
		return Result{Cooldown: base * shadowBanMultiplier, EarnFactor: 0}
	}
	if u != nil && u.SoftBan.Active {
		return Result{Cooldown: base * softBanMultiplier, EarnFactor: 0}
	}

	suspicious := u.SuspiciousEvents()
	multiplier := 1 + float64(suspicious/suspicionStep)*stepPenalty
	earn := math.Max(minEarnFactor, 1-float64(suspicious)*perEventPenalty)

	if localClicks >= burstClicks {
		multiplier++
		earn *= burstPenalty
	}

	ms := math.Round(float64(base.Milliseconds()) * multiplier)
	cooldown := time.Duration(ms) * time.Millisecond
	if cooldown < MinCooldown {
		cooldown = MinCooldown
	}

	return Result{Cooldown: cooldown, EarnFactor: clamp01(earn)}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Scorer applies Score with a base cooldown that can be swapped at runtime
// when the configuration is reloaded.
type Scorer struct {
	base atomic.Int64
}

func NewScorer(base time.Duration) *Scorer {
	s := &Scorer{}
	s.SetBase(base)
	return s
}

func (s *Scorer) SetBase(base time.Duration) {
	if base <= 0 {
		base = DefaultBaseCooldown
	}
	s.base.Store(int64(base))
}

func (s *Scorer) Base() time.Duration {
	return time.Duration(s.base.Load())
}

func (s *Scorer) Score(u *domain.User, localClicks int) Result {
	return Score(u, localClicks, s.Base())
}
