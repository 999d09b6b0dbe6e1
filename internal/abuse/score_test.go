package abuse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Proton-105/clicker-social/internal/domain"
)

func withSuspicious(n int) *domain.User {
	return &domain.User{Behavior: domain.Behavior{SuspiciousEvents: &n}}
}

func TestScore(t *testing.T) {
	legacy := 4
	zero := 0

	testCases := []struct {
		name         string
		user         *domain.User
		localClicks  int
		wantCooldown time.Duration
		wantEarn     float64
	}{
		{name: "clean user", user: &domain.User{}, wantCooldown: 1500 * time.Millisecond, wantEarn: 1},
		{name: "nil user", user: nil, wantCooldown: 1500 * time.Millisecond, wantEarn: 1},
		{name: "shadow banned", user: &domain.User{ShadowBanned: true}, localClicks: 20, wantCooldown: 12 * time.Second, wantEarn: 0},
		{name: "soft banned", user: &domain.User{SoftBan: domain.SoftBan{Active: true}}, wantCooldown: 150 * time.Second, wantEarn: 0},
		{name: "shadow ban wins over soft ban", user: &domain.User{ShadowBanned: true, SoftBan: domain.SoftBan{Active: true}}, wantCooldown: 12 * time.Second, wantEarn: 0},
		{name: "two events", user: withSuspicious(2), wantCooldown: 1500 * time.Millisecond, wantEarn: 0.76},
		{name: "three events step", user: withSuspicious(3), wantCooldown: 2250 * time.Millisecond, wantEarn: 0.64},
		{name: "many events floor", user: withSuspicious(10), wantCooldown: 3750 * time.Millisecond, wantEarn: 0.05},
		{name: "legacy counter", user: &domain.User{LegacySuspicious: &legacy}, wantCooldown: 2250 * time.Millisecond, wantEarn: 0.52},
		{name: "zero behavior counter uses legacy", user: &domain.User{Behavior: domain.Behavior{SuspiciousEvents: &zero}, LegacySuspicious: &legacy}, wantCooldown: 2250 * time.Millisecond, wantEarn: 0.52},
		{name: "burst penalty", user: &domain.User{}, localClicks: 8, wantCooldown: 3 * time.Second, wantEarn: 0.6},
		{name: "burst below threshold", user: &domain.User{}, localClicks: 7, wantCooldown: 1500 * time.Millisecond, wantEarn: 1},
		{name: "burst and suspicion", user: withSuspicious(3), localClicks: 12, wantCooldown: 3750 * time.Millisecond, wantEarn: 0.384},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := Score(tc.user, tc.localClicks, DefaultBaseCooldown)
			assert.Equal(t, tc.wantCooldown, got.Cooldown)
			assert.InDelta(t, tc.wantEarn, got.EarnFactor, 1e-9)
		})
	}
}

func TestScore_EarnFactorAlwaysInRange(t *testing.T) {
	for s := 0; s <= 50; s++ {
		for clicks := 0; clicks <= 20; clicks += 4 {
			got := Score(withSuspicious(s), clicks, DefaultBaseCooldown)
			assert.GreaterOrEqual(t, got.EarnFactor, 0.0)
			assert.LessOrEqual(t, got.EarnFactor, 1.0)
			assert.GreaterOrEqual(t, got.Cooldown, MinCooldown)
		}
	}
}

func TestScore_MinimumCooldown(t *testing.T) {
	got := Score(&domain.User{}, 0, 20*time.Millisecond)
	assert.Equal(t, MinCooldown, got.Cooldown)
}

func TestScorer_SetBase(t *testing.T) {
	s := NewScorer(0)
	assert.Equal(t, DefaultBaseCooldown, s.Base())

	s.SetBase(time.Second)
	assert.Equal(t, 2*time.Second, s.Score(&domain.User{}, 9).Cooldown)
}
