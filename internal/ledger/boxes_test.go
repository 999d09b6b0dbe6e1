package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/clicker-social/internal/domain"
	apperrors "github.com/Proton-105/clicker-social/internal/errors"
)

func TestOpenBox(t *testing.T) {
	testCases := []struct {
		name            string
		kind            domain.BoxKind
		dailyClicks     int64
		mutate          func(u *domain.User)
		wantErr         error
		wantReward      float64
		wantDailyClicks int64
	}{
		{name: "normal box", kind: domain.BoxNormal, dailyClicks: 450, wantReward: 5, wantDailyClicks: 50},
		{name: "big box", kind: domain.BoxBig, dailyClicks: 700, wantReward: 44, wantDailyClicks: 0},
		{name: "locked", kind: domain.BoxBig, dailyClicks: 699, wantErr: apperrors.ErrBoxLocked},
		{name: "unknown kind", kind: domain.BoxKind("golden"), dailyClicks: 1000, wantErr: apperrors.ErrValidation},
		{
			name: "suspicious player gets scaled reward", kind: domain.BoxNormal, dailyClicks: 400,
			mutate:     func(u *domain.User) { u.Behavior.SuspiciousEvents = intPtr(3) },
			wantReward: 3.2, wantDailyClicks: 0,
		},
		{
			name: "soft banned player still spends clicks", kind: domain.BoxNormal, dailyClicks: 400,
			mutate:     func(u *domain.User) { u.SoftBan.Active = true },
			wantReward: 0, wantDailyClicks: 0,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, newUser("neo", func(u *domain.User) {
				u.DailyClicks = tc.dailyClicks
				u.Balance = 1
				if tc.mutate != nil {
					tc.mutate(u)
				}
			}))
			ctx := context.Background()

			res, err := f.ledger.OpenBox(ctx, "neo", tc.kind, 0)

			u, getErr := f.store.Users().Get(ctx, "neo")
			require.NoError(t, getErr)

			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Equal(t, tc.dailyClicks, u.DailyClicks)
				assert.Empty(t, u.Boxes)
				assert.Equal(t, 1.0, u.Balance)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.wantReward, res.Box.Reward)
			assert.Equal(t, tc.kind, res.Box.Kind)
			assert.Equal(t, tc.wantDailyClicks, res.DailyClicks)
			assert.InDelta(t, 1+tc.wantReward, res.NewBalance, 1e-9)

			assert.Equal(t, tc.wantDailyClicks, u.DailyClicks)
			require.Len(t, u.Boxes, 1)
			assert.Equal(t, res.Box.ID, u.Boxes[0].ID)
			assert.InDelta(t, 1+tc.wantReward, u.Balance, 1e-9)
		})
	}
}

func TestRoll_StaysInRange(t *testing.T) {
	cfg := testBoxes().Big
	f := newFixture(t)

	f.ledger.intN = func(int) int { return 0 }
	assert.Equal(t, 5, f.ledger.roll(cfg))

	f.ledger.intN = func(n int) int { return n - 1 }
	assert.Equal(t, 44, f.ledger.roll(cfg))
}

func TestBoxProgress(t *testing.T) {
	f := newFixture(t)

	progress := f.ledger.BoxProgress(newUser("neo", func(u *domain.User) { u.DailyClicks = 500 }))
	require.Len(t, progress, 2)

	assert.Equal(t, BoxProgress{Kind: domain.BoxNormal, Clicks: 500, Threshold: 400, Percent: 100, Openable: true}, progress[0])
	assert.Equal(t, BoxProgress{Kind: domain.BoxBig, Clicks: 500, Threshold: 700, Percent: 71, Openable: false}, progress[1])
}
