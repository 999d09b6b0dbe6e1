package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/clicker-social/internal/abuse"
	"github.com/Proton-105/clicker-social/internal/calendar"
	"github.com/Proton-105/clicker-social/internal/domain"
	apperrors "github.com/Proton-105/clicker-social/internal/errors"
	"github.com/Proton-105/clicker-social/internal/ratelimit"
	"github.com/Proton-105/clicker-social/internal/repository"
	"github.com/Proton-105/clicker-social/internal/repository/memstore"
	"github.com/Proton-105/clicker-social/pkg/config"
)

var testNow = time.Date(2024, 3, 10, 18, 30, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCalendar(t *testing.T) *calendar.Calendar {
	t.Helper()

	cal, err := calendar.New("UTC")
	require.NoError(t, err)
	return cal.WithClock(func() time.Time { return testNow })
}

func testBoxes() config.BoxesConfig {
	return config.BoxesConfig{
		Normal: config.BoxConfig{Threshold: 400, MinReward: 1, MaxReward: 5},
		Big:    config.BoxConfig{Threshold: 700, MinReward: 5, MaxReward: 44},
	}
}

type countingRefresher struct {
	calls atomic.Int32
}

func (r *countingRefresher) Refresh(context.Context, string) {
	r.calls.Add(1)
}

type fixture struct {
	store     *memstore.Store
	ledger    *Ledger
	refresher *countingRefresher
}

func newFixture(t *testing.T, users ...*domain.User) fixture {
	t.Helper()

	store := memstore.New()
	for _, u := range users {
		require.NoError(t, store.Users().Create(context.Background(), u))
	}

	refresher := &countingRefresher{}
	l := New(Deps{
		Store:     store,
		Calendar:  testCalendar(t),
		Scorer:    abuse.NewScorer(abuse.DefaultBaseCooldown),
		Refresher: refresher,
		Boxes:     testBoxes(),
		IntN:      func(n int) int { return n - 1 },
		Log:       testLogger(),
	})
	return fixture{store: store, ledger: l, refresher: refresher}
}

func newUser(name string, mutate func(u *domain.User)) *domain.User {
	u := domain.NewUser(name, "", testNow.Add(-30*24*time.Hour))
	if mutate != nil {
		mutate(u)
	}
	return u
}

func intPtr(v int) *int { return &v }

func TestBaseReward(t *testing.T) {
	testCases := []struct {
		streak int
		want   float64
	}{
		{streak: 0, want: 1.00},
		{streak: 1, want: 1.00},
		{streak: 2, want: 1.50},
		{streak: 4, want: 2.50},
		{streak: 7, want: 4.00},
		{streak: 30, want: 4.00},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.want, BaseReward(tc.streak), "streak %d", tc.streak)
	}
}

func TestClaimDaily_Scenarios(t *testing.T) {
	const (
		today     = calendar.DateKey("2024-03-10")
		yesterday = calendar.DateKey("2024-03-09")
	)

	testCases := []struct {
		name        string
		mutate      func(u *domain.User)
		localClicks int
		wantStreak  int
		wantBase    float64
		wantEarn    float64
		wantReward  float64
	}{
		{
			name:       "first claim ever",
			wantStreak: 1, wantBase: 1.00, wantEarn: 1, wantReward: 1.00,
		},
		{
			name:       "continues streak from yesterday",
			mutate:     func(u *domain.User) { u.LastDailyClaim = yesterday; u.Streak = 3 },
			wantStreak: 4, wantBase: 2.50, wantEarn: 1, wantReward: 2.50,
		},
		{
			name:       "streak six reaches the cap",
			mutate:     func(u *domain.User) { u.LastDailyClaim = yesterday; u.Streak = 6 },
			wantStreak: 7, wantBase: 4.00, wantEarn: 1, wantReward: 4.00,
		},
		{
			name:       "long streak stays capped",
			mutate:     func(u *domain.User) { u.LastDailyClaim = yesterday; u.Streak = 20 },
			wantStreak: 21, wantBase: 4.00, wantEarn: 1, wantReward: 4.00,
		},
		{
			name:       "gap resets streak",
			mutate:     func(u *domain.User) { u.LastDailyClaim = "2024-03-07"; u.Streak = 5 },
			wantStreak: 1, wantBase: 1.00, wantEarn: 1, wantReward: 1.00,
		},
		{
			name:       "shadow banned earns nothing",
			mutate:     func(u *domain.User) { u.ShadowBanned = true; u.LastDailyClaim = yesterday; u.Streak = 2 },
			wantStreak: 3, wantBase: 2.00, wantEarn: 0, wantReward: 0,
		},
		{
			name:       "suspicious events scale the reward",
			mutate:     func(u *domain.User) { u.Behavior.SuspiciousEvents = intPtr(2) },
			wantStreak: 1, wantBase: 1.00, wantEarn: 0.76, wantReward: 0.76,
		},
		{
			name:        "click burst scales the reward",
			localClicks: 8,
			wantStreak:  1, wantBase: 1.00, wantEarn: 0.6, wantReward: 0.60,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, newUser("neo", func(u *domain.User) {
				u.Balance = 10
				if tc.mutate != nil {
					tc.mutate(u)
				}
			}))
			ctx := context.Background()

			res, err := f.ledger.ClaimDaily(ctx, "neo", tc.localClicks)
			require.NoError(t, err)

			assert.Equal(t, today, res.Day)
			assert.Equal(t, tc.wantStreak, res.Streak)
			assert.Equal(t, tc.wantBase, res.BaseReward)
			assert.InDelta(t, tc.wantEarn, res.EarnFactor, 1e-9)
			assert.Equal(t, tc.wantReward, res.Reward)
			assert.InDelta(t, 10+tc.wantReward, res.NewBalance, 1e-9)

			u, err := f.store.Users().Get(ctx, "neo")
			require.NoError(t, err)
			assert.Equal(t, today, u.LastDailyClaim)
			assert.Equal(t, tc.wantStreak, u.Streak)
			assert.InDelta(t, 10+tc.wantReward, u.Balance, 1e-9)
			assert.EqualValues(t, 1, f.refresher.calls.Load())
		})
	}
}

func TestClaimDaily_SameDayIsRejected(t *testing.T) {
	f := newFixture(t, newUser("neo", func(u *domain.User) {
		u.LastDailyClaim = "2024-03-10"
		u.Streak = 4
		u.Balance = 7.5
	}))
	ctx := context.Background()

	before, err := f.store.Users().Get(ctx, "neo")
	require.NoError(t, err)

	_, err = f.ledger.ClaimDaily(ctx, "neo", 0)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyClaimed)

	after, err := f.store.Users().Get(ctx, "neo")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Zero(t, f.refresher.calls.Load())
}

func TestClaimDaily_TwiceInOneDay(t *testing.T) {
	f := newFixture(t, newUser("neo", nil))
	ctx := context.Background()

	_, err := f.ledger.ClaimDaily(ctx, "neo", 0)
	require.NoError(t, err)

	_, err = f.ledger.ClaimDaily(ctx, "neo", 0)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyClaimed)

	u, err := f.store.Users().Get(ctx, "neo")
	require.NoError(t, err)
	assert.Equal(t, 1.0, u.Balance)
}

func TestClaimDaily_ConcurrentClaimsPayOnce(t *testing.T) {
	f := newFixture(t, newUser("neo", nil))
	ctx := context.Background()

	const workers = 32
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		rejected  atomic.Int32
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.ClaimDaily(ctx, "neo", 0)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, apperrors.ErrAlreadyClaimed):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, successes.Load())
	assert.EqualValues(t, workers-1, rejected.Load())

	u, err := f.store.Users().Get(ctx, "neo")
	require.NoError(t, err)
	assert.Equal(t, 1.0, u.Balance)
	assert.Equal(t, 1, u.Streak)
}

func TestClaimDaily_UnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.ClaimDaily(context.Background(), "ghost", 0)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Zero(t, f.refresher.calls.Load())
}

func TestClaimDaily_WithoutScorerOrRefresher(t *testing.T) {
	store := memstore.New()
	require.NoError(t, store.Users().Create(context.Background(), newUser("neo", func(u *domain.User) {
		u.ShadowBanned = true
	})))

	l := New(Deps{Store: store, Calendar: testCalendar(t), Boxes: testBoxes()})

	res, err := l.ClaimDaily(context.Background(), "neo", 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.EarnFactor)
	assert.Equal(t, 1.0, res.Reward)
}

type failingStore struct {
	*memstore.Store
}

func (failingStore) RunTransaction(context.Context, repository.TxFunc) error {
	return errors.New("write conflict")
}

func TestClaimDaily_StoreFailureIsTransient(t *testing.T) {
	l := New(Deps{Store: failingStore{memstore.New()}, Calendar: testCalendar(t), Boxes: testBoxes(), Log: testLogger()})

	_, err := l.ClaimDaily(context.Background(), "neo", 0)
	assert.ErrorIs(t, err, apperrors.ErrTransientStore)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.True(t, appErr.Retryable)
}

func TestDailyStatus(t *testing.T) {
	f := newFixture(t)

	claimed := f.ledger.DailyStatus(newUser("neo", func(u *domain.User) { u.LastDailyClaim = "2024-03-10"; u.Streak = 2 }))
	assert.True(t, claimed.ClaimedToday)
	assert.Zero(t, claimed.NextReward)

	pending := f.ledger.DailyStatus(newUser("neo", func(u *domain.User) { u.LastDailyClaim = "2024-03-09"; u.Streak = 2 }))
	assert.False(t, pending.ClaimedToday)
	assert.Equal(t, 3, pending.NextStreak)
	assert.Equal(t, 2.0, pending.NextReward)
	assert.Equal(t, calendar.DateKey("2024-03-10"), pending.Today)
}

func TestRecordClick(t *testing.T) {
	store := memstore.New()
	require.NoError(t, store.Users().Create(context.Background(), newUser("neo", nil)))

	tracker := abuse.NewTracker(ratelimit.NewMemoryWindow(testLogger()), nil, 10*time.Second, 12, testLogger())
	l := New(Deps{
		Store:    store,
		Calendar: testCalendar(t),
		Scorer:   abuse.NewScorer(abuse.DefaultBaseCooldown),
		Tracker:  tracker,
		Boxes:    testBoxes(),
		Log:      testLogger(),
	})
	ctx := context.Background()

	var last *ClickResult
	for i := 0; i < 8; i++ {
		res, err := l.RecordClick(ctx, "sess", "neo")
		require.NoError(t, err)
		last = res
	}

	assert.EqualValues(t, 8, last.Clicks)
	assert.EqualValues(t, 8, last.DailyClicks)
	assert.Equal(t, 8, last.LocalClicks)
	assert.EqualValues(t, 3000, last.CooldownMs)
	assert.InDelta(t, 0.6, last.EarnFactor, 1e-9)
	assert.Equal(t, 8, l.LocalClicks(ctx, "sess"))
	assert.Zero(t, l.LocalClicks(ctx, "other"))

	_, err := l.RecordClick(ctx, "sess", "ghost")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
