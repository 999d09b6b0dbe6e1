package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

func TestUser_SuspiciousEvents(t *testing.T) {
	testCases := []struct {
		name string
		user *User
		want int
	}{
		{name: "nil user", user: nil, want: 0},
		{name: "unset", user: &User{}, want: 0},
		{name: "behavior wins", user: &User{Behavior: Behavior{SuspiciousEvents: intPtr(4)}, LegacySuspicious: intPtr(9)}, want: 4},
		{name: "legacy fallback", user: &User{LegacySuspicious: intPtr(7)}, want: 7},
		{name: "zero behavior falls back to legacy", user: &User{Behavior: Behavior{SuspiciousEvents: intPtr(0)}, LegacySuspicious: intPtr(5)}, want: 5},
		{name: "negative clamps", user: &User{Behavior: Behavior{SuspiciousEvents: intPtr(-2)}}, want: 0},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.user.SuspiciousEvents())
		})
	}
}

func TestUser_CloneIsDeep(t *testing.T) {
	orig := NewUser("Neo", "", time.Now())
	orig.Friends = []string{"trinity"}
	orig.Behavior.SuspiciousEvents = intPtr(1)

	cp := orig.Clone()
	cp.Friends[0] = "smith"
	*cp.Behavior.SuspiciousEvents = 5

	assert.Equal(t, "trinity", orig.Friends[0])
	assert.Equal(t, 1, orig.SuspiciousEvents())
	assert.Equal(t, "neo", orig.UsernameLower)
	assert.Equal(t, "Neo", orig.DisplayName())
	assert.Equal(t, DefaultProfileColor, orig.Color())
}
