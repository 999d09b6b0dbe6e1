package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/clicker-social/pkg/config"
)

func TestRules(t *testing.T) {
	rules := NewRules(config.RateLimitConfig{
		Enabled:   true,
		Whitelist: []string{"admin"},
		PerUser:   config.RateLimitRule{Limit: 60, Window: "1m"},
		Routes: map[string]config.RateLimitRule{
			"daily_claim": {Limit: 5, Window: "1m"},
			"broken":      {Limit: 1, Window: "soon"},
		},
	})

	assert.True(t, rules.Enabled())
	assert.True(t, rules.IsWhitelisted("admin"))
	assert.False(t, rules.IsWhitelisted("alice"))

	limit, window, err := rules.PerUserLimit()
	require.NoError(t, err)
	assert.Equal(t, 60, limit)
	assert.Equal(t, time.Minute, window)

	limit, window, ok, err := rules.RouteLimit("daily_claim")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5, limit)
	assert.Equal(t, time.Minute, window)

	_, _, ok, err = rules.RouteLimit("chat")
	assert.NoError(t, err)
	assert.False(t, ok)

	_, _, ok, err = rules.RouteLimit("broken")
	assert.True(t, ok)
	assert.Error(t, err)

	var disabled *Rules
	assert.False(t, disabled.Enabled())
}
