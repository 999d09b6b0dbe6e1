package ratelimit

import (
	"fmt"
	"slices"
	"time"

	"github.com/Proton-105/clicker-social/pkg/config"
)

// Rules encapsulates configured rate limits and helper methods.
type Rules struct {
	config config.RateLimitConfig
}

// NewRules constructs rate limiting rules from configuration settings.
func NewRules(cfg config.RateLimitConfig) *Rules {
	return &Rules{config: cfg}
}

func (r *Rules) Enabled() bool {
	return r != nil && r.config.Enabled
}

// IsWhitelisted returns true if the username bypasses rate limits.
func (r *Rules) IsWhitelisted(username string) bool {
	return slices.Contains(r.config.Whitelist, username)
}

// RouteLimit returns the limit and window for a named route. ok is false
// when the route has no dedicated rule.
func (r *Rules) RouteLimit(route string) (limit int, window time.Duration, ok bool, err error) {
	rule, exists := r.config.Routes[route]
	if !exists {
		return 0, 0, false, nil
	}
	limit, window, err = parseRule(rule)
	return limit, window, true, err
}

// PerUserLimit returns the per-user rate limiting rule.
func (r *Rules) PerUserLimit() (int, time.Duration, error) {
	return parseRule(r.config.PerUser)
}

func parseRule(rule config.RateLimitRule) (int, time.Duration, error) {
	if rule.Window == "" {
		return rule.Limit, 0, fmt.Errorf("window duration is not set")
	}
	window, err := time.ParseDuration(rule.Window)
	if err != nil {
		return 0, 0, fmt.Errorf("parse window %q: %w", rule.Window, err)
	}
	return rule.Limit, window, nil
}
