package errors

import (
	"errors"
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

var (
	ErrCircuitOpen             = errors.New("circuit breaker is open")
	errHalfOpenTooManyRequests = errors.New("too many requests in half-open")
)

// BreakerSettings tunes a CircuitBreaker. Zero fields take the defaults of DefaultBreakerSettings.
type BreakerSettings struct {
	ErrorThreshold      float64
	MinRequests         int
	OpenTimeout         time.Duration
	HalfOpenMaxRequests int
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		ErrorThreshold:      0.5,
		MinRequests:         10,
		OpenTimeout:         30 * time.Second,
		HalfOpenMaxRequests: 3,
	}
}

type CircuitBreaker struct {
	mu              sync.Mutex
	settings        BreakerSettings
	state           State
	failures        int
	successes       int
	requests        int
	lastFailureTime time.Time
	now             func() time.Time
	onStateChange   func(from, to State)
}

func NewCircuitBreaker(settings BreakerSettings, onStateChange func(from, to State)) *CircuitBreaker {
	def := DefaultBreakerSettings()
	if settings.ErrorThreshold <= 0 {
		settings.ErrorThreshold = def.ErrorThreshold
	}
	if settings.MinRequests <= 0 {
		settings.MinRequests = def.MinRequests
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = def.OpenTimeout
	}
	if settings.HalfOpenMaxRequests <= 0 {
		settings.HalfOpenMaxRequests = def.HalfOpenMaxRequests
	}

	return &CircuitBreaker{
		settings:      settings,
		state:         StateClosed,
		now:           time.Now,
		onStateChange: onStateChange,
	}
}

func (cb *CircuitBreaker) Call(fn func() error) error {
	if fn == nil {
		return nil
	}

	cb.mu.Lock()
	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastFailureTime) >= cb.settings.OpenTimeout {
			cb.setStateLocked(StateHalfOpen)
		} else {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}

	if cb.state == StateHalfOpen && cb.requests >= cb.settings.HalfOpenMaxRequests {
		cb.mu.Unlock()
		return errHalfOpenTooManyRequests
	}
	cb.mu.Unlock()

	callErr := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.requests++
	if callErr != nil {
		cb.failures++

		if cb.state == StateHalfOpen {
			cb.tripLocked()
		} else {
			cb.evaluateLocked()
		}

		return callErr
	}

	cb.successes++
	if cb.state == StateHalfOpen && cb.successes >= cb.settings.HalfOpenMaxRequests {
		cb.setStateLocked(StateClosed)
	}

	return nil
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) evaluateLocked() {
	if cb.requests < cb.settings.MinRequests {
		return
	}

	errorRate := float64(cb.failures) / float64(cb.requests)
	if errorRate >= cb.settings.ErrorThreshold {
		cb.tripLocked()
	}
}

func (cb *CircuitBreaker) tripLocked() {
	cb.lastFailureTime = cb.now()
	cb.setStateLocked(StateOpen)
}

func (cb *CircuitBreaker) setStateLocked(next State) {
	prev := cb.state
	cb.state = next
	cb.failures = 0
	cb.successes = 0
	cb.requests = 0

	if prev != next && cb.onStateChange != nil {
		cb.onStateChange(prev, next)
	}
}
