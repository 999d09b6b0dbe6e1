package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type bucket struct {
	events []time.Time
}

// MemoryWindow is an in-process Window, used as the fallback when Redis is unavailable.
type MemoryWindow struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
	log     *slog.Logger
}

var _ Window = (*MemoryWindow)(nil)

// NewMemoryWindow returns an in-memory window implementation.
func NewMemoryWindow(log *slog.Logger) *MemoryWindow {
	if log == nil {
		log = slog.Default()
	}

	return &MemoryWindow{
		buckets: make(map[string]*bucket),
		now:     time.Now,
		log:     log,
	}
}

func (m *MemoryWindow) Hit(_ context.Context, key string, span time.Duration) (int, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	bkt := m.buckets[key]
	if bkt == nil {
		bkt = &bucket{events: make([]time.Time, 0, 8)}
		m.buckets[key] = bkt
	}

	bkt.events = keepRecent(bkt.events, now.Add(-span))
	bkt.events = append(bkt.events, now)

	return len(bkt.events), nil
}

func (m *MemoryWindow) Count(_ context.Context, key string, span time.Duration) (int, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	bkt := m.buckets[key]
	if bkt == nil {
		return 0, nil
	}

	bkt.events = keepRecent(bkt.events, now.Add(-span))
	return len(bkt.events), nil
}

func (m *MemoryWindow) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.buckets, key)
	return nil
}

// Cleanup removes buckets that have been inactive for more than maxAge.
func (m *MemoryWindow) Cleanup(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}

	cutoff := m.now().Add(-maxAge)
	removed := 0

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, bkt := range m.buckets {
		if len(bkt.events) == 0 || bkt.events[len(bkt.events)-1].Before(cutoff) {
			delete(m.buckets, key)
			removed++
		}
	}

	return removed
}

// keepRecent drops events older than windowStart. Events are kept in arrival order.
func keepRecent(events []time.Time, windowStart time.Time) []time.Time {
	firstIdx := 0
	for firstIdx < len(events) && !events[firstIdx].After(windowStart) {
		firstIdx++
	}

	if firstIdx == 0 {
		return events
	}

	if firstIdx >= len(events) {
		return events[:0]
	}

	copy(events, events[firstIdx:])
	return events[:len(events)-firstIdx]
}
