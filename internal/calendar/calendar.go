// Package calendar turns instants into the civil day keys that gate daily rewards.
package calendar

import (
	"fmt"
	"time"
)

// Layout is the wire and storage format of a DateKey.
const Layout = "2006-01-02"

// DateKey identifies one calendar day, formatted as YYYY-MM-DD.
type DateKey string

// ParseDateKey validates s and returns it as a DateKey.
func ParseDateKey(s string) (DateKey, error) {
	if _, err := time.Parse(Layout, s); err != nil {
		return "", fmt.Errorf("parse date key %q: %w", s, err)
	}
	return DateKey(s), nil
}

func (d DateKey) String() string {
	return string(d)
}

// IsZero reports whether the key is unset, e.g. a user who never claimed.
func (d DateKey) IsZero() bool {
	return d == ""
}

// Prev returns the civil day before d. Invalid keys return "".
func (d DateKey) Prev() DateKey {
	t, err := time.Parse(Layout, string(d))
	if err != nil {
		return ""
	}
	return DateKey(t.AddDate(0, 0, -1).Format(Layout))
}

// Calendar resolves "today" in a single configured time zone.
type Calendar struct {
	loc *time.Location
	now func() time.Time
}

// New returns a Calendar for the IANA zone tz. An empty tz means UTC.
func New(tz string) (*Calendar, error) {
	loc := time.UTC
	if tz != "" {
		var err error
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("load time zone %q: %w", tz, err)
		}
	}

	return &Calendar{loc: loc, now: time.Now}, nil
}

// WithClock returns a copy of c that reads the current time from now.
func (c *Calendar) WithClock(now func() time.Time) *Calendar {
	cp := *c
	cp.now = now
	return &cp
}

func (c *Calendar) Location() *time.Location {
	return c.loc
}

func (c *Calendar) Now() time.Time {
	return c.now()
}

func (c *Calendar) Today() DateKey {
	return c.Key(c.now())
}

// Key returns the day t falls on in the calendar's zone.
func (c *Calendar) Key(t time.Time) DateKey {
	return DateKey(t.In(c.loc).Format(Layout))
}
