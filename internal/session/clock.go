// Package session tracks the lab session window and returns the hardware
// to a neutral state at the start and end of the session.
package session

import (
	"fmt"
	"time"
)

// TimeFormat is the wire format of session timestamps.
const TimeFormat = "2006-01-02T15:04:05.000000Z"

// SafetyMargin is taken off the nominal end so cleanup finishes before the
// container is torn down.
const SafetyMargin = 10 * time.Second

// Window is the session time window. It is immutable once created.
type Window struct {
	Start        time.Time
	NominalEnd   time.Time
	EffectiveEnd time.Time
}

// ParseTime parses a UTC timestamp in TimeFormat. Fractional seconds are
// optional.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02T15:04:05Z", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid session time %q (want %s): %w", s, TimeFormat, err)
	}
	return t.UTC(), nil
}

// FormatTime formats t in TimeFormat.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// NewWindow builds the window for a session that started at start and is
// scheduled to end at nominalEnd.
func NewWindow(start time.Time, nominalEnd string) (Window, error) {
	end, err := ParseTime(nominalEnd)
	if err != nil {
		return Window{}, err
	}
	return Window{
		Start:        start.UTC(),
		NominalEnd:   end,
		EffectiveEnd: end.Add(-SafetyMargin),
	}, nil
}

// EffectiveEndString returns the effective end in TimeFormat.
func (w Window) EffectiveEndString() string {
	return FormatTime(w.EffectiveEnd)
}

// Remaining returns the time left until the effective end, never negative.
func (w Window) Remaining(now time.Time) time.Duration {
	if d := w.EffectiveEnd.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Expired reports whether now is at or past the effective end.
func (w Window) Expired(now time.Time) bool {
	return !now.Before(w.EffectiveEnd)
}
