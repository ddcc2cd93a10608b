package processor

import (
	"time"

	"marketpulse/models"
)

// Dated is implemented by every point type that can be range filtered.
type Dated interface {
	ObservedOn() string
}

// RangeCutoff returns the instant a window starts at, relative to now.
func RangeCutoff(r models.TimeRange, now time.Time) time.Time {
	return now.AddDate(-r.Years(), 0, 0)
}

// FilterByRange returns the points dated strictly after now minus the window.
// Points whose date cannot be parsed are kept so they never vanish from a chart.
// The input is left untouched.
func FilterByRange[T Dated](points []T, r models.TimeRange, now time.Time) []T {
	out := make([]T, 0, len(points))
	if len(points) == 0 {
		return out
	}
	cutoff := RangeCutoff(r, now)
	for _, p := range points {
		d, err := time.ParseInLocation(models.DateLayout, p.ObservedOn(), now.Location())
		if err != nil || d.After(cutoff) {
			out = append(out, p)
		}
	}
	return out
}
