package market

import "marketpulse/models"

// Source records where a series in the state came from.
type Source string

const (
	SourceLive      Source = "live"
	SourceSynthetic Source = "synthetic"
)

// Result is the outcome of acquiring one series. Err carries the reason a
// synthetic substitute was used and is nil for live data.
type Result[T any] struct {
	Key    models.SeriesKey
	Points []T
	Source Source
	Err    error
}

// Live reports whether the points came from upstream.
func (r Result[T]) Live() bool { return r.Source == SourceLive }
