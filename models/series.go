package models

import (
	"fmt"
	"strings"
)

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// SERIES ////////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// DateLayout is the calendar date format used by every series.
const DateLayout = "2006-01-02"

// RawObservation mirrors a single entry of the FRED observations payload. The
// value is kept raw because upstream sends "." for missing dates and may omit it.
type RawObservation struct {
	Date  string `json:"date"`
	Value any    `json:"value"`
}

// Observation is a single dated value.
type Observation struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// ObservedOn returns the calendar date of the observation.
func (o Observation) ObservedOn() string { return o.Date }

// IndexPoint is an equity index observation carrying its trailing averages.
// A nil average means the point does not have enough history for that window.
type IndexPoint struct {
	Observation
	SMA20  *float64 `json:"sma20"`
	SMA60  *float64 `json:"sma60"`
	SMA120 *float64 `json:"sma120"`
}

// MacroPoint is a level or change observation with no derived fields.
type MacroPoint = Observation

// SeriesKey names one of the tracked macro series.
type SeriesKey string

const (
	SeriesSP500    SeriesKey = "sp500"
	SeriesNasdaq   SeriesKey = "nasdaq"
	SeriesTreasury SeriesKey = "treasury10Y"
	SeriesM2Supply SeriesKey = "m2Supply"
)

const seriesKeysString = "sp500, nasdaq, treasury10Y, m2Supply"

// SeriesKeys lists the tracked series in display order.
var SeriesKeys = []SeriesKey{SeriesSP500, SeriesNasdaq, SeriesTreasury, SeriesM2Supply}

var seriesAliases = map[string]SeriesKey{
	"sp500":       SeriesSP500,
	"nasdaq":      SeriesNasdaq,
	"treasury10y": SeriesTreasury,
	"treasury":    SeriesTreasury,
	"m2supply":    SeriesM2Supply,
	"m2":          SeriesM2Supply,
}

// ParseSeriesKey resolves a series name case-insensitively. The short aliases
// "treasury" and "m2" are accepted as well.
func ParseSeriesKey(name string) (SeriesKey, error) {
	if key, ok := seriesAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return key, nil
	}
	return "", fmt.Errorf("unknown series %q (want one of %s)", name, seriesKeysString)
}

// TimeRange is a trailing display window.
type TimeRange string

const (
	Range1Y  TimeRange = "1Y"
	Range5Y  TimeRange = "5Y"
	Range10Y TimeRange = "10Y"
)

// ParseTimeRange validates a window tag.
func ParseTimeRange(tag string) (TimeRange, error) {
	switch r := TimeRange(strings.ToUpper(strings.TrimSpace(tag))); r {
	case Range1Y, Range5Y, Range10Y:
		return r, nil
	default:
		return "", fmt.Errorf("unsupported range %q (want 1Y, 5Y or 10Y)", tag)
	}
}

// Years reports the span of the window. Unknown tags span ten years.
func (r TimeRange) Years() int {
	switch r {
	case Range1Y:
		return 1
	case Range5Y:
		return 5
	default:
		return 10
	}
}

// DefaultRanges returns the window each series starts with.
func DefaultRanges() map[SeriesKey]TimeRange {
	return map[SeriesKey]TimeRange{
		SeriesSP500:    Range1Y,
		SeriesNasdaq:   Range1Y,
		SeriesTreasury: Range5Y,
		SeriesM2Supply: Range10Y,
	}
}
