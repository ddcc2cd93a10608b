package models

import (
	"errors"
	"time"
)

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// ERRORS ////////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

var (
	// ErrFetchFailure is returned once every proxy tier has been exhausted or the
	// upstream answered with no usable observations.
	ErrFetchFailure = errors.New("fetch failure")
	// ErrInsufficientHistory is returned when a derivation needs more points.
	ErrInsufficientHistory = errors.New("insufficient history")
	// ErrAnalysisFailure wraps any error of the narrative collaborator.
	ErrAnalysisFailure = errors.New("ai analysis failure")
)

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// MARKET ////////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// StockDetail is a watchlist entry keyed by its uppercase symbol.
type StockDetail struct {
	Symbol        string        `json:"symbol"`
	Name          string        `json:"name"`
	Price         float64       `json:"price"`
	Change        float64       `json:"change"`
	ChangePercent float64       `json:"changePercent"`
	PER           float64       `json:"per"`
	PBR           float64       `json:"pbr"`
	DividendYield float64       `json:"dividendYield"`
	History       []Observation `json:"history"`
}

// Provenance records, per series, whether the data came from the live source.
type Provenance struct {
	SP500       bool `json:"sp500"`
	Nasdaq      bool `json:"nasdaq"`
	Treasury10Y bool `json:"treasury10Y"`
	M2Supply    bool `json:"m2Supply"`
}

// AllLive reports whether no series had to be synthesized.
func (p Provenance) AllLive() bool {
	return p.SP500 && p.Nasdaq && p.Treasury10Y && p.M2Supply
}

// Live reports the flag of a single series.
func (p Provenance) Live(key SeriesKey) bool {
	switch key {
	case SeriesSP500:
		return p.SP500
	case SeriesNasdaq:
		return p.Nasdaq
	case SeriesTreasury:
		return p.Treasury10Y
	case SeriesM2Supply:
		return p.M2Supply
	default:
		return false
	}
}

// MarketState is the aggregate served to the rendering layer.
type MarketState struct {
	SP500       []IndexPoint  `json:"sp500"`
	Nasdaq      []IndexPoint  `json:"nasdaq"`
	Treasury10Y []MacroPoint  `json:"treasury10Y"`
	M2Supply    []MacroPoint  `json:"m2Supply"`
	Watchlist   []StockDetail `json:"watchlist"`
	Loading     bool          `json:"loading"`
	Provenance  Provenance    `json:"provenance"`
	RefreshID   string        `json:"refreshId,omitempty"`
	RefreshedAt *time.Time    `json:"refreshedAt,omitempty"`
}

// NewMarketState returns the empty state a store starts with.
func NewMarketState() MarketState {
	return MarketState{
		SP500:       []IndexPoint{},
		Nasdaq:      []IndexPoint{},
		Treasury10Y: []MacroPoint{},
		M2Supply:    []MacroPoint{},
		Watchlist:   []StockDetail{},
		Loading:     true,
	}
}

// Clone returns a copy whose slices can be modified without affecting s.
// Points themselves are values, the SMA pointers are shared and never mutated.
// Empty slices stay empty rather than nil so they encode as [].
func (s MarketState) Clone() MarketState {
	out := s
	out.SP500 = cloneSlice(s.SP500)
	out.Nasdaq = cloneSlice(s.Nasdaq)
	out.Treasury10Y = cloneSlice(s.Treasury10Y)
	out.M2Supply = cloneSlice(s.M2Supply)
	out.Watchlist = make([]StockDetail, len(s.Watchlist))
	for i, d := range s.Watchlist {
		d.History = cloneSlice(d.History)
		out.Watchlist[i] = d
	}
	if s.RefreshedAt != nil {
		at := *s.RefreshedAt
		out.RefreshedAt = &at
	}
	return out
}

func cloneSlice[T any](in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	return out
}

// HasSymbol reports whether the watchlist already tracks symbol.
func (s MarketState) HasSymbol(symbol string) bool {
	for _, d := range s.Watchlist {
		if d.Symbol == symbol {
			return true
		}
	}
	return false
}

// Symbols returns the watchlist symbols in order.
func (s MarketState) Symbols() []string {
	out := make([]string, 0, len(s.Watchlist))
	for _, d := range s.Watchlist {
		out = append(out, d.Symbol)
	}
	return out
}
