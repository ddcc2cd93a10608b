package market

import (
	"errors"
	"strconv"
	"strings"

	"marketpulse/models"
)

// ErrLoading is returned for operations that need a refreshed state.
var ErrLoading = errors.New("market state is still loading")

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func lastValue(points []models.Observation) string {
	if len(points) == 0 {
		return "n/a"
	}
	return formatValue(points[len(points)-1].Value)
}

func lastIndexValue(points []models.IndexPoint) string {
	if len(points) == 0 {
		return "n/a"
	}
	return formatValue(points[len(points)-1].Value)
}

// AnalysisContext renders the compact summary handed to the narrative
// collaborator, e.g.
//
//	S&P500:5920.41, NASDAQ:19150.2, 10Y Yield: 4.23%, M2 Change: $35.1B. Watchlist: AAPL ($230), NVDA ($145).
func AnalysisContext(state models.MarketState) string {
	var b strings.Builder
	b.WriteString("S&P500:")
	b.WriteString(lastIndexValue(state.SP500))
	b.WriteString(", NASDAQ:")
	b.WriteString(lastIndexValue(state.Nasdaq))
	b.WriteString(", 10Y Yield: ")
	b.WriteString(lastValue(state.Treasury10Y))
	b.WriteString("%, M2 Change: $")
	b.WriteString(lastValue(state.M2Supply))
	b.WriteString("B. Watchlist: ")
	for i, d := range state.Watchlist {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Symbol)
		b.WriteString(" ($")
		b.WriteString(formatValue(d.Price))
		b.WriteString(")")
	}
	b.WriteString(".")
	return b.String()
}

// AnalysisContext summarises the current state, refusing while it is loading.
func (s *Store) AnalysisContext() (string, error) {
	state := s.Snapshot()
	if state.Loading {
		return "", ErrLoading
	}
	return AnalysisContext(state), nil
}
