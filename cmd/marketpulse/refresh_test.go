package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"marketpulse/models"
)

func TestSummarize(t *testing.T) {
	state := models.MarketState{
		SP500:       []models.IndexPoint{{Observation: models.Observation{Date: "2026-10-14", Value: 5920.41}}},
		Treasury10Y: []models.MacroPoint{{Date: "2026-10-01", Value: 4.23}, {Date: "2026-10-02", Value: 4.25}},
		Watchlist:   []models.StockDetail{{Symbol: "AAPL"}},
		Provenance:  models.Provenance{SP500: true},
		RefreshID:   "r-1",
	}

	got := summarize(state)
	assert.Equal(t, "r-1", got.RefreshID)
	assert.False(t, got.AllLive)
	assert.Equal(t, []string{"AAPL"}, got.Watchlist)
	assert.Equal(t, seriesSummary{Live: true, Points: 1, Date: "2026-10-14", Latest: 5920.41}, got.Series[models.SeriesSP500])
	assert.Equal(t, seriesSummary{Points: 2, Date: "2026-10-02", Latest: 4.25}, got.Series[models.SeriesTreasury])
	assert.Equal(t, seriesSummary{}, got.Series[models.SeriesNasdaq])
}
