package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"marketpulse/models"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run one refresh and print provenance and latest values",
	Long: `Run a single market state refresh, export it when storage is enabled and
print per-series provenance together with the latest values as JSON.`,
	RunE: runRefresh,
}

type seriesSummary struct {
	Live   bool    `json:"live"`
	Points int     `json:"points"`
	Date   string  `json:"date,omitempty"`
	Latest float64 `json:"latest"`
}

type refreshSummary struct {
	RefreshID string                             `json:"refreshId"`
	AllLive   bool                               `json:"allLive"`
	Series    map[models.SeriesKey]seriesSummary `json:"series"`
	Watchlist []string                           `json:"watchlist"`
}

func summarize(state models.MarketState) refreshSummary {
	out := refreshSummary{
		RefreshID: state.RefreshID,
		AllLive:   state.Provenance.AllLive(),
		Series:    make(map[models.SeriesKey]seriesSummary, len(models.SeriesKeys)),
		Watchlist: state.Symbols(),
	}
	add := func(key models.SeriesKey, n int, last models.Observation) {
		out.Series[key] = seriesSummary{Live: state.Provenance.Live(key), Points: n, Date: last.Date, Latest: last.Value}
	}
	add(models.SeriesSP500, len(state.SP500), lastIndex(state.SP500))
	add(models.SeriesNasdaq, len(state.Nasdaq), lastIndex(state.Nasdaq))
	add(models.SeriesTreasury, len(state.Treasury10Y), lastMacro(state.Treasury10Y))
	add(models.SeriesM2Supply, len(state.M2Supply), lastMacro(state.M2Supply))
	return out
}

func lastIndex(points []models.IndexPoint) models.Observation {
	if len(points) == 0 {
		return models.Observation{}
	}
	return points[len(points)-1].Observation
}

func lastMacro(points []models.MacroPoint) models.Observation {
	if len(points) == 0 {
		return models.Observation{}
	}
	return points[len(points)-1]
}

func runRefresh(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}

	state := a.store.Refresh(ctx)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(summarize(state)); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}
