package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseTimeRange(t *testing.T) {
	cases := map[string]TimeRange{"1Y": Range1Y, "5y": Range5Y, " 10Y ": Range10Y}
	for in, want := range cases {
		got, err := ParseTimeRange(in)
		if err != nil {
			t.Fatalf("ParseTimeRange(%q) returned error: %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseTimeRange(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := ParseTimeRange("3Y"); err == nil {
		t.Fatal("expected error for unsupported range")
	}
}

func TestTimeRangeYears(t *testing.T) {
	if Range1Y.Years() != 1 || Range5Y.Years() != 5 || Range10Y.Years() != 10 {
		t.Fatal("unexpected span for known ranges")
	}
	if TimeRange("bogus").Years() != 10 {
		t.Fatal("unknown ranges should span ten years")
	}
}

func TestParseSeriesKeyAliases(t *testing.T) {
	cases := map[string]SeriesKey{
		"sp500":       SeriesSP500,
		"NASDAQ":      SeriesNasdaq,
		"treasury":    SeriesTreasury,
		"treasury10Y": SeriesTreasury,
		"m2":          SeriesM2Supply,
		"m2Supply":    SeriesM2Supply,
	}
	for in, want := range cases {
		got, err := ParseSeriesKey(in)
		if err != nil || got != want {
			t.Fatalf("ParseSeriesKey(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseSeriesKey("dow"); err == nil {
		t.Fatal("expected error for unknown series")
	}
}

func TestIndexPointMarshalsMissingAveragesAsNull(t *testing.T) {
	v := 10.5
	p := IndexPoint{Observation: Observation{Date: "2024-01-02", Value: 11}, SMA20: &v}
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got := string(data)
	for _, want := range []string{`"date":"2024-01-02"`, `"sma20":10.5`, `"sma60":null`, `"sma120":null`} {
		if !strings.Contains(got, want) {
			t.Fatalf("marshalled point %s missing %s", got, want)
		}
	}
}

func TestMarketStateCloneIsIndependent(t *testing.T) {
	s := NewMarketState()
	s.Watchlist = []StockDetail{{Symbol: "AAPL", History: []Observation{{Date: "2024-01-01", Value: 1}}}}
	s.Treasury10Y = []MacroPoint{{Date: "2024-01-01", Value: 4.2}}

	c := s.Clone()
	c.Watchlist[0].History[0].Value = 99
	c.Treasury10Y[0].Value = 1

	if s.Watchlist[0].History[0].Value != 1 || s.Treasury10Y[0].Value != 4.2 {
		t.Fatal("modifying the clone changed the original")
	}
	if !c.HasSymbol("AAPL") || c.HasSymbol("MSFT") {
		t.Fatal("unexpected HasSymbol result")
	}
}

func TestLoadingStateEncodesEmptySeries(t *testing.T) {
	data, err := json.Marshal(NewMarketState().Clone())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got := string(data)
	for _, want := range []string{`"sp500":[]`, `"nasdaq":[]`, `"treasury10Y":[]`, `"m2Supply":[]`, `"watchlist":[]`, `"loading":true`} {
		if !strings.Contains(got, want) {
			t.Fatalf("loading state %s missing %s", got, want)
		}
	}
	if strings.Contains(got, "refreshedAt") {
		t.Fatalf("loading state should omit refreshedAt: %s", got)
	}
}

func TestProvenance(t *testing.T) {
	p := Provenance{SP500: true, Nasdaq: true, Treasury10Y: true}
	if p.AllLive() {
		t.Fatal("AllLive should be false when m2 is synthetic")
	}
	if !p.Live(SeriesTreasury) || p.Live(SeriesM2Supply) {
		t.Fatal("unexpected per-series flag")
	}
	p.M2Supply = true
	if !p.AllLive() {
		t.Fatal("AllLive should be true")
	}
}
