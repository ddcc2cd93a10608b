package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorsRecordAndExpose(t *testing.T) {
	c := NewCollectors()
	c.ObserveFetch("sp500", "corsproxy.io", false)
	c.ObserveFetch("sp500", "api.allorigins.win", true)
	c.SetSeriesLive("sp500", true)
	c.SetSeriesLive("nasdaq", false)
	c.ObserveRefresh(0.2)

	if got := testutil.ToFloat64(c.fetchAttempts.WithLabelValues("sp500", "corsproxy.io", OutcomeFailure)); got != 1 {
		t.Fatalf("unexpected failure count: %v", got)
	}
	if got := testutil.ToFloat64(c.seriesLive.WithLabelValues("nasdaq")); got != 0 {
		t.Fatalf("unexpected live gauge: %v", got)
	}

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{"marketpulse_fetch_attempts_total", "marketpulse_series_live", "marketpulse_refresh_duration_seconds"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("exposition missing %s", want)
		}
	}
}

func TestCollectorsNilSafe(t *testing.T) {
	var c *Collectors
	c.ObserveFetch("sp500", "tier", true)
	c.SetSeriesLive("sp500", true)
	c.ObserveRefresh(1)
	c.ObserveExport(true)
	c.ObserveAnalysis(false)
	if c.Registry() != nil {
		t.Fatalf("nil collectors should have no registry")
	}
}

func TestReportRefreshSetsGauges(t *testing.T) {
	resetMetricHandlers()
	c := NewCollectors()
	ReportRefresh(nil, c, RefreshStats{
		RefreshID:  "r1",
		DurationMs: 120,
		Live:       map[string]bool{"sp500": true, "m2Supply": false},
		Watchlist:  3,
	})

	if got := testutil.ToFloat64(c.seriesLive.WithLabelValues("sp500")); got != 1 {
		t.Fatalf("sp500 should be live, got %v", got)
	}
	if got := testutil.ToFloat64(c.seriesLive.WithLabelValues("m2Supply")); got != 0 {
		t.Fatalf("m2Supply should be synthetic, got %v", got)
	}
}
