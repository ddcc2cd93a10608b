package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpulse/config"
	"marketpulse/internal/metrics"
	"marketpulse/logger"
	"marketpulse/market"
	"marketpulse/models"
	"marketpulse/synthetic"
)

var fixedNow = time.Date(2026, time.October, 14, 12, 0, 0, 0, time.UTC)

type failingFetcher struct{}

func (failingFetcher) Fetch(ctx context.Context, id string) ([]models.Observation, error) {
	return nil, fmt.Errorf("%s: %w", id, models.ErrFetchFailure)
}

type echoAnalyst struct{}

func (echoAnalyst) Analyze(ctx context.Context, summary string) string {
	return "analysis of " + summary
}

func newTestServer(t *testing.T, analyst Analyzer) (*Server, *market.Store, *gin.Engine) {
	t.Helper()

	cfg := config.Default()
	settings, err := market.SettingsFromConfig(&cfg)
	require.NoError(t, err)
	settings.SP500.Days = 300
	settings.Nasdaq.Days = 300

	clock := func() time.Time { return fixedNow }
	store := market.NewStore(settings, failingFetcher{}, synthetic.New(7, clock), market.WithClock(clock))

	srv, err := NewServer(config.DashboardConfig{Enabled: true, MetricsLimit: 10, LogLimit: 10}, logger.Logger(), store, analyst, metrics.NewCollectors())
	require.NoError(t, err)
	require.NotNil(t, srv)
	t.Cleanup(srv.cleanup)

	router, err := srv.buildRouter()
	require.NoError(t, err)
	return srv, store, router
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	return res
}

func decode(t *testing.T, res *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &out), res.Body.String())
	return out
}

func TestNormalizeAddress(t *testing.T) {
	cases := map[string]string{
		"":                               "0.0.0.0:8080",
		"  :9090  ":                      "0.0.0.0:9090",
		"localhost":                      "localhost:8080",
		"0.0.0.0:80":                     "0.0.0.0:80",
		"[::1]:443":                      "[::1]:443",
		"::1":                            "[::1]:8080",
		"*:8080":                         "0.0.0.0:8080",
		"http://13.200.112.203:8080":     "13.200.112.203:8080",
		"https://13.200.112.203":         "13.200.112.203:8080",
		"http://:7070":                   "0.0.0.0:7070",
		"tcp://localhost:5050":           "localhost:5050",
		"https://dashboard.example.com/": "dashboard.example.com:8080",
	}

	for input, want := range cases {
		if got := normalizeAddress(input); got != want {
			t.Fatalf("normalizeAddress(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNewServerDisabled(t *testing.T) {
	srv, err := NewServer(config.DashboardConfig{}, logger.Logger(), nil, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, srv)
	assert.Equal(t, "", srv.Address())
	assert.NoError(t, srv.Run(context.Background()))
}

func TestNewServerNormalizesConfiguredAddress(t *testing.T) {
	cfg := config.DashboardConfig{Enabled: true, Address: ":9000"}
	srv, err := NewServer(cfg, logger.Logger(), struct{ MarketService }{}, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, srv)
	t.Cleanup(srv.cleanup)
	assert.Equal(t, "0.0.0.0:9000", srv.Address())
}

func TestStateBeforeAndAfterRefresh(t *testing.T) {
	_, _, router := newTestServer(t, nil)

	res := do(router, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, res.Code)
	body := decode(t, res)
	assert.Equal(t, true, body["state"].(map[string]any)["loading"])

	res = do(router, http.MethodPost, "/api/refresh", "")
	require.Equal(t, http.StatusOK, res.Code)
	body = decode(t, res)
	state := body["state"].(map[string]any)
	assert.Equal(t, false, state["loading"])
	assert.Equal(t, false, body["allLive"])
	assert.Len(t, state["watchlist"], 3)
	assert.Equal(t, "1Y", body["ranges"].(map[string]any)["sp500"])
}

func TestSeriesEndpoint(t *testing.T) {
	_, store, router := newTestServer(t, nil)
	store.Refresh(context.Background())

	res := do(router, http.MethodGet, "/api/series/treasury?range=1Y", "")
	require.Equal(t, http.StatusOK, res.Code)
	body := decode(t, res)
	assert.Equal(t, "treasury10Y", body["key"])
	assert.Equal(t, "1Y", body["range"])
	assert.Len(t, body["points"], 12)

	res = do(router, http.MethodGet, "/api/series/vix", "")
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, decode(t, res)["error"], "unknown series")

	res = do(router, http.MethodGet, "/api/series/sp500?range=3M", "")
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestRangeEndpoint(t *testing.T) {
	_, store, router := newTestServer(t, nil)

	res := do(router, http.MethodPut, "/api/ranges/m2", `{"range":"5y"}`)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, models.Range5Y, store.Ranges()[models.SeriesM2Supply])

	res = do(router, http.MethodPut, "/api/ranges/m2", `{"range":"2Y"}`)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, models.Range5Y, store.Ranges()[models.SeriesM2Supply])

	res = do(router, http.MethodPut, "/api/ranges/m2", `{}`)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestWatchlistRoundTrip(t *testing.T) {
	_, store, router := newTestServer(t, nil)
	store.Refresh(context.Background())

	res := do(router, http.MethodPost, "/api/watchlist", `{"symbol":"msft"}`)
	require.Equal(t, http.StatusCreated, res.Code)
	stock := decode(t, res)["stock"].(map[string]any)
	assert.Equal(t, "MSFT", stock["symbol"])
	assert.Equal(t, []string{"MSFT", "AAPL", "NVDA", "TSLA"}, store.Snapshot().Symbols())

	res = do(router, http.MethodPost, "/api/watchlist", `{"symbol":"MSFT"}`)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, false, decode(t, res)["added"])

	res = do(router, http.MethodPost, "/api/watchlist", `{"symbol":"  "}`)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = do(router, http.MethodDelete, "/api/watchlist/nvda", "")
	assert.Equal(t, http.StatusNoContent, res.Code)
	assert.Equal(t, []string{"MSFT", "AAPL", "TSLA"}, store.Snapshot().Symbols())

	res = do(router, http.MethodDelete, "/api/watchlist/nvda", "")
	assert.Equal(t, http.StatusNoContent, res.Code)
	assert.Equal(t, []string{"MSFT", "AAPL", "TSLA"}, store.Snapshot().Symbols())
}

func TestAnalysisEndpoint(t *testing.T) {
	_, store, router := newTestServer(t, echoAnalyst{})

	res := do(router, http.MethodPost, "/api/analysis", "")
	assert.Equal(t, http.StatusConflict, res.Code)

	store.Refresh(context.Background())
	res = do(router, http.MethodPost, "/api/analysis", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, decode(t, res)["analysis"], "analysis of S&P500:")
}

func TestAnalysisDisabled(t *testing.T) {
	_, _, router := newTestServer(t, nil)
	res := do(router, http.MethodPost, "/api/analysis", "")
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
}

func TestMonitoringEndpoints(t *testing.T) {
	srv, store, router := newTestServer(t, nil)
	store.Refresh(context.Background())

	metrics.EmitMetric(srv.log, "market_store", "watchlist_size", 3, metrics.Gauge, nil)

	res := do(router, http.MethodGet, "/api/metrics?component=market_store", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.NotEmpty(t, decode(t, res)["metrics"])
	assert.NotEmpty(t, srv.metricStore.filter("market_store", ""))

	res = do(router, http.MethodGet, "/api/metrics?component=market_store&series=sp500", "")
	require.Equal(t, http.StatusOK, res.Code)
	series := decode(t, res)["metrics"].([]any)
	require.NotEmpty(t, series)
	for _, m := range series {
		assert.Equal(t, "sp500", m.(map[string]any)["series"])
	}

	res = do(router, http.MethodGet, "/api/logs?level=warn", "")
	require.Equal(t, http.StatusOK, res.Code)

	res = do(router, http.MethodGet, "/api/logs?level=loud", "")
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = do(router, http.MethodGet, "/api/resources", "")
	assert.Equal(t, http.StatusOK, res.Code)

	res = do(router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "marketpulse_")

	res = do(router, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "ok", decode(t, res)["status"])
}
