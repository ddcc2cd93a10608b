package fred

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"marketpulse/config"
	"marketpulse/models"
)

func testConfig(proxies ...string) config.FredConfig {
	cfg := config.Default().Fred
	cfg.BaseURL = "https://api.stlouisfed.org/fred/series/observations"
	cfg.APIKey = "test-key"
	cfg.Proxies = proxies
	cfg.Timeout = 2 * time.Second
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 1000, BurstSize: 100}
	return cfg
}

// upstreamTarget decodes the original request a proxy tier was asked to forward.
func upstreamTarget(t *testing.T, r *http.Request) *url.URL {
	t.Helper()
	u, err := url.Parse(r.URL.Query().Get("url"))
	if err != nil {
		t.Fatalf("parse forwarded url: %v", err)
	}
	return u
}

const payload = `{"observations":[
	{"date":"2024-03-01","value":"5100.5"},
	{"date":"2024-02-29","value":"."},
	{"date":"2024-02-28","value":"5050"},
	{"date":"2024-02-27","value":"abc"}
]}`

func TestFetchPrimaryTier(t *testing.T) {
	var forwarded *url.URL
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		forwarded = upstreamTarget(t, r)
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("missing accept header: %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL+"/primary?url={url}", srv.URL+"/secondary?url={url}"), nil)
	obs, err := c.Fetch(context.Background(), "SP500")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	want := []models.Observation{{Date: "2024-02-28", Value: 5050}, {Date: "2024-03-01", Value: 5100.5}}
	if len(obs) != len(want) {
		t.Fatalf("unexpected observations: %+v", obs)
	}
	for i := range want {
		if obs[i] != want[i] {
			t.Fatalf("observation %d = %+v, want %+v", i, obs[i], want[i])
		}
	}

	q := forwarded.Query()
	if q.Get("series_id") != "SP500" || q.Get("api_key") != "test-key" || q.Get("file_type") != "json" ||
		q.Get("sort_order") != "desc" || q.Get("limit") != "3000" {
		t.Fatalf("unexpected upstream query: %s", forwarded.RawQuery)
	}
}

func TestFetchFallsBackToSecondaryTier(t *testing.T) {
	var primary, secondary int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/primary":
			atomic.AddInt32(&primary, 1)
			http.Error(w, "blocked", http.StatusForbidden)
		case "/secondary":
			atomic.AddInt32(&secondary, 1)
			_, _ = w.Write([]byte(payload))
		}
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL+"/primary?url={url}", srv.URL+"/secondary?url={url}"), nil)
	obs, err := c.Fetch(context.Background(), "DGS10")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(obs) != 2 {
		t.Fatalf("unexpected observations: %+v", obs)
	}
	if primary != 1 || secondary != 1 {
		t.Fatalf("expected one attempt per tier, got primary=%d secondary=%d", primary, secondary)
	}
}

func TestFetchAllTiersFail(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		if r.URL.Path == "/primary" {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"error_message":"Bad Request"}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL+"/primary?url={url}", srv.URL+"/secondary?url={url}"), nil)
	_, err := c.Fetch(context.Background(), "M2SL")
	if !errors.Is(err, models.ErrFetchFailure) {
		t.Fatalf("expected ErrFetchFailure, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected both tiers attempted, got %d", attempts)
	}
}

func TestFetchMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>rate limited</html>`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL+"/only?url={url}"), nil)
	if _, err := c.Fetch(context.Background(), "NASDAQCOM"); !errors.Is(err, models.ErrFetchFailure) {
		t.Fatalf("expected ErrFetchFailure, got %v", err)
	}
}

func TestFetchEmptyAfterFilteringDoesNotRetry(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		_, _ = w.Write([]byte(`{"observations":[{"date":"2024-01-01","value":"."}]}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL+"/primary?url={url}", srv.URL+"/secondary?url={url}"), nil)
	if _, err := c.Fetch(context.Background(), "SP500"); !errors.Is(err, models.ErrFetchFailure) {
		t.Fatalf("expected ErrFetchFailure, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
}

func TestOpenBreakerStillAttemptsEveryTier(t *testing.T) {
	var primary, secondary int32
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/primary":
			atomic.AddInt32(&primary, 1)
		case "/secondary":
			atomic.AddInt32(&secondary, 1)
		}
		if !healthy.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL+"/primary?url={url}", srv.URL+"/secondary?url={url}"), nil)

	series := []string{"SP500", "NASDAQCOM", "DGS10", "M2SL"}
	for _, id := range series {
		if _, err := c.Fetch(context.Background(), id); !errors.Is(err, models.ErrFetchFailure) {
			t.Fatalf("fetch %s: expected ErrFetchFailure, got %v", id, err)
		}
	}
	if primary != 4 || secondary != 4 {
		t.Fatalf("expected both tiers per series, got primary=%d secondary=%d", primary, secondary)
	}
	for _, tr := range c.tiers {
		if tr.breaker.State() != gobreaker.StateOpen {
			t.Fatalf("tier %s breaker should be open, got %s", tr.name, tr.breaker.State())
		}
	}

	healthy.Store(true)
	obs, err := c.Fetch(context.Background(), "SP500")
	if err != nil {
		t.Fatalf("fetch after recovery failed: %v", err)
	}
	if len(obs) != 2 {
		t.Fatalf("unexpected observations after recovery: %+v", obs)
	}
	if primary != 5 {
		t.Fatalf("open breaker must not suppress the request, primary=%d", primary)
	}
}

func TestTierName(t *testing.T) {
	cases := map[string]string{
		"https://corsproxy.io/?{url}":              "corsproxy.io",
		"https://api.allorigins.win/raw?url={url}": "api.allorigins.win/raw",
	}
	for tmpl, want := range cases {
		if got := tierName(tmpl); got != want {
			t.Errorf("tierName(%q) = %q, want %q", tmpl, got, want)
		}
	}
}
