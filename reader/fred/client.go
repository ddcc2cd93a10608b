// Package fred retrieves observation histories from the FRED series API
// through an ordered list of URL-rewriting proxy tiers.
package fred

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"marketpulse/config"
	"marketpulse/internal/metrics"
	"marketpulse/logger"
	"marketpulse/models"
	"marketpulse/processor"
)

const (
	component = "fred_reader"
	userAgent = "marketpulse/1.0"

	// maxBodyBytes caps a single payload; 3000 observations fit comfortably.
	maxBodyBytes = 8 << 20
)

// Fetcher is the contract consumed by the market state store.
type Fetcher interface {
	Fetch(ctx context.Context, seriesID string) ([]models.Observation, error)
}

type tier struct {
	name     string
	template string
	breaker  *gobreaker.CircuitBreaker
}

// Client fetches series through each tier in order until one succeeds.
type Client struct {
	baseURL    string
	apiKey     string
	limit      int
	tiers      []tier
	http       *http.Client
	limiter    *rate.Limiter
	collectors *metrics.Collectors
	log        *logger.Log
}

type observationsResponse struct {
	Observations *[]models.RawObservation `json:"observations"`
}

// NewClient builds a client with a pooled transport, one circuit breaker per
// tier tracking its health and a limiter shared by every series.
func NewClient(cfg config.FredConfig, collectors *metrics.Collectors) *Client {
	log := logger.GetLogger()

	transport := &http.Transport{
		Proxy:              http.ProxyFromEnvironment,
		MaxIdleConns:       cfg.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:    cfg.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:    cfg.ConnectionPool.IdleConnTimeout,
		DisableCompression: false,
	}

	httpClient := &http.Client{
		Transport: headerTransport{agent: userAgent, base: transport},
		Timeout:   cfg.Timeout,
	}

	rps := cfg.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 4
	}
	burst := cfg.RateLimit.BurstSize
	if burst <= 0 {
		burst = 1
	}

	limit := cfg.Limit
	if limit <= 0 {
		limit = 3000
	}

	c := &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		limit:      limit,
		http:       httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		collectors: collectors,
		log:        log,
	}
	for _, tmpl := range cfg.Proxies {
		name := tierName(tmpl)
		c.tiers = append(c.tiers, tier{
			name:     name,
			template: tmpl,
			breaker:  newBreaker(name, cfg.CircuitBreaker),
		})
	}

	log.WithComponent(component).WithFields(logger.Fields{
		"tiers":              len(c.tiers),
		"max_idle_conns":     cfg.ConnectionPool.MaxIdleConns,
		"max_conns_per_host": cfg.ConnectionPool.MaxConnsPerHost,
		"timeout":            cfg.Timeout,
		"requests_per_sec":   rps,
	}).Info("fred reader initialized")

	return c
}

func newBreaker(name string, cfg config.CircuitBreakerConfig) *gobreaker.CircuitBreaker {
	threshold := uint32(3)
	if cfg.FailureThreshold > 0 {
		threshold = uint32(cfg.FailureThreshold)
	}
	halfOpen := uint32(1)
	if cfg.HalfOpenMaxRequests > 0 {
		halfOpen = uint32(cfg.HalfOpenMaxRequests)
	}

	st := gobreaker.Settings{Name: name}
	st.MaxRequests = halfOpen
	st.Interval = cfg.Interval
	st.Timeout = cfg.RecoveryTimeout
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= threshold
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		logger.GetLogger().WithComponent(component).WithTier(name).WithFields(logger.Fields{
			"from": from.String(),
			"to":   to.String(),
		}).Warn("circuit breaker state changed")
	}
	return gobreaker.NewCircuitBreaker(st)
}

// tierName labels a proxy template by its host and path.
func tierName(tmpl string) string {
	if u, err := url.Parse(strings.ReplaceAll(tmpl, "{url}", "")); err == nil && u.Host != "" {
		return u.Host + strings.TrimSuffix(u.Path, "/")
	}
	return tmpl
}

// SeriesURL returns the upstream request for seriesID before proxy rewriting.
func (c *Client) SeriesURL(seriesID string) string {
	q := url.Values{}
	q.Set("series_id", seriesID)
	q.Set("api_key", c.apiKey)
	q.Set("file_type", "json")
	q.Set("sort_order", "desc")
	q.Set("limit", strconv.Itoa(c.limit))
	return c.baseURL + "?" + q.Encode()
}

// Fetch tries each tier in order and returns the ascending, filtered series
// from the first tier that answers with a usable payload. Any error wraps
// models.ErrFetchFailure.
func (c *Client) Fetch(ctx context.Context, seriesID string) ([]models.Observation, error) {
	log := c.log.WithComponent(component).WithSeries(seriesID)

	if len(c.tiers) == 0 {
		return nil, fmt.Errorf("fetch %s: no access tiers configured: %w", seriesID, models.ErrFetchFailure)
	}

	target := c.SeriesURL(seriesID)
	var errs []error
	for _, t := range c.tiers {
		tierLog := log.WithTier(t.name)
		start := time.Now()
		raw, breaker, err := c.fetchTier(ctx, t, target)
		duration := time.Since(start)

		metrics.ReportFetchAttempt(c.collectors, metrics.FetchAttempt{
			Series:     seriesID,
			Tier:       t.name,
			OK:         err == nil,
			DurationMs: float64(duration.Nanoseconds()) / 1e6,
			Breaker:    breaker,
		})
		logger.LogPerformanceEntry(tierLog, component, "tier_request", duration, logger.Fields{
			"ok":      err == nil,
			"breaker": breaker,
		})

		if err != nil {
			tierLog.WithError(err).Warn("access tier failed")
			errs = append(errs, fmt.Errorf("%s: %w", t.name, err))
			continue
		}

		obs := processor.ParseObservations(raw)
		if len(obs) == 0 {
			// Empty after filtering is final; later tiers are not consulted.
			return nil, fmt.Errorf("fetch %s via %s: no usable observations: %w", seriesID, t.name, models.ErrFetchFailure)
		}

		logger.LogDataFlowEntry(tierLog, t.name, "market_store", len(obs), "observations")
		return obs, nil
	}

	return nil, fmt.Errorf("fetch %s: %w: %w", seriesID, errors.Join(errs...), models.ErrFetchFailure)
}

// fetchTier sends one request through t and reports the breaker state seen
// before it. Every tier is requested on every fetch: an open or saturated
// breaker only marks the tier as degraded and the request goes out directly.
func (c *Client) fetchTier(ctx context.Context, t tier, target string) ([]models.RawObservation, string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", fmt.Errorf("rate limiter wait: %w", err)
	}

	state := t.breaker.State().String()
	endpoint := strings.ReplaceAll(t.template, "{url}", url.QueryEscape(target))

	res, err := t.breaker.Execute(func() (any, error) {
		return c.request(ctx, endpoint)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		raw, err := c.request(ctx, endpoint)
		return raw, state, err
	}
	if err != nil {
		return nil, state, err
	}
	return res.([]models.RawObservation), state, nil
}

func (c *Client) request(ctx context.Context, endpoint string) ([]models.RawObservation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload observationsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if payload.Observations == nil {
		return nil, errors.New("payload has no observations field")
	}
	return *payload.Observations, nil
}
