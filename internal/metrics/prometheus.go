// Registers on a dedicated registry:
//
//	#marketpulse_fetch_attempts_total{series,tier,outcome}
//	#marketpulse_series_live{series}
//	#marketpulse_refresh_duration_seconds
//	#marketpulse_exports_total{outcome}
//	#marketpulse_analyses_total{outcome}
//	#go_* and process_* system metrics
//
// Exposed by the dashboard server under /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the counters below.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Collectors owns the Prometheus series for one process. All methods are safe
// on a nil receiver so components can run without instrumentation.
type Collectors struct {
	registry        *prometheus.Registry
	fetchAttempts   *prometheus.CounterVec
	seriesLive      *prometheus.GaugeVec
	refreshDuration prometheus.Histogram
	exports         *prometheus.CounterVec
	analyses        *prometheus.CounterVec
}

// NewCollectors builds and registers every collector on a fresh registry.
func NewCollectors() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		fetchAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_fetch_attempts_total",
				Help: "Observation fetch attempts by series, access tier and outcome",
			},
			[]string{"series", "tier", "outcome"},
		),
		seriesLive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketpulse_series_live",
				Help: "1 when the series in the current state came from upstream, 0 when synthetic",
			},
			[]string{"series"},
		),
		refreshDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "marketpulse_refresh_duration_seconds",
				Help:    "Wall time of a full market state refresh",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),
		exports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_exports_total",
				Help: "Snapshot objects uploaded to object storage",
			},
			[]string{"outcome"},
		),
		analyses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_analyses_total",
				Help: "Narrative analysis requests",
			},
			[]string{"outcome"},
		),
	}

	c.registry.MustRegister(
		c.fetchAttempts,
		c.seriesLive,
		c.refreshDuration,
		c.exports,
		c.analyses,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the underlying registry for tests and custom exporters.
func (c *Collectors) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveFetch counts one attempt against an access tier.
func (c *Collectors) ObserveFetch(series, tier string, ok bool) {
	if c == nil {
		return
	}
	c.fetchAttempts.WithLabelValues(series, tier, outcome(ok)).Inc()
}

// SetSeriesLive records the provenance of series in the current state.
func (c *Collectors) SetSeriesLive(series string, live bool) {
	if c == nil {
		return
	}
	v := 0.0
	if live {
		v = 1
	}
	c.seriesLive.WithLabelValues(series).Set(v)
}

// ObserveRefresh records the duration of a refresh in seconds.
func (c *Collectors) ObserveRefresh(seconds float64) {
	if c == nil {
		return
	}
	c.refreshDuration.Observe(seconds)
}

// ObserveExport counts one uploaded object.
func (c *Collectors) ObserveExport(ok bool) {
	if c == nil {
		return
	}
	c.exports.WithLabelValues(outcome(ok)).Inc()
}

// ObserveAnalysis counts one narrative request.
func (c *Collectors) ObserveAnalysis(ok bool) {
	if c == nil {
		return
	}
	c.analyses.WithLabelValues(outcome(ok)).Inc()
}

func outcome(ok bool) string {
	if ok {
		return OutcomeSuccess
	}
	return OutcomeFailure
}
