package metrics

import "marketpulse/logger"

// RefreshStats summarises one market state refresh.
type RefreshStats struct {
	RefreshID  string
	DurationMs float64
	Live       map[string]bool
	Watchlist  int
}

// ReportRefresh emits per-series provenance and refresh timing.
func ReportRefresh(log *logger.Log, c *Collectors, stats RefreshStats) {
	if log == nil {
		log = logger.GetLogger()
	}

	liveCount := 0
	for series, live := range stats.Live {
		if live {
			liveCount++
			logger.IncrementLiveFetch(series)
		} else {
			logger.IncrementSyntheticFallback(series)
		}
		c.SetSeriesLive(series, live)
		EmitMetric(log, "market_store", "series_live", live, Gauge, logger.Fields{logger.FieldSeries: series, logger.FieldRefreshID: stats.RefreshID})
	}
	c.ObserveRefresh(stats.DurationMs / 1000)
	logger.IncrementRefresh()

	EmitMetric(log, "market_store", "refresh_duration_ms", stats.DurationMs, Gauge, logger.Fields{"unit": "milliseconds"})
	EmitMetric(log, "market_store", "watchlist_size", stats.Watchlist, Gauge, nil)

	entry := log.WithComponent("market_store").WithRefresh(stats.RefreshID).WithFields(logger.Fields{
		"duration_ms":  stats.DurationMs,
		"live_series":  liveCount,
		"total_series": len(stats.Live),
		"watchlist":    stats.Watchlist,
	})
	if liveCount < len(stats.Live) {
		entry.Warn("market state refreshed with synthetic substitutes")
		return
	}
	entry.Info("market state refreshed")
}

// FetchAttempt is the outcome of one access tier request for a series.
type FetchAttempt struct {
	Series     string
	Tier       string
	OK         bool
	DurationMs float64
	// Breaker is the tier's circuit state observed before the request.
	Breaker string
}

// ReportFetchAttempt records a tier attempt in Prometheus, the runtime
// report and the metric fan-out.
func ReportFetchAttempt(c *Collectors, a FetchAttempt) {
	c.ObserveFetch(a.Series, a.Tier, a.OK)
	fields := logger.Fields{
		logger.FieldSeries: a.Series,
		logger.FieldTier:   a.Tier,
		"outcome":          outcome(a.OK),
		"breaker":          a.Breaker,
		"unit":             "milliseconds",
	}
	EmitMetric(nil, "fred_reader", "fetch_duration_ms", a.DurationMs, Gauge, fields)
	if !a.OK {
		logger.IncrementTierFailure(a.Tier)
		EmitMetric(nil, "fred_reader", "fetch_failures", 1, Counter, fields)
	}
}

// WriterStats holds metrics for the snapshot exporter.
type WriterStats struct {
	FilesWritten int64
	BytesWritten int64
	ErrorsCount  int64
}

// ReportWriter emits exporter metrics using the provided logger and component name.
func ReportWriter(log *logger.Log, c *Collectors, component string, stats WriterStats) {
	if log == nil {
		log = logger.GetLogger()
	}
	l := log.WithComponent(component)

	errorRate := float64(0)
	if stats.FilesWritten+stats.ErrorsCount > 0 {
		errorRate = float64(stats.ErrorsCount) / float64(stats.FilesWritten+stats.ErrorsCount)
	}

	avgBytesPerFile := float64(0)
	if stats.FilesWritten > 0 {
		avgBytesPerFile = float64(stats.BytesWritten) / float64(stats.FilesWritten)
	}

	for i := int64(0); i < stats.FilesWritten; i++ {
		c.ObserveExport(true)
	}
	for i := int64(0); i < stats.ErrorsCount; i++ {
		c.ObserveExport(false)
	}
	if stats.FilesWritten > 0 {
		logger.IncrementExport(stats.BytesWritten)
	}

	EmitMetric(log, component, "files_written", stats.FilesWritten, Counter, nil)
	EmitMetric(log, component, "bytes_written", stats.BytesWritten, Counter, logger.Fields{"unit": "bytes"})

	entry := l.WithFields(logger.Fields{
		"files_written":      stats.FilesWritten,
		"bytes_written":      stats.BytesWritten,
		"errors_count":       stats.ErrorsCount,
		"error_rate":         errorRate,
		"avg_bytes_per_file": avgBytesPerFile,
	})

	if stats.ErrorsCount > 0 {
		entry.Warn(component + " metrics")
		return
	}

	entry.Info(component + " metrics")
}

// ReportAnalysis records one narrative request.
func ReportAnalysis(c *Collectors, ok bool, durationMs float64) {
	c.ObserveAnalysis(ok)
	logger.IncrementAnalysis(!ok)
	EmitMetric(nil, "narrative", "analysis_duration_ms", durationMs, Gauge, logger.Fields{"unit": "milliseconds", "outcome": outcome(ok)})
}
