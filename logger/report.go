package logger

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"
)

type seriesStat struct {
	live      int64
	synthetic int64
}

var (
	refreshes     int64
	exports       int64
	exportBytes   int64
	analyses      int64
	analysisFails int64

	series       sync.Map // map[string]*seriesStat
	tierFailures sync.Map // map[string]*int64
	warns        sync.Map // map[string]*int64
	errs         sync.Map // map[string]*int64
)

func bump(m *sync.Map, key string) {
	v, _ := m.LoadOrStore(key, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

func recordWarn(component string) {
	bump(&warns, component)
}

func recordError(component string) {
	bump(&errs, component)
}

func seriesCounter(name string) *seriesStat {
	v, _ := series.LoadOrStore(name, &seriesStat{})
	return v.(*seriesStat)
}

// IncrementLiveFetch counts a series refreshed from upstream data.
func IncrementLiveFetch(name string) {
	atomic.AddInt64(&seriesCounter(name).live, 1)
}

// IncrementSyntheticFallback counts a series replaced by generated data.
func IncrementSyntheticFallback(name string) {
	atomic.AddInt64(&seriesCounter(name).synthetic, 1)
}

// IncrementTierFailure counts a failed attempt on one access tier.
func IncrementTierFailure(tier string) {
	bump(&tierFailures, tier)
}

// IncrementRefresh counts a completed state refresh.
func IncrementRefresh() {
	atomic.AddInt64(&refreshes, 1)
}

// IncrementExport counts an uploaded snapshot object of size bytes.
func IncrementExport(size int64) {
	atomic.AddInt64(&exports, 1)
	atomic.AddInt64(&exportBytes, size)
}

// IncrementAnalysis counts a narrative request and whether it failed.
func IncrementAnalysis(failed bool) {
	atomic.AddInt64(&analyses, 1)
	if failed {
		atomic.AddInt64(&analysisFails, 1)
	}
}

// StartReport begins periodic logging of runtime and data source statistics.
// The goroutine exits when ctx is cancelled.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(log)
			}
		}
	}()
}

func loadCounters(m *sync.Map) map[string]int64 {
	out := map[string]int64{}
	m.Range(func(k, v any) bool {
		out[k.(string)] = atomic.LoadInt64(v.(*int64))
		return true
	})
	return out
}

// ReportFields collects the counters included in every runtime report.
func ReportFields() Fields {
	seriesData := map[string]map[string]int64{}
	series.Range(func(k, v any) bool {
		st := v.(*seriesStat)
		seriesData[k.(string)] = map[string]int64{
			"live":      atomic.LoadInt64(&st.live),
			"synthetic": atomic.LoadInt64(&st.synthetic),
		}
		return true
	})

	return Fields{
		"refreshes":         atomic.LoadInt64(&refreshes),
		"exports":           atomic.LoadInt64(&exports),
		"export_bytes":      atomic.LoadInt64(&exportBytes),
		"analyses":          atomic.LoadInt64(&analyses),
		"analysis_failures": atomic.LoadInt64(&analysisFails),
		"series":            seriesData,
		"tier_failures":     loadCounters(&tierFailures),
		"warns":             loadCounters(&warns),
		"errors":            loadCounters(&errs),
		"goroutines":        runtime.NumGoroutine(),
	}
}

func logReport(log *Log) {
	fields := ReportFields()

	cpuPct := 0.0
	if cpuPercent, err := cpu.Percent(0, false); err == nil && len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}
	fields["cpu_percent"] = cpuPct

	if memStats, err := mem.VirtualMemory(); err == nil {
		fields["memory_mb"] = int64(memStats.Used) / 1024 / 1024
	}

	if netStats, err := gnet.IOCounters(false); err == nil && len(netStats) > 0 {
		fields["net_bytes_sent"] = int64(netStats[0].BytesSent)
		fields["net_bytes_recv"] = int64(netStats[0].BytesRecv)
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")
}
