package dashboard

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"marketpulse/internal/metrics"
)

func TestMetricStoreLimit(t *testing.T) {
	store := newMetricStore(2)
	for i := 0; i < 5; i++ {
		store.handle(metrics.Metric{Timestamp: time.Unix(int64(i), 0), Name: "metric", Value: i})
	}

	snapshot := store.filter("", "")
	if len(snapshot) != 2 {
		t.Fatalf("expected 2 metrics in snapshot, got %d", len(snapshot))
	}

	if snapshot[0].Value != 3 || snapshot[1].Value != 4 {
		t.Fatalf("unexpected metrics retained: %#v", snapshot)
	}
}

func TestMetricStoreFilters(t *testing.T) {
	store := newMetricStore(10)
	store.handle(metrics.Metric{Component: "market_store", Name: "refresh_duration_ms"})
	store.handle(metrics.Metric{Component: "fred_reader", Name: "fetch_failures", Series: "DGS10"})
	store.handle(metrics.Metric{Component: "market_store", Name: "series_live", Series: "treasury10Y"})
	store.handle(metrics.Metric{Component: "fred_reader", Name: "fetch_duration_ms", Series: "M2SL"})

	got := store.filter("market_store", "")
	if len(got) != 2 || got[0].Name != "refresh_duration_ms" || got[1].Name != "series_live" {
		t.Fatalf("unexpected component filter result: %#v", got)
	}

	got = store.filter("fred_reader", "DGS10")
	if len(got) != 1 || got[0].Name != "fetch_failures" {
		t.Fatalf("unexpected component and series filter result: %#v", got)
	}

	if got = store.filter("", "M2SL"); len(got) != 1 {
		t.Fatalf("unexpected series filter result: %#v", got)
	}
}

func TestLogStoreCapturesEntries(t *testing.T) {
	store := newLogStore(3)
	entry := logrus.NewEntry(logrus.New())
	entry.Time = time.Unix(10, 0)
	entry.Level = logrus.WarnLevel
	entry.Message = "using synthetic series"
	entry.Data = logrus.Fields{"component": "market_store", "series": "sp500"}

	if err := store.Fire(entry); err != nil {
		t.Fatalf("store.Fire returned error: %v", err)
	}

	snapshot := store.atLeast(logrus.TraceLevel)
	if len(snapshot) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(snapshot))
	}

	if snapshot[0].Component != "market_store" || snapshot[0].Fields["series"] != "sp500" {
		t.Fatalf("unexpected snapshot data: %#v", snapshot[0])
	}
	if _, ok := snapshot[0].Fields["component"]; ok {
		t.Fatalf("component should not be repeated in fields")
	}
}

func TestLogStoreFiltersBySeverity(t *testing.T) {
	store := newLogStore(10)
	for _, lvl := range []logrus.Level{logrus.DebugLevel, logrus.InfoLevel, logrus.WarnLevel, logrus.ErrorLevel} {
		entry := logrus.NewEntry(logrus.New())
		entry.Level = lvl
		entry.Message = lvl.String()
		if err := store.Fire(entry); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got := store.atLeast(logrus.WarnLevel)
	if len(got) != 2 || got[0].Level != "warning" || got[1].Level != "error" {
		t.Fatalf("unexpected filtered logs: %#v", got)
	}
}

func TestLogStoreRespectsLimitAndClose(t *testing.T) {
	store := newLogStore(2)
	for i := 0; i < 4; i++ {
		entry := logrus.NewEntry(logrus.New())
		entry.Message = "msg"
		entry.Level = logrus.InfoLevel
		entry.Data = logrus.Fields{"index": i}
		if err := store.Fire(entry); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	snapshot := store.atLeast(logrus.TraceLevel)
	if len(snapshot) != 2 || snapshot[0].Fields["index"] != 2 {
		t.Fatalf("expected the 2 newest entries after pruning, got %#v", snapshot)
	}

	store.close()
	entry := logrus.NewEntry(logrus.New())
	entry.Message = "ignored"
	if err := store.Fire(entry); err != nil {
		t.Fatalf("unexpected error after close: %v", err)
	}

	if len(store.atLeast(logrus.TraceLevel)) != 2 {
		t.Fatalf("store accepted entries after close")
	}
}
