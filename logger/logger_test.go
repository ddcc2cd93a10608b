package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestConfigureInvalidFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestConfigureFileOutput(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	path := filepath.Join(t.TempDir(), "marketpulse.log")

	log := Logger()
	if err := log.Configure("report", "json", path, 0); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	log.WithComponent("market_store").Info("refresh complete")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "refresh complete") {
		t.Fatalf("log line not written: %s", data)
	}
}

func TestDomainFieldHelpers(t *testing.T) {
	entry := Logger().WithComponent("fred_reader").WithSeries("DGS10").WithTier("corsproxy.io").WithRefresh("r-7")
	want := map[string]string{
		FieldComponent: "fred_reader",
		FieldSeries:    "DGS10",
		FieldTier:      "corsproxy.io",
		FieldRefreshID: "r-7",
	}
	for k, v := range want {
		if entry.Entry.Data[k] != v {
			t.Fatalf("field %s = %v, want %s", k, entry.Entry.Data[k], v)
		}
	}

	sym := Logger().entry().WithSymbol("NVDA")
	if sym.Entry.Data[FieldSymbol] != "NVDA" {
		t.Fatalf("symbol field missing: %v", sym.Entry.Data)
	}
}

func TestStaticFieldsKeepCallerFields(t *testing.T) {
	hook := StaticFields(Fields{"service": "marketpulse", FieldComponent: "default"})
	entry := Logger().WithComponent("market_store").Entry
	if err := hook.Fire(entry); err != nil {
		t.Fatalf("Fire failed: %v", err)
	}
	if entry.Data["service"] != "marketpulse" || entry.Data[FieldComponent] != "market_store" {
		t.Fatalf("unexpected fields: %v", entry.Data)
	}
}

func TestCallerSkipsWrapperFrames(t *testing.T) {
	if !internalFrame("github.com/sirupsen/logrus.(*Entry).Log") {
		t.Fatalf("logrus frames are internal")
	}
	if !internalFrame(loggerPkg + ".(*Entry).Warn") {
		t.Fatalf("wrapper frames are internal")
	}
	if internalFrame("marketpulse/market.(*Store).Refresh") {
		t.Fatalf("callers outside the logger are reported")
	}
}

func TestPerformanceEntryDoesNotMutateFields(t *testing.T) {
	var buf bytes.Buffer
	log := Logger()
	log.SetOutput(&buf)

	fields := Fields{FieldSeries: "M2SL"}
	LogPerformanceEntry(log.WithComponent("fred_reader"), "fred_reader", "fetch", time.Millisecond, fields)
	if _, ok := fields["duration_ms"]; ok {
		t.Fatalf("caller fields mutated: %v", fields)
	}
}

func TestLogPerformanceEntry(t *testing.T) {
	var buf bytes.Buffer
	log := Logger()
	log.SetOutput(&buf)

	LogPerformanceEntry(log.WithComponent("fred_reader"), "fred_reader", "fetch", 1500*time.Microsecond, Fields{"series": "SP500"})

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["duration_ms"] != 1.5 || line["operation"] != "fetch" || line["series"] != "SP500" {
		t.Fatalf("unexpected performance fields: %v", line)
	}
}

func TestReportCounters(t *testing.T) {
	IncrementLiveFetch("report_test_series")
	IncrementSyntheticFallback("report_test_series")
	IncrementSyntheticFallback("report_test_series")
	IncrementTierFailure("report_test_tier")

	var buf bytes.Buffer
	log := Logger()
	log.SetOutput(&buf)
	log.WithComponent("report_test").Warn("counted")

	fields := ReportFields()
	series := fields["series"].(map[string]map[string]int64)["report_test_series"]
	if series["live"] != 1 || series["synthetic"] != 2 {
		t.Fatalf("unexpected series counters: %v", series)
	}
	if fields["tier_failures"].(map[string]int64)["report_test_tier"] != 1 {
		t.Fatalf("unexpected tier failures: %v", fields["tier_failures"])
	}
	if fields["warns"].(map[string]int64)["report_test"] != 1 {
		t.Fatalf("unexpected warn counters: %v", fields["warns"])
	}
}
