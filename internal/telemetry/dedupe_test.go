package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestReportIDsStableWhileCached(t *testing.T) {
	reports := NewReportIDs(4)
	first := reports.For("task-1")
	if first == "" {
		t.Fatal("empty report id")
	}
	if second := reports.For("task-1"); second != first {
		t.Fatalf("report id changed: %s vs %s", first, second)
	}
	if other := reports.For("task-2"); other == first {
		t.Fatal("distinct tasks shared a report id")
	}
}

func TestReportIDsBounded(t *testing.T) {
	reports := NewReportIDs(2)
	first := reports.For("task-1")
	reports.For("task-2")
	reports.For("task-3") // evicts task-1
	if again := reports.For("task-1"); again == first {
		t.Fatal("expected evicted task to get a fresh id")
	}
}

func TestErrorFingerprintsSuppressWithinWindow(t *testing.T) {
	fingerprints := NewErrorFingerprints(DedupeConfig{MaxSize: 8, Window: time.Minute})
	if fingerprints.Suppress("watch failed: boom") {
		t.Fatal("first occurrence should not be suppressed")
	}
	if !fingerprints.Suppress("watch failed: boom") {
		t.Fatal("duplicate within window should be suppressed")
	}
	if fingerprints.Suppress("different error") {
		t.Fatal("distinct fingerprint should not be suppressed")
	}
}

func TestErrorFingerprintsExpire(t *testing.T) {
	fingerprints := NewErrorFingerprints(DedupeConfig{MaxSize: 8, Window: 10 * time.Millisecond})
	fingerprints.Suppress("boom")
	time.Sleep(20 * time.Millisecond)
	if fingerprints.Suppress("boom") {
		t.Fatal("expired fingerprint should not be suppressed")
	}
}

func TestMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := MustNewMetrics(reg)

	metrics.ObserveEvent("chunked", "progress")
	metrics.ObserveEvent("chunked", "progress")
	metrics.ObserveWatch("chunked", "completed", 125*time.Millisecond)

	if got := testutil.ToFloat64(metrics.eventsTotal.WithLabelValues("chunked", "progress")); got != 2 {
		t.Fatalf("events counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.watchOutcomes.WithLabelValues("chunked", "completed")); got != 1 {
		t.Fatalf("outcomes counter = %v, want 1", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveEvent("push", "progress")
	metrics.ObserveWatch("push", "failed", time.Second)
}
