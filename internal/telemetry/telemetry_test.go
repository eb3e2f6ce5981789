package telemetry

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.ObserveAttempt("volatility", "error", 2*time.Second)
	m.ObserveAttempt("rekall", "success", time.Second)
	m.ObserveAttempt("rekall", "success", time.Second)
	m.ObserveCategory("rekall", "processes", 12, false)
	m.ObserveCategory("rekall", "network", 0, true)
	m.IncExhausted()
	m.ObservePlugin("malware", false)
	m.ObservePlugin("bogus", true)
	m.ObserveSink("file", errors.New("disk full"))

	if got := testutil.ToFloat64(m.EngineAttempts.WithLabelValues("rekall", "success")); got != 2 {
		t.Errorf("expected 2 rekall successes, got %v", got)
	}
	if got := testutil.ToFloat64(m.CategoryRecords.WithLabelValues("rekall", "processes")); got != 12 {
		t.Errorf("expected 12 process records, got %v", got)
	}
	if got := testutil.ToFloat64(m.CategoryFailures.WithLabelValues("rekall", "network")); got != 1 {
		t.Errorf("expected 1 network failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.ChainsExhausted); got != 1 {
		t.Errorf("expected 1 exhausted chain, got %v", got)
	}
	if got := testutil.ToFloat64(m.PluginRuns.WithLabelValues("bogus", "error")); got != 1 {
		t.Errorf("expected 1 plugin error, got %v", got)
	}
	if got := testutil.ToFloat64(m.SinkWrites.WithLabelValues("file", "error")); got != 1 {
		t.Errorf("expected 1 sink error, got %v", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveAttempt("x", "success", time.Second)
	m.ObserveCategory("x", "y", 1, false)
	m.IncExhausted()
	m.ObservePlugin("p", true)
	m.ObserveSink("s", nil)
	if m.Registry() != nil {
		t.Error("nil metrics should have no registry")
	}
	if err := m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := New()
	m.ObserveAttempt("memprocfs", "no_data", time.Millisecond)

	path := filepath.Join(t.TempDir(), "memscope.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("failed to write textfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `memscope_engine_attempts_total{engine="memprocfs",outcome="no_data"} 1`) {
		t.Errorf("textfile missing attempt counter:\n%s", data)
	}
}
