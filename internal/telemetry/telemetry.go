// Package telemetry counts engine, fallback and plugin activity. Each
// Metrics owns its registry so tests and parallel harness runs never share
// counters; the CLI exports the registry in Prometheus text format.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is safe for concurrent use. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	EngineAttempts   *prometheus.CounterVec
	EngineDuration   *prometheus.HistogramVec
	CategoryRecords  *prometheus.CounterVec
	CategoryFailures *prometheus.CounterVec
	ChainsExhausted  prometheus.Counter
	PluginRuns       *prometheus.CounterVec
	SinkWrites       *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		EngineAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "memscope_engine_attempts_total",
			Help: "Engine adapter invocations by outcome (success, error, no_data)",
		}, []string{"engine", "outcome"}),
		EngineDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "memscope_engine_duration_seconds",
			Help:    "Wall time of one engine adapter invocation",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"engine"}),
		CategoryRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "memscope_category_records_total",
			Help: "Raw records extracted per engine and category",
		}, []string{"engine", "category"}),
		CategoryFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "memscope_category_failures_total",
			Help: "Category extractions that failed and were replaced by an empty sequence",
		}, []string{"engine", "category"}),
		ChainsExhausted: factory.NewCounter(prometheus.CounterOpts{
			Name: "memscope_fallback_exhausted_total",
			Help: "Analyses for which every engine in the fallback chain failed",
		}),
		PluginRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "memscope_plugin_runs_total",
			Help: "Plugin dispatches by outcome (ok, error)",
		}, []string{"plugin", "outcome"}),
		SinkWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "memscope_sink_writes_total",
			Help: "Result documents written per sink and outcome",
		}, []string{"sink", "outcome"}),
	}
}

// Registry exposes the underlying registry, e.g. for an HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveAttempt(engine, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.EngineAttempts.WithLabelValues(engine, outcome).Inc()
	m.EngineDuration.WithLabelValues(engine).Observe(d.Seconds())
}

func (m *Metrics) ObserveCategory(engine, category string, records int, failed bool) {
	if m == nil {
		return
	}
	if failed {
		m.CategoryFailures.WithLabelValues(engine, category).Inc()
		return
	}
	m.CategoryRecords.WithLabelValues(engine, category).Add(float64(records))
}

func (m *Metrics) IncExhausted() {
	if m == nil {
		return
	}
	m.ChainsExhausted.Inc()
}

func (m *Metrics) ObservePlugin(plugin string, failed bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.PluginRuns.WithLabelValues(plugin, outcome).Inc()
}

func (m *Metrics) ObserveSink(sink string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.SinkWrites.WithLabelValues(sink, outcome).Inc()
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
