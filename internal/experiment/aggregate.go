package experiment

import (
	"math"

	"github.com/gzhole/memscope/internal/model"
)

// metricFields are the scalar metrics aggregated per rate.
var metricFields = []struct {
	name string
	get  func(m model.DetectionMetrics) float64
}{
	{"actual_events", func(m model.DetectionMetrics) float64 { return float64(m.ActualEvents) }},
	{"returned_events", func(m model.DetectionMetrics) float64 { return float64(m.ReturnedEvents) }},
	{"detection_percentage", func(m model.DetectionMetrics) float64 { return m.DetectionPercentage }},
	{"analysis_time", func(m model.DetectionMetrics) float64 { return m.AnalysisTime }},
	{"events_per_second", func(m model.DetectionMetrics) float64 { return m.EventsPerSecond }},
	{"precision", func(m model.DetectionMetrics) float64 { return m.Precision }},
	{"recall", func(m model.DetectionMetrics) float64 { return m.Recall }},
	{"f1_score", func(m model.DetectionMetrics) float64 { return m.F1Score }},
}

// AverageMetrics aggregates every scalar metric across runs.
func AverageMetrics(runs []RunResult) map[string]Aggregate {
	out := make(map[string]Aggregate, len(metricFields))
	if len(runs) == 0 {
		return out
	}
	values := make([]float64, len(runs))
	for _, f := range metricFields {
		for i, r := range runs {
			values[i] = f.get(r.Metrics)
		}
		out[f.name] = Summarize(values)
	}
	return out
}

// Summarize returns mean, population std, min and max of values.
func Summarize(values []float64) Aggregate {
	if len(values) == 0 {
		return Aggregate{}
	}
	a := Aggregate{Min: math.Inf(1), Max: math.Inf(-1)}
	var sum float64
	for _, v := range values {
		sum += v
		a.Min = math.Min(a.Min, v)
		a.Max = math.Max(a.Max, v)
	}
	a.Mean = sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - a.Mean
		sq += d * d
	}
	a.Std = math.Sqrt(sq / float64(len(values)))
	return a
}
