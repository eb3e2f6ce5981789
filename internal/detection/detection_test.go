package detection

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gzhole/memscope/internal/logger"
	"github.com/gzhole/memscope/internal/model"
)

// steppingClock advances by step on every call.
func steppingClock(step time.Duration) func() time.Time {
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(step)
		return t
	}
}

func newCalc(step time.Duration) *Calculator {
	return New(WithClock(steppingClock(step)), WithLogger(logger.Discard()))
}

func TestCalculator_StateMachine(t *testing.T) {
	c := newCalc(time.Second)
	assert.Equal(t, StateIdle, c.State())

	err := c.EndAnalysis()
	require.ErrorIs(t, err, ErrNotTiming)

	c.StartAnalysis()
	assert.Equal(t, StateTiming, c.State())
	require.NoError(t, c.EndAnalysis())
	assert.Equal(t, StateComputed, c.State())

	require.ErrorIs(t, c.EndAnalysis(), ErrNotTiming)

	c.Reset()
	assert.Equal(t, StateIdle, c.State())
}

func TestCalculator_OneOfTwoMatches(t *testing.T) {
	c := newCalc(2 * time.Second)
	c.StartAnalysis()
	c.SetGroundTruth([]model.Event{
		model.ProcessEvent("cmd.exe", 100),
		model.ProcessEvent("evil.exe", 200),
	})
	c.AddDetectedEvent(model.ProcessEvent("cmd.exe", 100), model.EventProcess)
	c.AddDetectedEvent(model.ProcessEvent("other.exe", 300), model.EventProcess)
	require.NoError(t, c.EndAnalysis())

	m := c.CalculateMetrics()
	assert.Equal(t, 2, m.ActualEvents)
	assert.Equal(t, 2, m.ReturnedEvents)
	assert.Equal(t, 1, m.TruePositives)
	assert.Equal(t, 1, m.FalsePositives)
	assert.Equal(t, 1, m.FalseNegatives)
	assert.InDelta(t, 0.5, m.Precision, 1e-9)
	assert.InDelta(t, 0.5, m.Recall, 1e-9)
	assert.InDelta(t, 0.5, m.F1Score, 1e-9)
	assert.InDelta(t, 100.0, m.DetectionPercentage, 1e-9)
	assert.InDelta(t, 2.0, m.AnalysisTime, 1e-9)
	assert.InDelta(t, 1.0, m.EventsPerSecond, 1e-9)
}

func TestCalculator_ZeroGuards(t *testing.T) {
	c := newCalc(0)
	c.StartAnalysis()
	require.NoError(t, c.EndAnalysis())

	m := c.CalculateMetrics()
	assert.Zero(t, m.DetectionPercentage)
	assert.Zero(t, m.Recall)
	assert.Zero(t, m.Precision)
	assert.Zero(t, m.F1Score)
	assert.Zero(t, m.EventsPerSecond)

	c.SetGroundTruth([]model.Event{model.ProcessEvent("a", 1)})
	m = c.CalculateMetrics()
	assert.Zero(t, m.Precision, "no returned events")
	assert.Equal(t, 1, m.FalseNegatives)
}

func TestCalculator_WithoutTimingHasNoRate(t *testing.T) {
	c := newCalc(time.Second)
	c.SetGroundTruth([]model.Event{model.ProcessEvent("a", 1)})
	m := c.CalculateMetrics()
	assert.Zero(t, m.AnalysisTime)
	assert.Zero(t, m.EventsPerSecond)
}

func TestCalculator_ResetDiscardsState(t *testing.T) {
	c := newCalc(time.Second)
	c.StartAnalysis()
	c.SetGroundTruth([]model.Event{model.ProcessEvent("a", 1)})
	c.AddDetectedEvent(model.ProcessEvent("a", 1), model.EventProcess)
	require.NoError(t, c.EndAnalysis())
	c.CalculateMetrics()

	c.Reset()
	m := c.CalculateMetrics()
	assert.Equal(t, model.DetectionMetrics{}, m)
	assert.Empty(t, c.DetailedMetrics().ByEventType)
}

func TestMatch_GreedyOnePerTruth(t *testing.T) {
	truth := []model.Event{model.ProcessEvent("svc.exe", 10)}
	detected := []model.Event{
		model.ProcessEvent("svc.exe", 10),
		model.ProcessEvent("svc.exe", 10),
	}
	assert.Equal(t, 1, Match(detected, truth), "a truth event is claimed once")

	truth = append(truth, model.ProcessEvent("svc.exe", 10))
	assert.Equal(t, 2, Match(detected, truth))
}

func TestEventsMatch(t *testing.T) {
	tests := []struct {
		name string
		a, b model.Event
		want bool
	}{
		{"process", model.ProcessEvent("x", 1), model.ProcessEvent("x", 1), true},
		{"process pid differs", model.ProcessEvent("x", 1), model.ProcessEvent("x", 2), false},
		{"process pid numeric types", model.ProcessEvent("x", 4), model.Event{"name": "x", "pid": json.Number("4")}, true},
		{"process pid string", model.ProcessEvent("x", 4), model.Event{"name": "x", "pid": "4"}, false},
		{
			"connection",
			model.ConnectionEvent("10.0.0.1", 5000, "8.8.8.8", 53),
			model.ConnectionEvent("10.0.0.1", 5000, "8.8.8.8", 53),
			true,
		},
		{
			"connection remote port differs",
			model.ConnectionEvent("10.0.0.1", 5000, "8.8.8.8", 53),
			model.ConnectionEvent("10.0.0.1", 5000, "8.8.8.8", 443),
			false,
		},
		// the name rule wins, and neither event carries a pid
		{"module shares name rule", model.ModuleEvent("ntfs.sys", "0x1000"), model.ModuleEvent("ntfs.sys", "0x2000"), true},
		{
			"module without name",
			model.Event{"base_address": "0x1000"},
			model.Event{"base_address": "0x1000"},
			true,
		},
		{
			"file events never match",
			model.FileEvent(model.ActivityCreated, "a", "a"),
			model.FileEvent(model.ActivityCreated, "a", "a"),
			false,
		},
		{"mixed shapes", model.ProcessEvent("x", 1), model.ConnectionEvent("x", 1, "y", 2), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EventsMatch(tt.a, tt.b))
		})
	}
}

func TestDetailedMetrics_ByEventType(t *testing.T) {
	c := newCalc(time.Second)
	c.StartAnalysis()
	truth := make([]model.Event, 0, 4)
	for i := 0; i < 4; i++ {
		truth = append(truth, model.FileEvent(model.ActivityCreated, "f", "f"))
	}
	c.SetGroundTruth(truth)
	c.AddDetectedEvent(model.FileEvent(model.ActivityCreated, "f", "f"), model.ActivityCreated)
	c.AddDetectedEvent(model.Event{"type": model.EventNetworkActivity, "port": 4444}, model.EventNetworkActivity)
	c.AddDetectedEvent(model.Event{"type": "x"}, "")
	require.NoError(t, c.EndAnalysis())
	c.CalculateMetrics()

	d := c.DetailedMetrics()
	assert.Equal(t, 4, d.Overall.ActualEvents)
	assert.Equal(t, 3, d.Overall.ReturnedEvents)
	assert.Equal(t, model.EventTypeCount{Count: 1, Percentage: 25}, d.ByEventType[model.ActivityCreated])
	assert.Equal(t, 1, d.ByEventType["unknown"].Count)
	assert.Len(t, d.RawData.GroundTruthEvents, 4)
	assert.Len(t, d.RawData.DetectedEvents, 3)
	assert.Equal(t, 3, d.Classification.FalsePositives)
}

func TestExport(t *testing.T) {
	c := newCalc(time.Second)
	c.StartAnalysis()
	c.SetGroundTruth([]model.Event{model.ProcessEvent("a", 1)})
	c.AddDetectedEvent(model.ProcessEvent("a", 1), model.EventProcess)
	require.NoError(t, c.EndAnalysis())
	c.CalculateMetrics()

	path := filepath.Join(t.TempDir(), "metrics.json")
	require.NoError(t, c.Export(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc struct {
		Timestamp string                `json:"timestamp"`
		Metrics   model.DetailedMetrics `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.NotEmpty(t, doc.Timestamp)
	assert.Equal(t, 1, doc.Metrics.Classification.TruePositives)
	assert.InDelta(t, 1.0, doc.Metrics.Classification.F1Score, 1e-9)
}

func TestExport_BadPath(t *testing.T) {
	c := newCalc(time.Second)
	err := c.Export(filepath.Join(t.TempDir(), "missing", "dir", "m.json"))
	assert.Error(t, err)
}
