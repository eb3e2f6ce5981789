// Package detection scores a sequence of detected events against a ground
// truth sequence.
//
// A Calculator is a per-run value: create one with New for every trial and
// discard it afterwards. It is not safe for concurrent use.
package detection

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gzhole/memscope/internal/logger"
	"github.com/gzhole/memscope/internal/model"
)

// ErrNotTiming is returned by EndAnalysis when StartAnalysis was not called.
var ErrNotTiming = errors.New("analysis timing not started")

// State is the calculator's lifecycle position.
type State int

const (
	StateIdle State = iota
	StateTiming
	StateComputed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTiming:
		return "timing"
	case StateComputed:
		return "computed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Calculator struct {
	now func() time.Time
	log logrus.FieldLogger

	state      State
	start, end time.Time

	truth     []model.Event
	detected  []model.Event
	byType    map[string][]model.Event
	typeOrder []string

	metrics model.DetectionMetrics
}

type Option func(*Calculator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) { c.now = now }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Calculator) { c.log = l }
}

func New(opts ...Option) *Calculator {
	c := &Calculator{now: time.Now, log: logger.GetLogger()}
	for _, opt := range opts {
		opt(c)
	}
	c.Reset()
	return c
}

func (c *Calculator) State() State { return c.state }

// StartAnalysis records the start timestamp and enters the timing state.
func (c *Calculator) StartAnalysis() {
	c.start = c.now()
	c.end = time.Time{}
	c.state = StateTiming
	c.log.Debug("analysis timing started")
}

// EndAnalysis records the elapsed time and enters the computed state.
func (c *Calculator) EndAnalysis() error {
	if c.state != StateTiming {
		return fmt.Errorf("end analysis in state %s: %w", c.state, ErrNotTiming)
	}
	c.end = c.now()
	c.state = StateComputed
	c.metrics.AnalysisTime = c.elapsed()
	c.log.WithField("seconds", c.metrics.AnalysisTime).Debug("analysis timing stopped")
	return nil
}

// SetGroundTruth replaces the expected events.
func (c *Calculator) SetGroundTruth(events []model.Event) {
	c.truth = append([]model.Event(nil), events...)
	c.metrics.ActualEvents = len(c.truth)
}

// AddDetectedEvent appends event to the flat detected list and to the
// bucket for eventType.
func (c *Calculator) AddDetectedEvent(event model.Event, eventType string) {
	if eventType == "" {
		eventType = "unknown"
	}
	c.detected = append(c.detected, event)
	if _, ok := c.byType[eventType]; !ok {
		c.typeOrder = append(c.typeOrder, eventType)
	}
	c.byType[eventType] = append(c.byType[eventType], event)
	c.metrics.ReturnedEvents = len(c.detected)
}

// CalculateMetrics recomputes every metric from the current state.
func (c *Calculator) CalculateMetrics() model.DetectionMetrics {
	m := model.DetectionMetrics{
		ActualEvents:   len(c.truth),
		ReturnedEvents: len(c.detected),
		AnalysisTime:   c.elapsed(),
	}
	if m.AnalysisTime > 0 {
		m.EventsPerSecond = float64(m.ActualEvents) / m.AnalysisTime
	}
	if m.ActualEvents > 0 {
		m.DetectionPercentage = float64(m.ReturnedEvents) / float64(m.ActualEvents) * 100
	}

	m.TruePositives = Match(c.detected, c.truth)
	m.FalsePositives = m.ReturnedEvents - m.TruePositives
	m.FalseNegatives = m.ActualEvents - m.TruePositives
	if m.ReturnedEvents > 0 {
		m.Precision = float64(m.TruePositives) / float64(m.ReturnedEvents)
	}
	if m.ActualEvents > 0 {
		m.Recall = float64(m.TruePositives) / float64(m.ActualEvents)
	}
	if m.Precision+m.Recall > 0 {
		m.F1Score = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}

	c.metrics = m
	c.log.WithFields(logrus.Fields{
		"actual":    m.ActualEvents,
		"returned":  m.ReturnedEvents,
		"detection": fmt.Sprintf("%.2f%%", m.DetectionPercentage),
	}).Debug("detection metrics calculated")
	return m
}

// Metrics returns the last calculated metrics.
func (c *Calculator) Metrics() model.DetectionMetrics { return c.metrics }

// DetailedMetrics breaks the last calculation down by classification and
// event type and includes both event sequences.
func (c *Calculator) DetailedMetrics() model.DetailedMetrics {
	m := c.metrics
	d := model.DetailedMetrics{
		Overall: model.OverallMetrics{
			ActualEvents:        m.ActualEvents,
			ReturnedEvents:      m.ReturnedEvents,
			DetectionPercentage: m.DetectionPercentage,
			AnalysisTime:        m.AnalysisTime,
			EventsPerSecond:     m.EventsPerSecond,
		},
		Classification: model.ClassificationMetrics{
			TruePositives:  m.TruePositives,
			FalsePositives: m.FalsePositives,
			FalseNegatives: m.FalseNegatives,
			Precision:      m.Precision,
			Recall:         m.Recall,
			F1Score:        m.F1Score,
		},
		ByEventType: make(map[string]model.EventTypeCount, len(c.typeOrder)),
		RawData: model.RawEventData{
			GroundTruthEvents: nonNil(c.truth),
			DetectedEvents:    nonNil(c.detected),
		},
	}
	for _, t := range c.typeOrder {
		n := len(c.byType[t])
		var pct float64
		if m.ActualEvents > 0 {
			pct = float64(n) / float64(m.ActualEvents) * 100
		}
		d.ByEventType[t] = model.EventTypeCount{Count: n, Percentage: pct}
	}
	return d
}

// Export writes the detailed metrics to path as indented JSON.
func (c *Calculator) Export(path string) error {
	doc := struct {
		Timestamp string                `json:"timestamp"`
		Metrics   model.DetailedMetrics `json:"metrics"`
	}{
		Timestamp: c.now().UTC().Format(time.RFC3339),
		Metrics:   c.DetailedMetrics(),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	c.log.WithField("path", path).Info("metrics exported")
	return nil
}

// Reset discards all accumulated state and returns to idle.
func (c *Calculator) Reset() {
	c.state = StateIdle
	c.start, c.end = time.Time{}, time.Time{}
	c.truth = nil
	c.detected = nil
	c.byType = make(map[string][]model.Event)
	c.typeOrder = nil
	c.metrics = model.DetectionMetrics{}
}

func (c *Calculator) elapsed() float64 {
	if c.start.IsZero() || c.end.IsZero() {
		return 0
	}
	return c.end.Sub(c.start).Seconds()
}

func nonNil(events []model.Event) []model.Event {
	if events == nil {
		return []model.Event{}
	}
	return events
}
