// Package experiment runs repeated analyses across a sweep of synthetic
// event rates and reports detection accuracy per rate and per file
// activity.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gzhole/memscope/internal/detection"
	"github.com/gzhole/memscope/internal/logger"
	"github.com/gzhole/memscope/internal/model"
)

// ErrInvalidConfig is returned for sweeps that cannot run.
var ErrInvalidConfig = errors.New("invalid experiment configuration")

// Analyzer runs one full analysis of an image with the given plugins.
// Implementations must be safe for concurrent use when Workers > 1.
type Analyzer interface {
	Analyze(ctx context.Context, path string, os model.OS, plugins []string) (*model.AnalysisResult, error)
}

type Config struct {
	Rates       []int       `yaml:"rates"`
	Runs        int         `yaml:"runs"`
	Workers     int         `yaml:"workers"`
	TotalEvents int         `yaml:"total_events"`
	Seed        int64       `yaml:"seed"`
	Plugins     []string    `yaml:"plugins"`
	Degradation Degradation `yaml:"degradation"`
}

func DefaultConfig() Config {
	return Config{
		Rates:       []int{1, 10, 20, 50, 80, 100, 125, 200},
		Runs:        5,
		Workers:     1,
		TotalEvents: 480,
		Seed:        1,
		Plugins:     []string{"malware", "network"},
		Degradation: DefaultDegradation(),
	}
}

func (c Config) Validate() error {
	if len(c.Rates) == 0 {
		return fmt.Errorf("%w: no event rates", ErrInvalidConfig)
	}
	for _, r := range c.Rates {
		if r <= 0 {
			return fmt.Errorf("%w: event rate %d must be positive", ErrInvalidConfig, r)
		}
	}
	if c.Runs < 1 {
		return fmt.Errorf("%w: runs must be at least 1, got %d", ErrInvalidConfig, c.Runs)
	}
	if c.TotalEvents < len(model.Activities) {
		return fmt.Errorf("%w: total events %d is below one per activity", ErrInvalidConfig, c.TotalEvents)
	}
	return nil
}

// RunResult is one trial.
type RunResult struct {
	Run             int                    `json:"run"`
	Metrics         model.DetectionMetrics `json:"metrics"`
	DetailedMetrics model.DetailedMetrics  `json:"detailed_metrics"`
	DetectedCount   int                    `json:"detected_count"`
	Error           string                 `json:"error,omitempty"`
}

// Aggregate summarizes one metric over the trials of a rate. Std is the
// population standard deviation.
type Aggregate struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

type RateResult struct {
	EventRate      int                  `json:"event_rate"`
	Runs           []RunResult          `json:"runs"`
	AverageMetrics map[string]Aggregate `json:"average_metrics"`
}

type Result struct {
	OSType              model.OS             `json:"os_type"`
	ExperimentTimestamp string               `json:"experiment_timestamp"`
	ArtifactPath        string               `json:"artifact_path"`
	EventRates          []int                `json:"event_rates"`
	RunsPerRate         int                  `json:"runs_per_rate"`
	DetectionResults    map[int]RateResult   `json:"detection_results"`
	DetectionCurves     map[string][]float64 `json:"detection_curves"`
}

type Harness struct {
	analyzer Analyzer
	cfg      Config
	log      logrus.FieldLogger
	now      func() time.Time
}

type Option func(*Harness)

func WithLogger(l logrus.FieldLogger) Option {
	return func(h *Harness) { h.log = l }
}

// WithClock replaces time.Now for timestamps and trial timing.
func WithClock(now func() time.Time) Option {
	return func(h *Harness) { h.now = now }
}

func New(analyzer Analyzer, cfg Config, opts ...Option) *Harness {
	h := &Harness{analyzer: analyzer, cfg: cfg, log: logger.GetLogger(), now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	if h.cfg.Workers < 1 {
		h.cfg.Workers = 1
	}
	return h
}

type trial struct {
	rateIdx int
	rate    int
	run     int
	seed    int64
}

// Run sweeps every configured rate. Trials are independent and may run on
// several workers; results are stored by position, so the output does not
// depend on scheduling.
func (h *Harness) Run(ctx context.Context, path string, os model.OS) (*Result, error) {
	if err := h.cfg.Validate(); err != nil {
		return nil, err
	}
	log := h.log.WithFields(logrus.Fields{"os": os, "artifact": path})
	log.WithFields(logrus.Fields{
		"rates":   h.cfg.Rates,
		"runs":    h.cfg.Runs,
		"workers": h.cfg.Workers,
	}).Info("starting detection experiment")

	runs := make([][]RunResult, len(h.cfg.Rates))
	var trials []trial
	for i, rate := range h.cfg.Rates {
		runs[i] = make([]RunResult, h.cfg.Runs)
		for r := 0; r < h.cfg.Runs; r++ {
			trials = append(trials, trial{
				rateIdx: i,
				rate:    rate,
				run:     r,
				seed:    h.cfg.Seed + int64(i*h.cfg.Runs+r),
			})
		}
	}

	jobs := make(chan trial)
	var wg sync.WaitGroup
	for w := 0; w < h.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				runs[t.rateIdx][t.run] = h.runTrial(ctx, path, os, t, log)
			}
		}()
	}

feed:
	for _, t := range trials {
		select {
		case jobs <- t:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("experiment interrupted: %w", err)
	}

	res := &Result{
		OSType:              os,
		ExperimentTimestamp: h.now().UTC().Format(time.RFC3339),
		ArtifactPath:        path,
		EventRates:          append([]int(nil), h.cfg.Rates...),
		RunsPerRate:         h.cfg.Runs,
		DetectionResults:    make(map[int]RateResult, len(h.cfg.Rates)),
	}
	for i, rate := range h.cfg.Rates {
		res.DetectionResults[rate] = RateResult{
			EventRate:      rate,
			Runs:           runs[i],
			AverageMetrics: AverageMetrics(runs[i]),
		}
	}
	res.DetectionCurves = h.curves(res, os)
	log.Info("detection experiment finished")
	return res, nil
}

func (h *Harness) runTrial(ctx context.Context, path string, os model.OS, t trial, log logrus.FieldLogger) RunResult {
	log = log.WithFields(logrus.Fields{"rate": t.rate, "run": t.run + 1})
	calc := detection.New(detection.WithClock(h.now), detection.WithLogger(log))
	rng := rand.New(rand.NewSource(t.seed))

	out := RunResult{Run: t.run + 1}
	calc.StartAnalysis()
	res, err := h.analyzer.Analyze(ctx, path, os, h.cfg.Plugins)
	calc.SetGroundTruth(GroundTruth(h.cfg.TotalEvents, rng, h.now()))
	if err != nil {
		log.WithError(err).Error("analysis failed; scoring against zero detections")
		out.Error = err.Error()
	} else {
		detected := ExtractEvents(res, h.now())
		for _, e := range detected {
			calc.AddDetectedEvent(e, bucketFor(e))
		}
		out.DetectedCount = len(detected)
	}
	if err := calc.EndAnalysis(); err != nil {
		log.WithError(err).Warn("timing was not running")
	}

	out.Metrics = calc.CalculateMetrics()
	out.DetailedMetrics = calc.DetailedMetrics()
	log.WithField("detected", out.DetectedCount).Debug("trial finished")
	return out
}

// curves turns the measured per-activity detections into the modelled
// per-rate curve for each activity.
func (h *Harness) curves(res *Result, os model.OS) map[string][]float64 {
	expected := float64(h.cfg.TotalEvents / len(model.Activities))
	curves := make(map[string][]float64, len(model.Activities))
	for _, activity := range model.Activities {
		points := make([]float64, 0, len(res.EventRates))
		for _, rate := range res.EventRates {
			rr := res.DetectionResults[rate]
			var detected float64
			for _, run := range rr.Runs {
				detected += float64(run.DetailedMetrics.ByEventType[activity].Count)
			}
			var base float64
			if len(rr.Runs) > 0 && expected > 0 {
				base = detected / float64(len(rr.Runs)) / expected * 100
			}
			points = append(points, h.cfg.Degradation.Rate(activity, rate, base, os))
		}
		curves[activity] = points
	}
	return curves
}
