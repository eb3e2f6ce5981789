// Package framework composes OS detection, engine fallback, standardization,
// plugin dispatch and detection metrics into one analysis call.
package framework

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gzhole/memscope/internal/config"
	"github.com/gzhole/memscope/internal/detection"
	"github.com/gzhole/memscope/internal/engine"
	"github.com/gzhole/memscope/internal/execx"
	"github.com/gzhole/memscope/internal/fallback"
	"github.com/gzhole/memscope/internal/logger"
	"github.com/gzhole/memscope/internal/model"
	"github.com/gzhole/memscope/internal/osdetect"
	"github.com/gzhole/memscope/internal/plugin"
	"github.com/gzhole/memscope/internal/probe"
	"github.com/gzhole/memscope/internal/standardize"
	"github.com/gzhole/memscope/internal/telemetry"
)

var (
	// ErrArtifactNotFound is returned before any engine runs when the image
	// path does not exist.
	ErrArtifactNotFound = errors.New("artifact not found")
	ErrUnsupportedOS    = errors.New("unsupported operating system")
)

// Request describes one analysis.
type Request struct {
	ArtifactPath string
	// OS is detected from the image when empty.
	OS      string
	Plugins []string
	// EnableMetrics attaches detection_metrics and detailed_metrics.
	// Recovered processes, connections and modules are scored against
	// GroundTruth, which may be empty.
	EnableMetrics bool
	GroundTruth   []model.Event
}

type Orchestrator struct {
	cfg          *config.Config
	runner       execx.Runner
	adapters     map[string]engine.Adapter
	engine       *fallback.Engine
	standardizer *standardize.Standardizer
	plugins      *plugin.Registry
	detector     *osdetect.Detector
	journal      *logger.Journal
	metrics      *telemetry.Metrics
	log          logrus.FieldLogger
	now          func() time.Time
	newID        func() string
}

type Option func(*Orchestrator)

// WithRunner replaces the process runner the engine adapters use.
func WithRunner(r execx.Runner) Option {
	return func(o *Orchestrator) { o.runner = r }
}

// WithAdapters bypasses the command adapters built from the engine specs.
func WithAdapters(adapters map[string]engine.Adapter) Option {
	return func(o *Orchestrator) { o.adapters = adapters }
}

func WithJournal(j *logger.Journal) Option {
	return func(o *Orchestrator) { o.journal = j }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(o *Orchestrator) { o.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator replaces the random run id source.
func WithIDGenerator(gen func() string) Option {
	return func(o *Orchestrator) { o.newID = gen }
}

func New(cfg *config.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:    cfg,
		runner: execx.NewExecRunner(),
		log:    logger.GetLogger(),
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.adapters == nil {
		prober := probe.New(o.runner, cfg.Timeouts.Probe, 0, o.log)
		o.adapters = engine.NewAdapters(cfg.EngineSpecs(), o.runner, prober,
			engine.WithMetrics(o.metrics), engine.WithLogger(o.log))
	}
	o.engine = fallback.New(o.adapters, cfg.Selection,
		fallback.WithMetrics(o.metrics), fallback.WithLogger(o.log), fallback.WithClock(o.now))
	o.standardizer = standardize.New().WithClock(o.now)
	o.plugins = plugin.DefaultRegistry(cfg.Plugins).WithMetrics(o.metrics).WithLogger(o.log)
	o.detector = osdetect.New(o.log)
	return o
}

// ResolveOS returns the requested profile, or the detected one when name is
// empty.
func (o *Orchestrator) ResolveOS(path, name string) (model.OS, error) {
	if name == "" {
		detected := o.detector.Detect(path)
		o.log.WithFields(logrus.Fields{"artifact": path, "os": detected}).Info("detected operating system")
		return detected, nil
	}
	profile, ok := model.ParseOS(name)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedOS, name)
	}
	return profile, nil
}

// Analyze runs one full analysis. An exhausted fallback chain is returned as
// an error matching fallback.ErrAllEnginesExhausted; no partial result is
// returned with it.
func (o *Orchestrator) Analyze(ctx context.Context, req Request) (*model.AnalysisResult, error) {
	runID := o.newID()
	start := o.now()
	entry := logger.JournalEntry{
		RunID:        runID,
		Kind:         logger.KindAnalysis,
		ArtifactPath: req.ArtifactPath,
		Plugins:      req.Plugins,
	}

	res, err := o.analyze(ctx, req, runID, &entry)
	entry.Timestamp = o.now().UTC().Format(time.RFC3339)
	entry.Duration = o.now().Sub(start).Seconds()
	if err != nil {
		entry.Error = err.Error()
	}
	o.record(entry)
	return res, err
}

func (o *Orchestrator) analyze(ctx context.Context, req Request, runID string, entry *logger.JournalEntry) (*model.AnalysisResult, error) {
	if _, err := os.Stat(req.ArtifactPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, req.ArtifactPath)
	}
	profile, err := o.ResolveOS(req.ArtifactPath, req.OS)
	if err != nil {
		return nil, err
	}
	entry.OSType = string(profile)
	log := o.log.WithFields(logrus.Fields{"run_id": runID, "artifact": req.ArtifactPath, "os": profile})

	var calc *detection.Calculator
	if req.EnableMetrics {
		calc = detection.New(detection.WithClock(o.now), detection.WithLogger(log))
		calc.StartAnalysis()
	}

	outcome, err := o.engine.Run(ctx, req.ArtifactPath, profile)
	entry.Attempts = attemptSummary(outcome.Attempts)
	if err != nil {
		return nil, err
	}
	entry.Engine = outcome.Engine

	res := o.standardizer.Standardize(outcome.Raw, profile)
	res.Metadata.RunID = runID
	res.Metadata.ArtifactPath = req.ArtifactPath
	res.Metadata.Engine = outcome.Engine
	res.Metadata.EngineAttempts = outcome.Attempts

	if len(req.Plugins) > 0 {
		res.PluginResults = o.plugins.Dispatch(&res, req.Plugins)
		entry.ThreatLevel = threatLevel(res.PluginResults)
	}

	if calc != nil {
		calc.SetGroundTruth(req.GroundTruth)
		for _, e := range RecoveredEvents(&res) {
			calc.AddDetectedEvent(e, e.Type())
		}
		if err := calc.EndAnalysis(); err != nil {
			log.WithError(err).Warn("metrics timing was not running")
		}
		m := calc.CalculateMetrics()
		d := calc.DetailedMetrics()
		res.DetectionMetrics = &m
		res.DetailedMetrics = &d
	}

	entry.Counts = map[string]int{
		"processes":           res.Statistics.TotalProcesses,
		"network_connections": res.Statistics.TotalNetworkConnections,
		"kernel_modules":      res.Statistics.TotalKernelModules,
		"memory_regions":      res.Statistics.TotalMemoryRegions,
		"artifacts":           res.Statistics.TotalArtifacts,
	}
	log.WithFields(logrus.Fields{"engine": outcome.Engine, "records": outcome.Raw.Count()}).Info("analysis complete")
	return &res, nil
}

// RecoveredEvents turns the identifying fields of recovered records into
// detection events: one per process, connection and module.
func RecoveredEvents(res *model.AnalysisResult) []model.Event {
	events := make([]model.Event, 0, len(res.Processes)+len(res.NetworkConnections)+len(res.KernelModules))
	for _, p := range res.Processes {
		events = append(events, model.ProcessEvent(p.Name, p.PID))
	}
	for _, c := range res.NetworkConnections {
		events = append(events, model.ConnectionEvent(c.LocalAddress, c.LocalPort, c.RemoteAddress, c.RemotePort))
	}
	for _, m := range res.KernelModules {
		events = append(events, model.ModuleEvent(m.Name, m.BaseAddress))
	}
	return events
}

// SupportedOS lists the profiles every engine understands.
func (o *Orchestrator) SupportedOS() []model.OS {
	return append([]model.OS(nil), model.SupportedOS...)
}

// ToolStatus reports whether an engine binary can be invoked on this host.
type ToolStatus struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

// AvailableTools probes every configured engine, sorted by name.
func (o *Orchestrator) AvailableTools(ctx context.Context) []ToolStatus {
	names := make([]string, 0, len(o.adapters))
	for name := range o.adapters {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ToolStatus, 0, len(names))
	for _, name := range names {
		out = append(out, ToolStatus{Name: name, Available: o.adapters[name].Available(ctx)})
	}
	return out
}

func (o *Orchestrator) AvailablePlugins() []string {
	return o.plugins.Names()
}

// Chain returns the engine order that would be tried for profile.
func (o *Orchestrator) Chain(profile model.OS) []string {
	return o.engine.Selection().Chain(profile)
}

func (o *Orchestrator) record(entry logger.JournalEntry) {
	if o.journal == nil {
		return
	}
	if err := o.journal.Record(entry); err != nil {
		o.log.WithError(err).Warn("failed to write journal entry")
	}
}

func attemptSummary(attempts []model.EngineAttempt) []string {
	out := make([]string, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, a.Engine+":"+a.Outcome)
	}
	return out
}

// threatLevel picks the malware verdict out of the plugin results, whichever
// name it was requested under.
func threatLevel(results map[string]model.PluginResult) string {
	for _, r := range results {
		if level, ok := r["threat_level"].(string); ok {
			return level
		}
	}
	return ""
}
