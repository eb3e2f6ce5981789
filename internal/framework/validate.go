package framework

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gzhole/memscope/internal/experiment"
	"github.com/gzhole/memscope/internal/logger"
	"github.com/gzhole/memscope/internal/model"
	"github.com/gzhole/memscope/internal/plugin"
)

// Platform validation statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

type PlatformValidation struct {
	Status             string   `json:"status"`
	DetectedOS         model.OS `json:"detected_os,omitempty"`
	AnalysisSuccessful bool     `json:"analysis_successful"`
	PluginsWorking     bool     `json:"plugins_working"`
	ProcessesFound     int      `json:"processes_found"`
	ConnectionsFound   int      `json:"connections_found"`
	Error              string   `json:"error,omitempty"`
}

type ValidationReport struct {
	Timestamp      string                        `json:"timestamp"`
	Platforms      map[string]PlatformValidation `json:"platforms"`
	OverallSuccess bool                          `json:"overall_success"`
}

// ValidationPlugins are the plugins exercised by ValidateCrossPlatform.
var ValidationPlugins = []string{plugin.Malware, plugin.Network}

// ValidateCrossPlatform analyzes one image per platform, keyed by platform
// name, and checks that detection, extraction and plugins all work. A
// failure on one platform does not stop the others.
func (o *Orchestrator) ValidateCrossPlatform(ctx context.Context, dumps map[string]string) ValidationReport {
	start := o.now()
	report := ValidationReport{
		Timestamp:      start.UTC().Format(time.RFC3339),
		Platforms:      make(map[string]PlatformValidation, len(dumps)),
		OverallSuccess: true,
	}

	platforms := make([]string, 0, len(dumps))
	for p := range dumps {
		platforms = append(platforms, p)
	}
	sort.Strings(platforms)

	var notes []string
	for _, platform := range platforms {
		path := dumps[platform]
		v := o.validatePlatform(ctx, platform, path)
		if v.Status != StatusSuccess {
			report.OverallSuccess = false
			o.log.WithFields(logrus.Fields{"platform": platform, "artifact": path}).
				WithField("error", v.Error).Error("validation failed")
		}
		report.Platforms[platform] = v
		notes = append(notes, platform+":"+v.Status)
	}

	entry := logger.JournalEntry{
		Timestamp: o.now().UTC().Format(time.RFC3339),
		RunID:     o.newID(),
		Kind:      logger.KindValidation,
		Duration:  o.now().Sub(start).Seconds(),
		Notes:     notes,
	}
	if !report.OverallSuccess {
		entry.Error = "one or more platforms failed validation"
	}
	o.record(entry)
	return report
}

func (o *Orchestrator) validatePlatform(ctx context.Context, platform, path string) PlatformValidation {
	o.log.WithFields(logrus.Fields{"platform": platform, "artifact": path}).Info("validating platform")

	base, err := o.Analyze(ctx, Request{ArtifactPath: path, OS: platform})
	if err != nil {
		return PlatformValidation{Status: StatusFailed, Error: err.Error()}
	}
	detected := o.detector.Detect(path)
	withPlugins, err := o.Analyze(ctx, Request{ArtifactPath: path, OS: platform, Plugins: ValidationPlugins})
	if err != nil {
		return PlatformValidation{Status: StatusFailed, DetectedOS: detected, Error: err.Error()}
	}

	return PlatformValidation{
		Status:             StatusSuccess,
		DetectedOS:         detected,
		AnalysisSuccessful: true,
		PluginsWorking:     pluginsWorking(withPlugins.PluginResults),
		ProcessesFound:     len(base.Processes),
		ConnectionsFound:   len(base.NetworkConnections),
	}
}

func pluginsWorking(results map[string]model.PluginResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if _, failed := r.Error(); failed {
			return false
		}
	}
	return true
}

// Experiment runs a rate sweep over path. Trials go through the same
// fallback chain and plugins as Analyze but are not journaled one by one.
func (o *Orchestrator) Experiment(ctx context.Context, path string, profile model.OS, cfg experiment.Config) (*experiment.Result, error) {
	start := o.now()
	harness := experiment.New(trialAnalyzer{o}, cfg,
		experiment.WithLogger(o.log), experiment.WithClock(o.now))
	res, err := harness.Run(ctx, path, profile)

	entry := logger.JournalEntry{
		Timestamp:    o.now().UTC().Format(time.RFC3339),
		RunID:        o.newID(),
		Kind:         logger.KindExperiment,
		ArtifactPath: path,
		OSType:       string(profile),
		Plugins:      cfg.Plugins,
		Duration:     o.now().Sub(start).Seconds(),
	}
	if err != nil {
		entry.Error = err.Error()
	} else {
		entry.Counts = map[string]int{"rates": len(cfg.Rates), "runs_per_rate": cfg.Runs}
	}
	o.record(entry)
	return res, err
}

// trialAnalyzer runs analyses for the harness without journaling each trial.
type trialAnalyzer struct{ o *Orchestrator }

func (t trialAnalyzer) Analyze(ctx context.Context, path string, profile model.OS, plugins []string) (*model.AnalysisResult, error) {
	var entry logger.JournalEntry
	return t.o.analyze(ctx, Request{ArtifactPath: path, OS: string(profile), Plugins: plugins}, t.o.newID(), &entry)
}
