// Package plugin runs independent heuristic analyzers over a standardized
// AnalysisResult. Plugins are looked up by name in a static registry; a
// plugin that is unknown or panics yields an {"error": msg} slot and never
// affects its siblings.
package plugin

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/gzhole/memscope/internal/logger"
	"github.com/gzhole/memscope/internal/model"
	"github.com/gzhole/memscope/internal/telemetry"
)

// ErrUnknownPlugin is returned by Lookup for names nobody registered.
var ErrUnknownPlugin = errors.New("unknown plugin")

// Plugin names.
const (
	Malware = "malware"
	Network = "network"
)

// Plugin is one heuristic analyzer. Analyze must not modify res.
type Plugin interface {
	Name() string
	Analyze(res *model.AnalysisResult) model.PluginResult
}

// Constructor builds a fresh plugin instance.
type Constructor func() Plugin

type entry struct {
	canonical string
	build     Constructor
}

// Registry maps plugin names and aliases to constructors. It is populated
// at startup and read-only afterwards.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	names   []string

	metrics *telemetry.Metrics
	log     logrus.FieldLogger
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry), log: logger.GetLogger()}
}

func (r *Registry) WithMetrics(m *telemetry.Metrics) *Registry {
	r.metrics = m
	return r
}

func (r *Registry) WithLogger(l logrus.FieldLogger) *Registry {
	r.log = l
	return r
}

// Register adds a constructor under name and any aliases.
func (r *Registry) Register(name string, build Constructor, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; !exists {
		r.names = append(r.names, name)
	}
	e := entry{canonical: name, build: build}
	r.entries[name] = e
	for _, a := range aliases {
		r.entries[a] = e
	}
}

// Names returns the canonical plugin names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]string(nil), r.names...)
	sort.Strings(out)
	return out
}

// Lookup builds the plugin registered under name or alias.
func (r *Registry) Lookup(name string) (Plugin, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlugin, name)
	}
	return e.build(), nil
}

// Dispatch runs each requested plugin against res. Results are keyed by the
// name as requested, so an alias keeps its own slot.
func (r *Registry) Dispatch(res *model.AnalysisResult, names []string) map[string]model.PluginResult {
	out := make(map[string]model.PluginResult, len(names))
	for _, name := range names {
		out[name] = r.run(res, name)
	}
	return out
}

func (r *Registry) run(res *model.AnalysisResult, name string) (result model.PluginResult) {
	log := r.log.WithField("plugin", name)
	defer func() {
		if rec := recover(); rec != nil {
			log.WithField("panic", rec).Error("plugin panicked")
			result = model.PluginResult{"error": fmt.Sprintf("plugin %s failed: %v", name, rec)}
		}
		_, failed := result.Error()
		r.metrics.ObservePlugin(name, failed)
	}()

	p, err := r.Lookup(name)
	if err != nil {
		log.WithError(err).Warn("skipping plugin")
		return model.PluginResult{"error": err.Error()}
	}
	result = p.Analyze(res)
	if result == nil {
		result = model.PluginResult{}
	}
	log.Debug("plugin finished")
	return result
}

// DefaultRegistry registers the built-in plugins.
func DefaultRegistry(cfg Config) *Registry {
	r := NewRegistry()
	r.Register(Malware, func() Plugin { return NewMalwareScorer() }, "malware_detector")
	r.Register(Network, func() Plugin { return NewNetworkAnalyzer(cfg.Network) }, "network_analyzer")
	return r
}

// Config carries plugin settings loaded from the config file.
type Config struct {
	Network NetworkConfig `yaml:"network"`
}

func DefaultConfig() Config {
	return Config{Network: DefaultNetworkConfig()}
}
