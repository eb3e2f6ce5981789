// Package config loads ~/.memscope/config.yaml and applies MEMSCOPE_*
// environment overrides. A missing file means built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/gzhole/memscope/internal/engine"
	"github.com/gzhole/memscope/internal/experiment"
	"github.com/gzhole/memscope/internal/fallback"
	"github.com/gzhole/memscope/internal/model"
	"github.com/gzhole/memscope/internal/plugin"
)

const (
	DefaultConfigDir   = ".memscope"
	DefaultConfigFile  = "config.yaml"
	DefaultJournalFile = "journal.jsonl"
	EnvPrefix          = "MEMSCOPE"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	// Resolved locations; not read from the file.
	ConfigDir string `yaml:"-"`
	Path      string `yaml:"-"`

	LogLevel    string `yaml:"log_level"`
	JournalPath string `yaml:"journal"`

	// Engines overrides built-in engine specs by name. Fields left empty
	// keep the built-in value.
	Engines    map[string]engine.Spec `yaml:"engines"`
	Selection  fallback.Selection     `yaml:"selection"`
	Plugins    plugin.Config          `yaml:"plugins"`
	Experiment experiment.Config      `yaml:"experiment"`
	Timeouts   TimeoutConfig          `yaml:"timeouts"`
	Output     OutputConfig           `yaml:"output"`
	NATS       NATSConfig             `yaml:"nats"`
	Telemetry  TelemetryConfig        `yaml:"telemetry"`
}

type TimeoutConfig struct {
	// Engine bounds one category extraction; zero keeps each spec's own.
	Engine time.Duration `yaml:"engine"`
	Probe  time.Duration `yaml:"probe"`
}

type OutputConfig struct {
	Dir      string `yaml:"dir"`
	Format   string `yaml:"format"`
	Validate bool   `yaml:"validate"`
	Redact   bool   `yaml:"redact"`
}

type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type TelemetryConfig struct {
	// Textfile, when set, receives the Prometheus registry after each run.
	Textfile string `yaml:"textfile"`
}

// env is what MEMSCOPE_* variables may override.
type env struct {
	LogLevel      string        `envconfig:"LOG_LEVEL"`
	EngineTimeout time.Duration `envconfig:"ENGINE_TIMEOUT"`
	ProbeTimeout  time.Duration `envconfig:"PROBE_TIMEOUT"`
	NATSURL       string        `envconfig:"NATS_URL"`
	Journal       string        `envconfig:"JOURNAL"`
	OutputDir     string        `envconfig:"OUTPUT_DIR"`
}

// Default returns the built-in configuration rooted at configDir.
func Default(configDir string) *Config {
	return &Config{
		ConfigDir:   configDir,
		Path:        filepath.Join(configDir, DefaultConfigFile),
		LogLevel:    "info",
		JournalPath: filepath.Join(configDir, DefaultJournalFile),
		Engines:     engine.DefaultSpecs(),
		Selection:   fallback.DefaultSelection(),
		Plugins:     plugin.DefaultConfig(),
		Experiment:  experiment.DefaultConfig(),
		Timeouts:    TimeoutConfig{Probe: 10 * time.Second},
		Output:      OutputConfig{Dir: ".", Format: "json", Validate: true},
		NATS:        NATSConfig{SubjectPrefix: "memscope.results"},
	}
}

// Load reads the config file at path, or ~/.memscope/config.yaml when path
// is empty, then applies environment overrides.
func Load(path string) (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	configDir := filepath.Join(homeDir, DefaultConfigDir)
	if err := ensureDir(configDir); err != nil {
		return nil, err
	}

	cfg := Default(configDir)
	if path != "" {
		cfg.Path = path
	}
	if err := cfg.loadFile(); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile() error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	builtin := c.Engines
	c.Engines = nil
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", c.Path, err)
	}
	c.Engines = mergeSpecs(builtin, c.Engines)
	return nil
}

// mergeSpecs overlays file-provided specs onto the built-in ones. Unknown
// engine names are added as new engines.
func mergeSpecs(builtin, overrides map[string]engine.Spec) map[string]engine.Spec {
	out := make(map[string]engine.Spec, len(builtin)+len(overrides))
	for name, s := range builtin {
		out[name] = s
	}
	for name, o := range overrides {
		base := out[name]
		base.Name = name
		if len(o.Candidates) > 0 {
			base.Candidates = o.Candidates
		}
		if len(o.Args) > 0 {
			base.Args = o.Args
		}
		base.Plugins = overlayPlugins(base.Plugins, o.Plugins)
		if o.EmptyWhenUnavailable {
			base.EmptyWhenUnavailable = true
		}
		if o.Timeout > 0 {
			base.Timeout = o.Timeout
		}
		out[name] = base
	}
	return out
}

// overlayPlugins replaces plugin names per OS and category, keeping the
// built-in entries the override does not mention.
func overlayPlugins(base, over map[string]map[model.Category]string) map[string]map[model.Category]string {
	out := make(map[string]map[model.Category]string, len(base)+len(over))
	for profile, table := range base {
		out[profile] = make(map[model.Category]string, len(table))
		for cat, name := range table {
			out[profile][cat] = name
		}
	}
	for profile, table := range over {
		if out[profile] == nil {
			out[profile] = make(map[model.Category]string, len(table))
		}
		for cat, name := range table {
			out[profile][cat] = name
		}
	}
	return out
}

func (c *Config) applyEnv() error {
	var e env
	if err := envconfig.Process(EnvPrefix, &e); err != nil {
		return fmt.Errorf("read %s_* environment: %w", EnvPrefix, err)
	}
	if e.LogLevel != "" {
		c.LogLevel = e.LogLevel
	}
	if e.EngineTimeout > 0 {
		c.Timeouts.Engine = e.EngineTimeout
	}
	if e.ProbeTimeout > 0 {
		c.Timeouts.Probe = e.ProbeTimeout
	}
	if e.NATSURL != "" {
		c.NATS.URL = e.NATSURL
	}
	if e.Journal != "" {
		c.JournalPath = e.Journal
	}
	if e.OutputDir != "" {
		c.Output.Dir = e.OutputDir
	}
	return nil
}

// EngineSpecs returns the engine specs with the global engine timeout
// applied.
func (c *Config) EngineSpecs() map[string]engine.Spec {
	out := make(map[string]engine.Spec, len(c.Engines))
	for name, s := range c.Engines {
		if c.Timeouts.Engine > 0 {
			s.Timeout = c.Timeouts.Engine
		}
		out[name] = s
	}
	return out
}

// Validate checks that every engine the selection names is configured and
// that the experiment defaults can run.
func (c *Config) Validate() error {
	check := func(profile, name string) error {
		if name == "" {
			return nil
		}
		if _, ok := c.Engines[name]; !ok {
			return fmt.Errorf("%w: selection for %s names unknown engine %q", ErrInvalidConfig, profile, name)
		}
		return nil
	}
	if err := check("default", c.Selection.DefaultPrimary); err != nil {
		return err
	}
	for _, name := range c.Selection.DefaultFallbacks {
		if err := check("default", name); err != nil {
			return err
		}
	}
	for profile, name := range c.Selection.Primary {
		if err := check(profile, name); err != nil {
			return err
		}
	}
	for profile, names := range c.Selection.Fallbacks {
		for _, name := range names {
			if err := check(profile, name); err != nil {
				return err
			}
		}
	}
	if err := c.Experiment.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	switch c.Output.Format {
	case "json", "yaml", "table", "summary":
	default:
		return fmt.Errorf("%w: unknown output format %q", ErrInvalidConfig, c.Output.Format)
	}
	return nil
}

func ensureDir(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, 0700)
	}
	return nil
}
