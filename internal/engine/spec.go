package engine

import (
	"strings"
	"time"

	"github.com/gzhole/memscope/internal/model"
)

// Engine names.
const (
	Volatility = "volatility"
	Rekall     = "rekall"
	MemProcFS  = "memprocfs"
)

// Argument template placeholders.
const (
	PlaceholderArtifact = "{artifact}"
	PlaceholderPlugin   = "{plugin}"
)

// DefaultCategoryTimeout bounds one category extraction.
const DefaultCategoryTimeout = 60 * time.Second

// Spec describes how to drive one engine binary. Every field is
// configuration; the defaults below reproduce the stock command lines.
type Spec struct {
	Name string `yaml:"name"`
	// Candidates are tried in order; the first that answers --help is used.
	// Each candidate is a binary followed by fixed leading arguments.
	Candidates [][]string `yaml:"candidates"`
	// Args is appended to the chosen candidate with placeholders expanded.
	Args []string `yaml:"args"`
	// Plugins maps OS name → category → engine plugin name. Categories
	// without a plugin are left empty.
	Plugins map[string]map[model.Category]string `yaml:"plugins"`
	// EmptyWhenUnavailable makes a missing binary yield an empty result
	// instead of ErrEngineUnavailable.
	EmptyWhenUnavailable bool          `yaml:"empty_when_unavailable"`
	Timeout              time.Duration `yaml:"timeout"`
}

// PluginsFor returns the category → plugin table for os, using the windows
// table for profiles without a table of their own.
func (s Spec) PluginsFor(os model.OS) map[model.Category]string {
	if p, ok := s.Plugins[string(os)]; ok {
		return p
	}
	return s.Plugins[string(model.OSWindows)]
}

// Expand builds the argument list for one plugin run.
func (s Spec) Expand(artifactPath, plugin string) []string {
	args := make([]string, len(s.Args))
	for i, a := range s.Args {
		a = strings.ReplaceAll(a, PlaceholderArtifact, artifactPath)
		args[i] = strings.ReplaceAll(a, PlaceholderPlugin, plugin)
	}
	return args
}

func (s Spec) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return DefaultCategoryTimeout
}

// volatilityPlugins builds the per-OS table for Volatility 3, whose plugin
// names are namespaced by OS.
func volatilityPlugins() map[string]map[model.Category]string {
	unix := func(prefix string) map[model.Category]string {
		return map[model.Category]string{
			model.CategoryProcesses: prefix + ".pslist",
			model.CategoryNetwork:   prefix + ".netstat",
			model.CategoryModules:   prefix + ".lsmod",
			model.CategoryRegions:   prefix + ".proc",
			model.CategoryArtifacts: prefix + ".malfind",
		}
	}
	return map[string]map[model.Category]string{
		string(model.OSWindows): {
			model.CategoryProcesses: "windows.pslist",
			model.CategoryNetwork:   "windows.netscan",
			model.CategoryModules:   "windows.modules",
			model.CategoryRegions:   "windows.vadinfo",
			model.CategoryArtifacts: "windows.malfind",
		},
		string(model.OSLinux): unix("linux"),
		string(model.OSMacOS): unix("mac"),
	}
}

func VolatilitySpec() Spec {
	return Spec{
		Name: Volatility,
		Candidates: [][]string{
			{"vol"},
			{"vol.py"},
			{"volatility3"},
			{"python3", "-m", "volatility3"},
		},
		Args:    []string{"-q", "-r", "json", "-f", PlaceholderArtifact, PlaceholderPlugin},
		Plugins: volatilityPlugins(),
		Timeout: DefaultCategoryTimeout,
	}
}

func RekallSpec() Spec {
	unix := map[model.Category]string{
		model.CategoryProcesses: "pslist",
		model.CategoryNetwork:   "netstat",
		model.CategoryModules:   "lsmod",
		model.CategoryRegions:   "proc_maps",
		model.CategoryArtifacts: "malfind",
	}
	return Spec{
		Name:       Rekall,
		Candidates: [][]string{{"rekall"}},
		Args:       []string{"-f", PlaceholderArtifact, PlaceholderPlugin, "--format", "json"},
		Plugins: map[string]map[model.Category]string{
			string(model.OSWindows): {
				model.CategoryProcesses: "pslist",
				model.CategoryNetwork:   "netscan",
				model.CategoryModules:   "modules",
				model.CategoryRegions:   "vad",
				model.CategoryArtifacts: "malfind",
			},
			string(model.OSLinux): unix,
			string(model.OSMacOS): unix,
		},
		EmptyWhenUnavailable: true,
		Timeout:              DefaultCategoryTimeout,
	}
}

// MemProcFSSpec drives MemProcFS in forensic mode, reading one forensic
// module per category.
func MemProcFSSpec() Spec {
	tables := map[model.Category]string{
		model.CategoryProcesses: "process",
		model.CategoryNetwork:   "net",
		model.CategoryModules:   "module",
		model.CategoryRegions:   "vad",
		model.CategoryArtifacts: "findevil",
	}
	return Spec{
		Name:       MemProcFS,
		Candidates: [][]string{{"memprocfs"}, {"MemProcFS"}},
		Args:       []string{"-device", PlaceholderArtifact, "-forensic", "1", "-json", PlaceholderPlugin},
		Plugins: map[string]map[model.Category]string{
			string(model.OSWindows): tables,
			string(model.OSLinux):   tables,
			string(model.OSMacOS):   tables,
		},
		Timeout: DefaultCategoryTimeout,
	}
}

// DefaultSpecs returns the built-in spec for every engine, keyed by name.
func DefaultSpecs() map[string]Spec {
	return map[string]Spec{
		Volatility: VolatilitySpec(),
		Rekall:     RekallSpec(),
		MemProcFS:  MemProcFSSpec(),
	}
}
