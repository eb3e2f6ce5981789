// Package standardize turns engine-specific raw results into the common
// AnalysisResult shape. Standardization never fails: absent or malformed
// fields take their defaults.
package standardize

import (
	"strings"
	"time"

	"github.com/scylladb/go-set/strset"

	"github.com/gzhole/memscope/internal/model"
)

// suspiciousNames are dual-use binaries commonly abused by malware.
var suspiciousNames = strset.New(
	"cmd", "powershell", "wscript", "cscript", "rundll32", "regsvr32", "mshta",
	"cmd.exe", "powershell.exe", "wscript.exe", "cscript.exe", "rundll32.exe", "regsvr32.exe", "mshta.exe",
)

var suspiciousPathParts = []string{"temp", "tmp", "downloads", "appdata"}

// IsSuspiciousProcess flags dual-use binaries and anything running from a
// name that suggests a temp location.
func IsSuspiciousProcess(name string) bool {
	lower := strings.ToLower(name)
	if suspiciousNames.Has(lower) {
		return true
	}
	return strings.Contains(lower, "temp") || strings.Contains(lower, "tmp")
}

// IsSuspiciousModulePath flags modules loaded from user-writable locations.
func IsSuspiciousModulePath(path string) bool {
	lower := strings.ToLower(path)
	for _, part := range suspiciousPathParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}

// IsSuspiciousRegion flags memory that is both writable and executable.
func IsSuspiciousRegion(protection string) bool {
	upper := strings.ToUpper(protection)
	return strings.Contains(upper, "EXECUTE") && strings.Contains(upper, "WRITE")
}

func normalizeSeverity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "critical":
		return "high"
	case "medium", "moderate":
		return "medium"
	}
	return "low"
}

type Standardizer struct {
	version string
	now     func() time.Time
}

func New() *Standardizer {
	return &Standardizer{version: model.FrameworkVersion, now: time.Now}
}

// WithClock returns a copy of s that stamps results with now().
func (s *Standardizer) WithClock(now func() time.Time) *Standardizer {
	c := *s
	c.now = now
	return &c
}

// Standardize normalizes raw for the given OS profile. Every sequence in the
// result is non-nil so documents always carry all five arrays.
func (s *Standardizer) Standardize(raw model.RawResult, os model.OS) model.AnalysisResult {
	res := model.AnalysisResult{
		Metadata: model.Metadata{
			OSType:            os,
			AnalysisTimestamp: s.now().UTC().Format(time.RFC3339),
			FrameworkVersion:  s.version,
		},
		Processes:          make([]model.Process, 0, len(raw.Processes)),
		NetworkConnections: make([]model.NetworkConnection, 0, len(raw.Network)),
		KernelModules:      make([]model.KernelModule, 0, len(raw.Modules)),
		MemoryRegions:      make([]model.MemoryRegion, 0, len(raw.MemoryRegions)),
		Artifacts:          make([]model.Artifact, 0, len(raw.Artifacts)),
	}

	for _, r := range raw.Processes {
		p := decodeProcess(r)
		p.Suspicious = IsSuspiciousProcess(p.Name)
		res.Processes = append(res.Processes, p)
	}
	for _, r := range raw.Network {
		res.NetworkConnections = append(res.NetworkConnections, decodeConnection(r))
	}
	for _, r := range raw.Modules {
		m := decodeModule(r)
		m.Suspicious = IsSuspiciousModulePath(m.Path)
		res.KernelModules = append(res.KernelModules, m)
	}
	for _, r := range raw.MemoryRegions {
		reg := decodeRegion(r)
		reg.Suspicious = IsSuspiciousRegion(reg.Protection)
		res.MemoryRegions = append(res.MemoryRegions, reg)
	}
	for _, r := range raw.Artifacts {
		res.Artifacts = append(res.Artifacts, decodeArtifact(r))
	}

	res.Statistics = Statistics(raw)
	return res
}

// Statistics counts records and suspicious flags straight from the raw
// per-category sequences.
func Statistics(raw model.RawResult) model.Statistics {
	st := model.Statistics{
		TotalProcesses:          len(raw.Processes),
		TotalNetworkConnections: len(raw.Network),
		TotalKernelModules:      len(raw.Modules),
		TotalMemoryRegions:      len(raw.MemoryRegions),
		TotalArtifacts:          len(raw.Artifacts),
	}
	for _, r := range raw.Processes {
		if IsSuspiciousProcess(r.String("", nameKeys...)) {
			st.SuspiciousProcesses++
		}
	}
	for _, r := range raw.Modules {
		if IsSuspiciousModulePath(r.String("", pathKeys...)) {
			st.SuspiciousModules++
		}
	}
	for _, r := range raw.MemoryRegions {
		if IsSuspiciousRegion(r.String("", protectKeys...)) {
			st.SuspiciousRegions++
		}
	}
	for _, r := range raw.Network {
		if r.String("", stateKeys...) == "ESTABLISHED" {
			st.ActiveConnections++
		}
	}
	return st
}

// Standardize normalizes raw with the default standardizer.
func Standardize(raw model.RawResult, os model.OS) model.AnalysisResult {
	return New().Standardize(raw, os)
}
