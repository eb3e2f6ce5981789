// Package model holds the records that flow between the engine adapters, the
// standardizer, the plugins and the persisted result documents. JSON field
// names are the compatibility contract for downstream reporting tools.
package model

import "strings"

// OS is the operating-system profile of a memory image.
type OS string

const (
	OSWindows OS = "windows"
	OSLinux   OS = "linux"
	OSMacOS   OS = "macos"
)

// SupportedOS lists the profiles every engine adapter understands.
var SupportedOS = []OS{OSWindows, OSLinux, OSMacOS}

// ParseOS maps a user-supplied OS name onto a profile. Unknown names return
// false; callers decide whether that is an error or a default.
func ParseOS(s string) (OS, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "windows", "win":
		return OSWindows, true
	case "linux":
		return OSLinux, true
	case "macos", "mac", "darwin", "osx":
		return OSMacOS, true
	}
	return OS(strings.ToLower(s)), false
}

// AnalysisProfile describes one analysis invocation.
type AnalysisProfile struct {
	ArtifactPath     string
	OS               OS
	RequestedPlugins []string
}

// ---------------------------------------------------------------------------
// Standardized records
// ---------------------------------------------------------------------------

type Process struct {
	PID         int    `json:"pid"`
	Name        string `json:"name"`
	ParentPID   int    `json:"parent_pid"`
	CommandLine string `json:"command_line"`
	StartTime   string `json:"start_time"`
	MemoryUsage int    `json:"memory_usage"`
	Threads     int    `json:"threads"`
	Suspicious  bool   `json:"suspicious"`
}

type NetworkConnection struct {
	LocalAddress  string `json:"local_address"`
	LocalPort     int    `json:"local_port"`
	RemoteAddress string `json:"remote_address"`
	RemotePort    int    `json:"remote_port"`
	Protocol      string `json:"protocol"`
	State         string `json:"state"`
	PID           int    `json:"pid"`
	ProcessName   string `json:"process_name"`
}

type KernelModule struct {
	Name        string `json:"name"`
	BaseAddress string `json:"base_address"`
	Size        int    `json:"size"`
	Path        string `json:"path"`
	Suspicious  bool   `json:"suspicious"`
}

type MemoryRegion struct {
	StartAddress string `json:"start_address"`
	EndAddress   string `json:"end_address"`
	Size         int    `json:"size"`
	Protection   string `json:"protection"`
	Type         string `json:"type"`
	Suspicious   bool   `json:"suspicious"`
}

// Artifact is an indicator of compromise reported by an engine, e.g. a
// malfind code-injection hit.
type Artifact struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Location    string  `json:"location"`
	Confidence  float64 `json:"confidence"` // 0.0–1.0
	Severity    string  `json:"severity"`   // "low", "medium", "high"
}

// Statistics are aggregate counts over one analysis.
type Statistics struct {
	TotalProcesses          int `json:"total_processes"`
	TotalNetworkConnections int `json:"total_network_connections"`
	TotalKernelModules      int `json:"total_kernel_modules"`
	TotalMemoryRegions      int `json:"total_memory_regions"`
	TotalArtifacts          int `json:"total_artifacts"`
	SuspiciousProcesses     int `json:"suspicious_processes"`
	SuspiciousModules       int `json:"suspicious_modules"`
	SuspiciousRegions       int `json:"suspicious_regions"`
	ActiveConnections       int `json:"active_connections"`
}

// EngineAttempt records one adapter invocation made by the fallback engine.
type EngineAttempt struct {
	Engine   string  `json:"engine"`
	Outcome  string  `json:"outcome"` // "success", "error", "no_data"
	Duration float64 `json:"duration_seconds"`
	Error    string  `json:"error,omitempty"`
}

type Metadata struct {
	RunID             string          `json:"run_id,omitempty"`
	OSType            OS              `json:"os_type"`
	AnalysisTimestamp string          `json:"analysis_timestamp"`
	FrameworkVersion  string          `json:"framework_version"`
	ArtifactPath      string          `json:"artifact_path,omitempty"`
	Engine            string          `json:"engine,omitempty"`
	EngineAttempts    []EngineAttempt `json:"engine_attempts,omitempty"`
}

// PluginResult is the free-form document a plugin produces. A failed plugin
// produces a single "error" key.
type PluginResult map[string]interface{}

// Error returns the error message recorded by a failed plugin, if any.
func (p PluginResult) Error() (string, bool) {
	msg, ok := p["error"].(string)
	return msg, ok
}

// AnalysisResult is the normalized view of one memory image.
type AnalysisResult struct {
	Metadata           Metadata                `json:"metadata"`
	Processes          []Process               `json:"processes"`
	NetworkConnections []NetworkConnection     `json:"network_connections"`
	KernelModules      []KernelModule          `json:"kernel_modules"`
	MemoryRegions      []MemoryRegion          `json:"memory_regions"`
	Artifacts          []Artifact              `json:"artifacts"`
	Statistics         Statistics              `json:"statistics"`
	PluginResults      map[string]PluginResult `json:"plugin_results,omitempty"`
	DetectionMetrics   *DetectionMetrics       `json:"detection_metrics,omitempty"`
	DetailedMetrics    *DetailedMetrics        `json:"detailed_metrics,omitempty"`
}

// FrameworkVersion is stamped into every result's metadata. Release builds
// override it with -ldflags.
var FrameworkVersion = "1.0.0"
