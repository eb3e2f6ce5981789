package plugin

import (
	"math"
	"regexp"
	"strings"

	"github.com/scylladb/go-set/strset"

	"github.com/gzhole/memscope/internal/model"
	"github.com/gzhole/memscope/internal/unicode"
)

// Reasons attached to suspicious processes. The first three are always
// checked, in this order.
const (
	ReasonTempLocation  = "Temporary location"
	ReasonPowerShell    = "PowerShell usage"
	ReasonBase64        = "Base64 encoding"
	ReasonDualUse       = "Dual-use binary"
	ReasonDownload      = "Download cradle"
	ReasonHiddenWindow  = "Hidden or policy-bypassing invocation"
	ReasonMasquerade    = "Masqueraded process name"
	artifactTypeMalfind = "malfind"
)

// MalwareIndicator is one rule hit on one process.
type MalwareIndicator struct {
	Type      string `json:"type"`
	Process   string `json:"process"`
	PID       int    `json:"pid"`
	Indicator string `json:"indicator"`
	Severity  string `json:"severity"`
}

type SuspiciousProcess struct {
	PID         int      `json:"pid"`
	Name        string   `json:"name"`
	CommandLine string   `json:"command_line"`
	Reasons     []string `json:"reasons"`
}

// processView is what the rules look at: lower-cased name, command line,
// its tokens and the executable's base name.
type processView struct {
	name    string
	cmdline string
	tokens  []string
	exe     string
	raw     model.Process
}

type malwareRule struct {
	id       string
	reason   string
	severity string
	match    func(v processView) (string, bool)
}

// MalwareScorer scores process and artifact evidence of compromise.
type MalwareScorer struct {
	rules []malwareRule
}

func NewMalwareScorer() *MalwareScorer {
	s := &MalwareScorer{}
	s.rules = s.buildRules()
	return s
}

func (s *MalwareScorer) Name() string { return Malware }

func (s *MalwareScorer) Analyze(res *model.AnalysisResult) model.PluginResult {
	indicators := []MalwareIndicator{}
	procs := []SuspiciousProcess{}
	artifacts := []model.Artifact{}

	for _, p := range res.Processes {
		v := newProcessView(p)
		var reasons []string
		for _, r := range s.rules {
			hit, ok := r.match(v)
			if !ok {
				continue
			}
			indicators = append(indicators, MalwareIndicator{
				Type:      r.id,
				Process:   p.Name,
				PID:       p.PID,
				Indicator: hit,
				Severity:  r.severity,
			})
			reasons = appendUnique(reasons, r.reason)
		}
		if len(reasons) == 0 {
			continue
		}
		procs = append(procs, SuspiciousProcess{
			PID:         p.PID,
			Name:        p.Name,
			CommandLine: p.CommandLine,
			Reasons:     orderReasons(SuspiciousReasons(p.Name, p.CommandLine), reasons),
		})
	}

	for _, a := range res.Artifacts {
		if strings.EqualFold(a.Type, artifactTypeMalfind) {
			artifacts = append(artifacts, a)
		}
	}

	score := ConfidenceScore(len(indicators), len(procs), len(artifacts))
	return model.PluginResult{
		"malware_indicators":   indicators,
		"suspicious_processes": procs,
		"suspicious_artifacts": artifacts,
		"confidence_score":     score,
		"threat_level":         ThreatLevel(score),
	}
}

// SuspiciousReasons applies the three fixed checks, in order: location,
// PowerShell, Base64.
func SuspiciousReasons(location, invocation string) []string {
	var reasons []string
	loc := strings.ToLower(location)
	inv := strings.ToLower(invocation)
	if strings.Contains(loc, "temp") {
		reasons = append(reasons, ReasonTempLocation)
	}
	if strings.Contains(inv, "powershell") {
		reasons = append(reasons, ReasonPowerShell)
	}
	ps := mentionsPowerShell(inv)
	for _, tok := range Tokenize(inv) {
		if isBase64Flag(tok, ps) {
			reasons = append(reasons, ReasonBase64)
			break
		}
	}
	return reasons
}

// ConfidenceScore weighs indicators 0.1, suspicious processes 0.2 and
// malfind artifacts 0.3 each, capped at 1.
func ConfidenceScore(indicators, processes, artifacts int) float64 {
	score := 0.1*float64(indicators) + 0.2*float64(processes) + 0.3*float64(artifacts)
	return math.Min(1, math.Round(score*1000)/1000)
}

// ThreatLevel buckets a confidence score.
func ThreatLevel(score float64) string {
	switch {
	case score >= 0.8:
		return "high"
	case score >= 0.5:
		return "medium"
	}
	return "low"
}

func (s *MalwareScorer) buildRules() []malwareRule {
	return []malwareRule{
		{
			id:       "temp_execution",
			reason:   ReasonTempLocation,
			severity: "medium",
			match: func(v processView) (string, bool) {
				if strings.Contains(v.name, "temp") || strings.Contains(v.name, "tmp") {
					return v.raw.Name, true
				}
				for _, dir := range tempDirs {
					if strings.Contains(v.exe, dir) {
						return v.exe, true
					}
				}
				return "", false
			},
		},
		{
			id:       "powershell",
			reason:   ReasonPowerShell,
			severity: "medium",
			match: func(v processView) (string, bool) {
				if mentionsPowerShell(v.cmdline) {
					return "powershell", true
				}
				return "", false
			},
		},
		{
			id:       "encoded_command",
			reason:   ReasonBase64,
			severity: "high",
			match: func(v processView) (string, bool) {
				ps := mentionsPowerShell(v.cmdline)
				for _, tok := range v.tokens {
					if isBase64Flag(tok, ps) {
						return tok, true
					}
				}
				if strings.Contains(v.cmdline, "frombase64string") {
					return "frombase64string", true
				}
				if m := base64PayloadPattern.FindString(v.raw.CommandLine); m != "" {
					return truncate(m, 24), true
				}
				return "", false
			},
		},
		{
			id:       "dual_use_binary",
			reason:   ReasonDualUse,
			severity: "low",
			match: func(v processView) (string, bool) {
				base := strings.TrimSuffix(baseName(v.name), ".exe")
				if dualUseBinaries.Has(base) {
					return v.raw.Name, true
				}
				return "", false
			},
		},
		{
			id:       "download_cradle",
			reason:   ReasonDownload,
			severity: "high",
			match: func(v processView) (string, bool) {
				for _, s := range downloadCradles {
					if strings.Contains(v.cmdline, s) {
						return s, true
					}
				}
				return "", false
			},
		},
		{
			id:       "hidden_invocation",
			reason:   ReasonHiddenWindow,
			severity: "medium",
			match: func(v processView) (string, bool) {
				for i, tok := range v.tokens {
					next := ""
					if i+1 < len(v.tokens) {
						next = v.tokens[i+1]
					}
					if isFlag(tok, "-windowstyle", 1) && next == "hidden" {
						return tok + " hidden", true
					}
					if (tok == "-ep" || isFlag(tok, "-executionpolicy", 2)) && next == "bypass" {
						return tok + " bypass", true
					}
				}
				return "", false
			},
		},
		{
			id:       "masquerade",
			reason:   ReasonMasquerade,
			severity: "high",
			match: func(v processView) (string, bool) {
				scan := unicode.ScanName(v.raw.Name)
				if scan.Masquerading() {
					return scan.Findings[0].String(), true
				}
				return "", false
			},
		},
	}
}

var (
	tempDirs = []string{`\temp\`, `/tmp/`, `\appdata\local\temp`, `/var/tmp/`, `/dev/shm/`}

	dualUseBinaries = strset.New(
		"cmd", "powershell", "pwsh", "wscript", "cscript", "rundll32", "regsvr32",
		"mshta", "certutil", "bitsadmin", "wmic", "msbuild", "installutil",
	)

	downloadCradles = []string{
		"downloadstring", "downloadfile", "invoke-webrequest", "net.webclient",
		"start-bitstransfer", "bitsadmin /transfer", "certutil -urlcache",
		"certutil.exe -urlcache", "curl http", "wget http", "iwr http",
	}

	// long base64 runs that are likely encoded payloads
	base64PayloadPattern = regexp.MustCompile(`[A-Za-z0-9+/]{40,}={0,2}`)
)

func newProcessView(p model.Process) processView {
	cmdline := strings.ToLower(p.CommandLine)
	tokens := Tokenize(cmdline)
	exe := ""
	if len(tokens) > 0 {
		exe = tokens[0]
	}
	return processView{
		name:    strings.ToLower(p.Name),
		cmdline: cmdline,
		tokens:  tokens,
		exe:     exe,
		raw:     p,
	}
}

// isBase64Flag matches PowerShell's -EncodedCommand and tokens that mention
// base64. The one- and two-letter abbreviations (-e, -ec, -en) only count on
// PowerShell command lines; elsewhere -e is too common.
func isBase64Flag(tok string, powershell bool) bool {
	tok = strings.ToLower(tok)
	if powershell && (tok == "-ec" || tok == "/ec" || isFlag(tok, "-encodedcommand", 1)) {
		return true
	}
	if isFlag(tok, "-encodedcommand", 3) {
		return true
	}
	return strings.Contains(tok, "base64")
}

func mentionsPowerShell(s string) bool {
	return strings.Contains(s, "powershell") || strings.Contains(s, "pwsh")
}

// baseName strips any Windows or POSIX directory prefix.
func baseName(name string) string {
	if i := strings.LastIndexAny(name, `\/`); i >= 0 {
		return name[i+1:]
	}
	return name
}

// isFlag reports whether tok is an abbreviation of flag at least min
// characters long after the dash. PowerShell also accepts '/' as the prefix.
func isFlag(tok, flag string, min int) bool {
	if strings.HasPrefix(tok, "/") {
		tok = "-" + tok[1:]
	}
	if len(tok) < min+1 || !strings.HasPrefix(tok, "-") {
		return false
	}
	return strings.HasPrefix(flag, tok)
}

func orderReasons(fixed, fired []string) []string {
	out := append([]string{}, fixed...)
	for _, r := range fired {
		out = appendUnique(out, r)
	}
	return out
}

func appendUnique(list []string, s string) []string {
	for _, x := range list {
		if x == s {
			return list
		}
	}
	return append(list, s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
