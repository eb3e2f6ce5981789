package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRawRecordAccessors(t *testing.T) {
	rec := RawRecord{
		"PID":           json.Number("4"),
		"ImageFileName": "System",
		"Offset":        float64(255),
		"Threads":       "12",
		"Bad":           "n/a",
		"Null":          nil,
		"Conf":          "0.75",
	}

	if got := rec.Int(0, "pid", "PID"); got != 4 {
		t.Errorf("expected pid 4, got %d", got)
	}
	if got := rec.String("unknown", "name", "ImageFileName"); got != "System" {
		t.Errorf("expected System, got %q", got)
	}
	if got := rec.Int(0, "Threads"); got != 12 {
		t.Errorf("expected 12 threads, got %d", got)
	}
	if got := rec.Int(-1, "Bad"); got != -1 {
		t.Errorf("expected default for non-numeric, got %d", got)
	}
	if got := rec.String("dflt", "Null"); got != "dflt" {
		t.Errorf("expected nil value to fall back to default, got %q", got)
	}
	if got := rec.Address("", "Offset"); got != "0xff" {
		t.Errorf("expected 0xff, got %q", got)
	}
	if got := rec.Float(0, "Conf"); got != 0.75 {
		t.Errorf("expected 0.75, got %v", got)
	}
	if rec.Has("missing") {
		t.Error("expected Has(missing) to be false")
	}
}

func TestRawRecordHexString(t *testing.T) {
	rec := RawRecord{"size": "0x1000"}
	if got := rec.Int(0, "size"); got != 4096 {
		t.Errorf("expected 4096, got %d", got)
	}
}

func TestRawResultIsEmpty(t *testing.T) {
	var r RawResult
	if !r.IsEmpty() {
		t.Error("zero RawResult should be empty")
	}
	r.Set(CategoryArtifacts, []RawRecord{{"x": 1}})
	if r.IsEmpty() {
		t.Error("result with an artifact should not be empty")
	}
	if r.Count() != 1 {
		t.Errorf("expected count 1, got %d", r.Count())
	}
	if len(r.Get(CategoryArtifacts)) != 1 {
		t.Error("Get should return what Set stored")
	}
}

func TestParseOS(t *testing.T) {
	tests := []struct {
		in   string
		want OS
		ok   bool
	}{
		{"Windows", OSWindows, true},
		{"linux", OSLinux, true},
		{"darwin", OSMacOS, true},
		{" mac ", OSMacOS, true},
		{"plan9", OS("plan9"), false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseOS(tt.in)
			if ok != tt.ok || got != OS(strings.TrimSpace(string(tt.want))) {
				t.Errorf("ParseOS(%q) = %q,%v; expected %q,%v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestFileEventDeletedHasNilTarget(t *testing.T) {
	e := FileEvent(ActivityDeleted, "a.txt", "")
	if v, ok := e["target_file"]; !ok || v != nil {
		t.Errorf("expected nil target_file, got %v (present=%v)", v, ok)
	}
	if e.Type() != EventFileActivity || e.Activity() != ActivityDeleted {
		t.Errorf("unexpected type/activity: %s/%s", e.Type(), e.Activity())
	}
}
