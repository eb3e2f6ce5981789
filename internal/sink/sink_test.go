package sink

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nats-io/nats.go"
	"gopkg.in/yaml.v3"

	"github.com/gzhole/memscope/internal/logger"
	"github.com/gzhole/memscope/internal/model"
	"github.com/gzhole/memscope/internal/standardize"
)

func sampleResult() model.AnalysisResult {
	raw := model.RawResult{
		Processes: []model.RawRecord{{"pid": 1234, "name": "test.exe", "parent_pid": 5678}},
		Artifacts: []model.RawRecord{{"type": "malfind", "confidence": 0.9, "severity": "high"}},
	}
	res := standardize.Standardize(raw, model.OSWindows)
	res.Metadata.RunID = "run-1"
	res.Metadata.Engine = "volatility"
	res.Metadata.EngineAttempts = []model.EngineAttempt{{Engine: "volatility", Outcome: "success", Duration: 1.5}}
	return res
}

func TestFormatFor(t *testing.T) {
	tests := []struct {
		path       string
		format     Format
		compressed bool
	}{
		{"out.json", FormatJSON, false},
		{"out.YAML", FormatYAML, false},
		{"out.yml.zst", FormatYAML, true},
		{"out.json.zst", FormatJSON, true},
		{"out", FormatJSON, false},
	}
	for _, tt := range tests {
		f, c := FormatFor(tt.path)
		if f != tt.format || c != tt.compressed {
			t.Errorf("FormatFor(%q) = %s,%v; expected %s,%v", tt.path, f, c, tt.format, tt.compressed)
		}
	}
}

func TestValidate_StandardizedResult(t *testing.T) {
	data, err := json.Marshal(sampleResult())
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(KindAnalysis, data); err != nil {
		t.Errorf("standardized result should validate: %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing arrays", `{"metadata":{"os_type":"windows","analysis_timestamp":"t","framework_version":"1"}}`},
		{"unknown os", `{"metadata":{"os_type":"plan9","analysis_timestamp":"t","framework_version":"1"},
			"processes":[],"network_connections":[],"kernel_modules":[],"memory_regions":[],"artifacts":[],
			"statistics":{"total_processes":0,"total_network_connections":0,"total_kernel_modules":0,
			"suspicious_processes":0,"suspicious_modules":0,"active_connections":0}}`},
		{"confidence out of range", `{"metadata":{"os_type":"linux","analysis_timestamp":"t","framework_version":"1"},
			"processes":[],"network_connections":[],"kernel_modules":[],"memory_regions":[],
			"artifacts":[{"type":"malfind","description":"","location":"memory","confidence":1.5,"severity":"high"}],
			"statistics":{"total_processes":0,"total_network_connections":0,"total_kernel_modules":0,
			"suspicious_processes":0,"suspicious_modules":0,"active_connections":0}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(KindAnalysis, []byte(tt.doc))
			if !errors.Is(err, ErrInvalidDocument) {
				t.Errorf("expected ErrInvalidDocument, got %v", err)
			}
		})
	}
}

func TestValidate_UnknownKind(t *testing.T) {
	if err := Validate(Kind("report"), []byte(`{}`)); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestFileWriter_Formats(t *testing.T) {
	dir := t.TempDir()
	w := NewFileWriter(true, logger.Discard(), nil)
	res := sampleResult()

	for _, name := range []string{"r.json", "nested/r.yaml", "r.json.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := w.Write(path, KindAnalysis, res); err != nil {
				t.Fatalf("write: %v", err)
			}
			data, err := ReadFile(path)
			if err != nil {
				t.Fatalf("read: %v", err)
			}

			var doc map[string]interface{}
			if format, _ := FormatFor(path); format == FormatYAML {
				err = yaml.Unmarshal(data, &doc)
			} else {
				err = json.Unmarshal(data, &doc)
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			procs, ok := doc["processes"].([]interface{})
			if !ok || len(procs) != 1 {
				t.Fatalf("expected one process, got %v", doc["processes"])
			}
			if name := procs[0].(map[string]interface{})["name"]; name != "test.exe" {
				t.Errorf("expected test.exe, got %v", name)
			}
		})
	}
}

func TestFileWriter_JSONIsIndented(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.json")
	if err := NewFileWriter(false, logger.Discard(), nil).Write(path, KindAnalysis, sampleResult()); err != nil {
		t.Fatal(err)
	}
	data, _ := ReadFile(path)
	if !strings.Contains(string(data), "\n  \"metadata\"") {
		t.Errorf("expected indented JSON, got %.80s", data)
	}
}

func TestFileWriter_ValidationBlocksWrite(t *testing.T) {
	res := sampleResult()
	res.Metadata.OSType = "plan9"
	path := filepath.Join(t.TempDir(), "bad.json")

	err := NewFileWriter(true, logger.Discard(), nil).Write(path, KindAnalysis, res)
	if !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument, got %v", err)
	}
	if _, err := ReadFile(path); err == nil {
		t.Error("invalid document should not be written")
	}
}

type fakeConn struct {
	msgs []*nats.Msg
	err  error
}

func (f *fakeConn) PublishMsg(m *nats.Msg) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, m)
	return nil
}

func TestPublisher_Publish(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, "", logger.Discard(), nil)

	err := p.Publish(context.Background(), KindAnalysis, sampleResult(), map[string]string{"x-run-id": "run-1"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(conn.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(conn.msgs))
	}
	msg := conn.msgs[0]
	if msg.Subject != "memscope.results.analysis" {
		t.Errorf("unexpected subject %s", msg.Subject)
	}
	if msg.Header.Get("x-run-id") != "run-1" || msg.Header.Get("x-document-kind") != "analysis" {
		t.Errorf("unexpected headers %v", msg.Header)
	}
	var doc model.AnalysisResult
	if err := json.Unmarshal(msg.Data, &doc); err != nil || doc.Metadata.RunID != "run-1" {
		t.Errorf("unexpected payload: %v %+v", err, doc.Metadata)
	}
}

func TestPublisher_Errors(t *testing.T) {
	p := NewPublisher(&fakeConn{err: errors.New("nats: connection closed")}, "lab", logger.Discard(), nil)
	if err := p.Publish(context.Background(), KindAnalysis, sampleResult(), nil); err == nil || !strings.Contains(err.Error(), "connection closed") {
		t.Errorf("expected publish error, got %v", err)
	}
	if p.Subject(KindExperiment) != "lab.experiment" {
		t.Errorf("unexpected subject %s", p.Subject(KindExperiment))
	}

	conn := &fakeConn{}
	p = NewPublisher(conn, "", logger.Discard(), nil)
	bad := sampleResult()
	bad.Processes = nil
	if err := p.Publish(context.Background(), KindAnalysis, bad, nil); !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("expected schema rejection, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Publish(ctx, KindAnalysis, sampleResult(), nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(conn.msgs) != 0 {
		t.Error("nothing should have been published")
	}
}
