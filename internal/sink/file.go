// Package sink persists and publishes result documents. Every document is
// marshalled to JSON once, validated against its embedded schema and then
// written as JSON or YAML, optionally zstd-compressed, or published to NATS.
package sink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/gzhole/memscope/internal/logger"
	"github.com/gzhole/memscope/internal/telemetry"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

const zstdExt = ".zst"

// FormatFor derives the encoding from a file name: .yaml and .yml are YAML,
// anything else JSON. A trailing .zst marks the file as compressed.
func FormatFor(path string) (Format, bool) {
	lower := strings.ToLower(path)
	compressed := strings.HasSuffix(lower, zstdExt)
	lower = strings.TrimSuffix(lower, zstdExt)
	switch filepath.Ext(lower) {
	case ".yaml", ".yml":
		return FormatYAML, compressed
	}
	return FormatJSON, compressed
}

// Encode marshals v as indented JSON or as YAML. YAML is produced from the
// JSON form so both encodings share the JSON field names.
func Encode(v interface{}, format Format) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	if format != FormatYAML {
		return data, nil
	}
	return jsonToYAML(data)
}

func jsonToYAML(data []byte) ([]byte, error) {
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}

type FileWriter struct {
	Validate bool
	log      logrus.FieldLogger
	metrics  *telemetry.Metrics
}

func NewFileWriter(validate bool, log logrus.FieldLogger, metrics *telemetry.Metrics) *FileWriter {
	if log == nil {
		log = logger.GetLogger()
	}
	return &FileWriter{Validate: validate, log: log, metrics: metrics}
}

// Write persists v to path in the format the file name asks for.
func (w *FileWriter) Write(path string, kind Kind, v interface{}) (err error) {
	defer func() { w.metrics.ObserveSink("file", err) }()

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s document: %w", kind, err)
	}
	if w.Validate {
		if err := Validate(kind, raw); err != nil {
			return err
		}
	}

	format, compressed := FormatFor(path)
	data, err := Encode(v, format)
	if err != nil {
		return err
	}
	if compressed {
		if data, err = compress(data); err != nil {
			return err
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	w.log.WithFields(logrus.Fields{
		"path":       path,
		"kind":       kind,
		"format":     format,
		"compressed": compressed,
		"bytes":      len(data),
	}).Info("result written")
	return nil
}

// ReadFile returns the contents of a file written by FileWriter,
// decompressing .zst files.
func ReadFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if _, compressed := FormatFor(path); !compressed {
		return io.ReadAll(f)
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer dec.Close()
	return io.ReadAll(dec)
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		return nil, fmt.Errorf("compress: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	return buf.Bytes(), nil
}
