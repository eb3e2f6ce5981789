package sink

import (
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidDocument is returned when a document fails schema validation.
var ErrInvalidDocument = errors.New("document does not match schema")

// Kind names a persisted document type.
type Kind string

const (
	KindAnalysis   Kind = "analysis"
	KindExperiment Kind = "experiment"
)

//go:embed schema/*.json
var schemaFS embed.FS

var schemaFiles = map[Kind]string{
	KindAnalysis:   "schema/analysis_result.json",
	KindExperiment: "schema/experiment_result.json",
}

var (
	schemaOnce sync.Once
	schemas    map[Kind]*gojsonschema.Schema
	schemaErr  error
)

func loadSchemas() {
	schemas = make(map[Kind]*gojsonschema.Schema, len(schemaFiles))
	for kind, file := range schemaFiles {
		raw, err := schemaFS.ReadFile(file)
		if err != nil {
			schemaErr = fmt.Errorf("read schema %s: %w", file, err)
			return
		}
		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			schemaErr = fmt.Errorf("compile schema %s: %w", file, err)
			return
		}
		schemas[kind] = s
	}
}

// Validate checks a JSON document against the schema for kind.
func Validate(kind Kind, doc []byte) error {
	schemaOnce.Do(loadSchemas)
	if schemaErr != nil {
		return schemaErr
	}
	s, ok := schemas[kind]
	if !ok {
		return fmt.Errorf("no schema for document kind %q", kind)
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(msgs, "; "))
	}
	return nil
}
