package logger

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"
	"sync"

	"github.com/gzhole/memscope/internal/redact"
)

// Journal entry kinds.
const (
	KindAnalysis   = "analysis"
	KindExperiment = "experiment"
	KindValidation = "validation"
)

// JournalEntry summarizes one run. Full results go to the output sinks; the
// journal keeps only what is needed to audit what was analyzed and how.
type JournalEntry struct {
	Timestamp    string         `json:"timestamp"`
	RunID        string         `json:"run_id"`
	Kind         string         `json:"kind"`
	ArtifactPath string         `json:"artifact_path,omitempty"`
	OSType       string         `json:"os_type,omitempty"`
	Engine       string         `json:"engine,omitempty"`
	Attempts     []string       `json:"attempts,omitempty"`
	Plugins      []string       `json:"plugins,omitempty"`
	Counts       map[string]int `json:"counts,omitempty"`
	ThreatLevel  string         `json:"threat_level,omitempty"`
	Duration     float64        `json:"duration_seconds"`
	Notes        []string       `json:"notes,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// Failed reports whether the run ended in an error.
func (e JournalEntry) Failed() bool { return e.Error != "" }

type Journal struct {
	file *os.File
	mu   sync.Mutex
}

func OpenJournal(path string) (*Journal, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}
	return &Journal{file: file}, nil
}

// Record appends one entry. Free-text fields are redacted first: errors and
// notes can quote process command lines lifted from the image.
func (j *Journal) Record(entry JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if entry.Error != "" {
		entry.Error = redact.Redact(entry.Error)
	}
	entry.Notes = redact.RedactArgs(entry.Notes)
	entry.ArtifactPath = redact.Redact(entry.ArtifactPath)

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	data = append(data, '\n')
	_, err = j.file.Write(data)
	return err
}

func (j *Journal) Close() error {
	if j == nil || j.file == nil {
		return nil
	}
	return j.file.Close()
}

// ReadJournal loads every well-formed entry from path. A missing journal is
// not an error.
func ReadJournal(path string) ([]JournalEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var entries []JournalEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		var entry JournalEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue // skip malformed lines
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}
