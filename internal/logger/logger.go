// Package logger provides the process-wide logrus logger and the analysis
// journal, an append-only JSONL record of every analysis run.
package logger

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu     sync.Mutex
	logger *logrus.Logger
)

// ConfigureLogger initializes the logger at the given level. Unparsable
// levels fall back to info.
func ConfigureLogger(logLevel string) *logrus.Logger {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}

	l := logrus.New()
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	// stdout carries result documents
	l.SetOutput(os.Stderr)

	mu.Lock()
	logger = l
	mu.Unlock()
	return l
}

// GetLogger returns the configured logger, configuring an info-level one on
// first use.
func GetLogger() *logrus.Logger {
	mu.Lock()
	l := logger
	mu.Unlock()
	if l == nil {
		return ConfigureLogger("info")
	}
	return l
}

// Discard returns a logger that drops everything, for tests and library
// callers that want silence.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// MiniFormat switches the logger to a timestamp-free plain format, mostly
// used when asserting on log output in tests.
func MiniFormat(l *logrus.Logger) {
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:          true,
		DisableQuote:           true,
		DisableTimestamp:       true,
		DisableLevelTruncation: true,
	})
}
