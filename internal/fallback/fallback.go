// Package fallback picks an engine for an OS profile and walks an ordered
// fallback chain until one engine produces data.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gzhole/memscope/internal/engine"
	"github.com/gzhole/memscope/internal/logger"
	"github.com/gzhole/memscope/internal/model"
	"github.com/gzhole/memscope/internal/telemetry"
)

// ErrAllEnginesExhausted is returned when every engine in the chain failed
// or produced no data.
var ErrAllEnginesExhausted = errors.New("all engines exhausted")

// errNoData marks an attempt whose engine ran but extracted nothing.
var errNoData = errors.New("engine returned no data")

// Attempt outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeNoData  = "no_data"
)

// Selection is the primary engine per OS plus the ordered fallbacks.
type Selection struct {
	Primary          map[string]string   `yaml:"primary"`
	Fallbacks        map[string][]string `yaml:"fallbacks"`
	DefaultPrimary   string              `yaml:"default_primary"`
	DefaultFallbacks []string            `yaml:"default_fallbacks"`
}

func DefaultSelection() Selection {
	return Selection{
		Primary: map[string]string{
			string(model.OSWindows): engine.Volatility,
			string(model.OSLinux):   engine.Volatility,
			string(model.OSMacOS):   engine.Rekall,
		},
		Fallbacks: map[string][]string{
			string(model.OSMacOS): {engine.MemProcFS},
		},
		DefaultPrimary:   engine.Volatility,
		DefaultFallbacks: []string{engine.Rekall, engine.MemProcFS},
	}
}

// Chain returns the engines to try for os, primary first. Duplicates are
// dropped so an engine is never invoked twice for one image.
func (s Selection) Chain(os model.OS) []string {
	primary, ok := s.Primary[string(os)]
	if !ok || primary == "" {
		primary = s.DefaultPrimary
	}
	fallbacks, ok := s.Fallbacks[string(os)]
	if !ok {
		fallbacks = s.DefaultFallbacks
	}

	seen := make(map[string]bool, len(fallbacks)+1)
	chain := make([]string, 0, len(fallbacks)+1)
	for _, name := range append([]string{primary}, fallbacks...) {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		chain = append(chain, name)
	}
	return chain
}

// ExhaustedError carries every attempt made before giving up. It matches
// ErrAllEnginesExhausted and each attempt's own error under errors.Is.
type ExhaustedError struct {
	Attempts []model.EngineAttempt
	errs     []error
}

func (e *ExhaustedError) Error() string {
	reasons := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		reasons = append(reasons, fmt.Sprintf("%s: %s", a.Engine, a.Error))
	}
	return fmt.Sprintf("%s (%s)", ErrAllEnginesExhausted, strings.Join(reasons, "; "))
}

func (e *ExhaustedError) Unwrap() []error {
	return append([]error{ErrAllEnginesExhausted}, e.errs...)
}

// Outcome is the result of a successful chain walk.
type Outcome struct {
	Engine   string
	Raw      model.RawResult
	Attempts []model.EngineAttempt
}

type Engine struct {
	adapters  map[string]engine.Adapter
	selection Selection
	metrics   *telemetry.Metrics
	log       logrus.FieldLogger
	now       func() time.Time
}

type Option func(*Engine)

func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = l }
}

// WithClock replaces time.Now, for deterministic attempt durations.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(adapters map[string]engine.Adapter, selection Selection, opts ...Option) *Engine {
	e := &Engine{adapters: adapters, selection: selection, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logger.GetLogger()
	}
	return e
}

func (e *Engine) Selection() Selection { return e.selection }

// Adapters returns the configured adapters by name.
func (e *Engine) Adapters() map[string]engine.Adapter { return e.adapters }

// Run tries each engine in the chain for os, strictly in order. Adapter
// errors and all-empty results move on to the next engine; only exhaustion
// or cancellation is returned to the caller.
func (e *Engine) Run(ctx context.Context, artifactPath string, os model.OS) (Outcome, error) {
	var (
		attempts []model.EngineAttempt
		errs     []error
	)
	log := e.log.WithFields(logrus.Fields{"artifact": artifactPath, "os": os})

	for i, name := range e.selection.Chain(os) {
		attemptLog := log.WithFields(logrus.Fields{"engine": name, "attempt": i + 1})
		adapter, ok := e.adapters[name]
		if !ok {
			err := fmt.Errorf("%s: no adapter configured", name)
			attempts = append(attempts, model.EngineAttempt{Engine: name, Outcome: OutcomeError, Error: err.Error()})
			errs = append(errs, err)
			attemptLog.Warn("skipping engine without adapter")
			continue
		}

		if i == 0 {
			attemptLog.Info("running primary engine")
		} else {
			attemptLog.Info("falling back to next engine")
		}

		start := e.now()
		raw, err := adapter.Analyze(ctx, artifactPath, os)
		elapsed := e.now().Sub(start)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return Outcome{Attempts: attempts}, fmt.Errorf("analysis of %s cancelled: %w", artifactPath, ctxErr)
		}

		attempt := model.EngineAttempt{Engine: name, Duration: elapsed.Seconds()}
		switch {
		case err != nil:
			attempt.Outcome = OutcomeError
			attempt.Error = err.Error()
			errs = append(errs, err)
			attemptLog.WithError(err).Warn("engine failed")
		case raw.IsEmpty():
			attempt.Outcome = OutcomeNoData
			attempt.Error = errNoData.Error()
			errs = append(errs, fmt.Errorf("%s: %w", name, errNoData))
			attemptLog.Warn("engine returned no data")
		default:
			attempt.Outcome = OutcomeSuccess
		}
		e.metrics.ObserveAttempt(name, attempt.Outcome, elapsed)
		attempts = append(attempts, attempt)

		if attempt.Outcome == OutcomeSuccess {
			attemptLog.WithField("records", raw.Count()).Info("engine succeeded")
			return Outcome{Engine: name, Raw: raw, Attempts: attempts}, nil
		}
	}

	e.metrics.IncExhausted()
	exhausted := &ExhaustedError{Attempts: attempts, errs: errs}
	log.WithError(exhausted).Error("all engines exhausted")
	return Outcome{Attempts: attempts}, exhausted
}
