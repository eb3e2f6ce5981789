// Package engine adapts external memory-forensics engines (Volatility 3,
// Rekall, MemProcFS) to a common raw-result shape. All three are driven by
// the same CommandAdapter; only their Spec differs.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gzhole/memscope/internal/execx"
	"github.com/gzhole/memscope/internal/logger"
	"github.com/gzhole/memscope/internal/model"
	"github.com/gzhole/memscope/internal/probe"
	"github.com/gzhole/memscope/internal/telemetry"
)

// ErrEngineUnavailable is returned when no candidate binary of an engine
// can be invoked.
var ErrEngineUnavailable = errors.New("engine unavailable")

// Adapter turns a memory image into a RawResult using one engine.
type Adapter interface {
	Name() string
	Available(ctx context.Context) bool
	Analyze(ctx context.Context, artifactPath string, os model.OS) (model.RawResult, error)
}

type CommandAdapter struct {
	spec    Spec
	runner  execx.Runner
	prober  *probe.Prober
	metrics *telemetry.Metrics
	log     logrus.FieldLogger
}

type Option func(*CommandAdapter)

func WithMetrics(m *telemetry.Metrics) Option {
	return func(a *CommandAdapter) { a.metrics = m }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(a *CommandAdapter) { a.log = l }
}

func NewCommandAdapter(spec Spec, runner execx.Runner, prober *probe.Prober, opts ...Option) *CommandAdapter {
	a := &CommandAdapter{spec: spec, runner: runner, prober: prober}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = logger.GetLogger()
	}
	a.log = a.log.WithField("engine", spec.Name)
	return a
}

func (a *CommandAdapter) Name() string { return a.spec.Name }

func (a *CommandAdapter) Spec() Spec { return a.spec }

func (a *CommandAdapter) Available(ctx context.Context) bool {
	return a.prober.FirstAvailable(ctx, a.spec.Candidates) != nil
}

// Analyze extracts every category the OS table names. A category whose
// command fails is logged and left empty; only an unavailable engine or a
// cancelled context fails the whole call.
func (a *CommandAdapter) Analyze(ctx context.Context, artifactPath string, os model.OS) (model.RawResult, error) {
	var raw model.RawResult

	cmd := a.prober.FirstAvailable(ctx, a.spec.Candidates)
	if cmd == nil {
		if a.spec.EmptyWhenUnavailable {
			a.log.Warn("engine not installed, returning empty result")
			return raw, nil
		}
		return raw, fmt.Errorf("%s: %w", a.spec.Name, ErrEngineUnavailable)
	}

	plugins := a.spec.PluginsFor(os)
	for _, cat := range model.Categories {
		plugin := plugins[cat]
		if plugin == "" {
			continue
		}
		recs, err := a.extract(ctx, cmd, artifactPath, plugin, cat)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return model.RawResult{}, fmt.Errorf("%s: %w", a.spec.Name, ctxErr)
			}
			a.log.WithFields(logrus.Fields{
				"category": cat,
				"plugin":   plugin,
			}).WithError(err).Warn("category extraction failed")
			a.metrics.ObserveCategory(a.spec.Name, string(cat), 0, true)
			continue
		}
		a.metrics.ObserveCategory(a.spec.Name, string(cat), len(recs), false)
		raw.Set(cat, recs)
	}
	return raw, nil
}

func (a *CommandAdapter) extract(ctx context.Context, cmd []string, artifactPath, plugin string, cat model.Category) ([]model.RawRecord, error) {
	args := append(append([]string{}, cmd[1:]...), a.spec.Expand(artifactPath, plugin)...)

	start := time.Now()
	res, err := a.runner.Run(ctx, a.spec.timeout(), cmd[0], args...)
	if err != nil {
		return nil, err
	}

	log := a.log.WithFields(logrus.Fields{
		"category": cat,
		"plugin":   plugin,
		"exit":     res.ExitCode,
		"elapsed":  time.Since(start).Round(time.Millisecond),
	})

	if res.OK() {
		if recs, ok := ParseJSON(res.Stdout); ok {
			log.WithField("records", len(recs)).Debug("parsed structured output")
			return recs, nil
		}
	} else {
		log.WithField("stderr", firstLine(res.Stderr)).Debug("plugin exited non-zero, parsing text output")
	}

	recs := ParseText(cat, res.Stdout)
	log.WithField("records", len(recs)).Debug("parsed text output")
	return recs, nil
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}

// NewAdapters builds one adapter per spec, sharing runner and prober.
func NewAdapters(specs map[string]Spec, runner execx.Runner, prober *probe.Prober, opts ...Option) map[string]Adapter {
	out := make(map[string]Adapter, len(specs))
	for name, spec := range specs {
		if spec.Name == "" {
			spec.Name = name
		}
		out[name] = NewCommandAdapter(spec, runner, prober, opts...)
	}
	return out
}
