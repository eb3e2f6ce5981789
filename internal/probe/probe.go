// Package probe answers whether an engine binary can be invoked at all.
package probe

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/gzhole/memscope/internal/execx"
	"github.com/gzhole/memscope/internal/logger"
)

const (
	DefaultTimeout   = 10 * time.Second
	DefaultCacheSize = 64
)

// Prober runs `<candidate> --help` under a short timeout and caches the
// verdict per command line, so a fallback chain probing the same binary for
// several images only pays once.
type Prober struct {
	runner  execx.Runner
	timeout time.Duration
	cache   *lru.Cache[string, bool]
	log     logrus.FieldLogger
}

func New(runner execx.Runner, timeout time.Duration, cacheSize int, log logrus.FieldLogger) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	if log == nil {
		log = logger.GetLogger()
	}
	cache, _ := lru.New[string, bool](cacheSize)
	return &Prober{runner: runner, timeout: timeout, cache: cache, log: log}
}

// Available reports whether `bin args... --help` exits with status 0.
func (p *Prober) Available(ctx context.Context, bin string, args ...string) bool {
	key := execx.CommandLine(bin, args...)
	if ok, hit := p.cache.Get(key); hit {
		return ok
	}

	probeArgs := append(append([]string{}, args...), "--help")
	res, err := p.runner.Run(ctx, p.timeout, bin, probeArgs...)
	ok := err == nil && res.OK()
	if ctx.Err() != nil {
		// a cancelled caller says nothing about the binary
		return ok
	}

	p.log.WithFields(logrus.Fields{"command": key, "available": ok}).Debug("probed engine binary")
	p.cache.Add(key, ok)
	return ok
}

// FirstAvailable returns the first candidate command that probes as
// available, or nil.
func (p *Prober) FirstAvailable(ctx context.Context, candidates [][]string) []string {
	for _, c := range candidates {
		if len(c) == 0 {
			continue
		}
		if p.Available(ctx, c[0], c[1:]...) {
			return c
		}
	}
	return nil
}

// Forget drops every cached verdict, e.g. after the user installs an engine.
func (p *Prober) Forget() {
	p.cache.Purge()
}
