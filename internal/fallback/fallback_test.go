package fallback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gzhole/memscope/internal/engine"
	"github.com/gzhole/memscope/internal/logger"
	"github.com/gzhole/memscope/internal/model"
	"github.com/gzhole/memscope/internal/telemetry"
)

type fakeAdapter struct {
	name string
	raw  model.RawResult
	err  error
	hook func()

	mu    sync.Mutex
	calls int
}

func (f *fakeAdapter) Name() string                     { return f.name }
func (f *fakeAdapter) Available(_ context.Context) bool { return f.err == nil }
func (f *fakeAdapter) Analyze(_ context.Context, _ string, _ model.OS) (model.RawResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.hook != nil {
		f.hook()
	}
	return f.raw, f.err
}

func withProcess() model.RawResult {
	return model.RawResult{Processes: []model.RawRecord{{"pid": 4, "name": "System"}}}
}

func adapters(list ...*fakeAdapter) map[string]engine.Adapter {
	out := make(map[string]engine.Adapter, len(list))
	for _, a := range list {
		out[a.name] = a
	}
	return out
}

func TestSelection_Chain(t *testing.T) {
	s := DefaultSelection()
	tests := []struct {
		os   model.OS
		want []string
	}{
		{model.OSWindows, []string{"volatility", "rekall", "memprocfs"}},
		{model.OSLinux, []string{"volatility", "rekall", "memprocfs"}},
		{model.OSMacOS, []string{"rekall", "memprocfs"}},
		{model.OS("solaris"), []string{"volatility", "rekall", "memprocfs"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.os), func(t *testing.T) {
			assert.Equal(t, tt.want, s.Chain(tt.os))
		})
	}
}

func TestSelection_ChainDeduplicates(t *testing.T) {
	s := Selection{
		Primary:          map[string]string{"linux": "rekall"},
		DefaultPrimary:   "volatility",
		DefaultFallbacks: []string{"rekall", "volatility", "", "memprocfs"},
	}
	assert.Equal(t, []string{"rekall", "volatility", "memprocfs"}, s.Chain(model.OSLinux))
}

func TestEngine_PrimarySucceeds(t *testing.T) {
	vol := &fakeAdapter{name: "volatility", raw: withProcess()}
	rek := &fakeAdapter{name: "rekall", raw: withProcess()}
	e := New(adapters(vol, rek), DefaultSelection(), WithLogger(logger.Discard()))

	out, err := e.Run(context.Background(), "/x.raw", model.OSWindows)
	require.NoError(t, err)
	assert.Equal(t, "volatility", out.Engine)
	assert.Len(t, out.Attempts, 1)
	assert.Equal(t, OutcomeSuccess, out.Attempts[0].Outcome)
	assert.Equal(t, 0, rek.calls)
}

func TestEngine_FallsBackOnErrorAndNoData(t *testing.T) {
	vol := &fakeAdapter{name: "volatility", err: engine.ErrEngineUnavailable}
	rek := &fakeAdapter{name: "rekall"} // empty result
	mem := &fakeAdapter{name: "memprocfs", raw: withProcess()}
	m := telemetry.New()
	e := New(adapters(vol, rek, mem), DefaultSelection(), WithLogger(logger.Discard()), WithMetrics(m))

	out, err := e.Run(context.Background(), "/x.raw", model.OSLinux)
	require.NoError(t, err)
	assert.Equal(t, "memprocfs", out.Engine)
	require.Len(t, out.Attempts, 3)
	assert.Equal(t, OutcomeError, out.Attempts[0].Outcome)
	assert.Equal(t, OutcomeNoData, out.Attempts[1].Outcome)
	assert.Equal(t, OutcomeSuccess, out.Attempts[2].Outcome)
	assert.Equal(t, 1, vol.calls)
	assert.Equal(t, 1, rek.calls)
	assert.Equal(t, 1, mem.calls)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EngineAttempts.WithLabelValues("rekall", OutcomeNoData)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ChainsExhausted))
}

func TestEngine_MacOSChain(t *testing.T) {
	vol := &fakeAdapter{name: "volatility", raw: withProcess()}
	rek := &fakeAdapter{name: "rekall", err: errors.New("profile not found")}
	mem := &fakeAdapter{name: "memprocfs", raw: withProcess()}
	e := New(adapters(vol, rek, mem), DefaultSelection(), WithLogger(logger.Discard()))

	out, err := e.Run(context.Background(), "/mac.raw", model.OSMacOS)
	require.NoError(t, err)
	assert.Equal(t, "memprocfs", out.Engine)
	assert.Equal(t, 0, vol.calls, "volatility is not in the macos chain")
}

func TestEngine_Exhausted(t *testing.T) {
	vol := &fakeAdapter{name: "volatility", err: engine.ErrEngineUnavailable}
	rek := &fakeAdapter{name: "rekall"}
	mem := &fakeAdapter{name: "memprocfs", err: errors.New("bad image")}
	m := telemetry.New()
	e := New(adapters(vol, rek, mem), DefaultSelection(), WithLogger(logger.Discard()), WithMetrics(m))

	out, err := e.Run(context.Background(), "/x.raw", model.OSWindows)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAllEnginesExhausted))
	assert.True(t, errors.Is(err, engine.ErrEngineUnavailable))
	assert.Contains(t, err.Error(), "memprocfs: bad image")
	assert.Len(t, out.Attempts, 3)

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Len(t, exhausted.Attempts, 3)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChainsExhausted))
}

func TestEngine_MissingAdapterIsSkipped(t *testing.T) {
	rek := &fakeAdapter{name: "rekall", raw: withProcess()}
	e := New(adapters(rek), DefaultSelection(), WithLogger(logger.Discard()))

	out, err := e.Run(context.Background(), "/x.raw", model.OSWindows)
	require.NoError(t, err)
	assert.Equal(t, "rekall", out.Engine)
	assert.Equal(t, OutcomeError, out.Attempts[0].Outcome)
	assert.Contains(t, out.Attempts[0].Error, "no adapter configured")
}

func TestEngine_CancellationStopsChain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	vol := &fakeAdapter{name: "volatility", err: context.Canceled, hook: cancel}
	rek := &fakeAdapter{name: "rekall", raw: withProcess()}
	e := New(adapters(vol, rek), DefaultSelection(), WithLogger(logger.Discard()))

	_, err := e.Run(ctx, "/x.raw", model.OSWindows)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrAllEnginesExhausted))
	assert.Equal(t, 0, rek.calls)
}

func TestEngine_AttemptDurationsUseClock(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * 2 * time.Second)
	}
	vol := &fakeAdapter{name: "volatility", raw: withProcess()}
	e := New(adapters(vol), DefaultSelection(), WithLogger(logger.Discard()), WithClock(clock))

	out, err := e.Run(context.Background(), "/x.raw", model.OSWindows)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, out.Attempts[0].Duration, 1e-9)
}
