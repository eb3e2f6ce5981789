package execx

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Fake is a scripted Runner for tests. Handler decides the outcome of each
// call; a nil Handler reports every binary as missing.
type Fake struct {
	Handler func(bin string, args []string) (Result, error)

	mu    sync.Mutex
	calls []string
}

func (f *Fake) Run(ctx context.Context, _ time.Duration, bin string, args ...string) (Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, CommandLine(bin, args...))
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if f.Handler == nil {
		return Result{}, ErrNotFound
	}
	return f.Handler(bin, args)
}

// Calls returns the command lines seen so far, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsMatching counts recorded command lines containing substr.
func (f *Fake) CallsMatching(substr string) int {
	n := 0
	for _, c := range f.Calls() {
		if strings.Contains(c, substr) {
			n++
		}
	}
	return n
}
