// Package execx runs external engine binaries with a bounded timeout and
// captures their output.
package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout applies when neither the caller's context nor the timeout
// argument bounds the command.
const DefaultTimeout = 60 * time.Second

var (
	// ErrTimeout is returned when the command did not finish in time.
	ErrTimeout = errors.New("command timed out")
	// ErrNotFound is returned when the binary cannot be located.
	ErrNotFound = errors.New("command not found")
)

// Result is what a finished command produced. A non-zero exit is not an
// error: callers decide what a failing engine plugin means.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// OK reports whether the command exited with status 0.
func (r Result) OK() bool { return r.ExitCode == 0 }

// Runner runs a command. Errors mean the command could not be started or was
// killed by the timeout.
type Runner interface {
	Run(ctx context.Context, timeout time.Duration, bin string, args ...string) (Result, error)
}

// ExecRunner runs commands on the local host through os/exec.
type ExecRunner struct {
	// Dir is the working directory for every command; empty means inherit.
	Dir string
}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

func (r *ExecRunner) Run(ctx context.Context, timeout time.Duration, bin string, args ...string) (Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = r.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return res, fmt.Errorf("%s after %s: %w", bin, timeout, ErrTimeout)
	}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if errors.Is(err, exec.ErrNotFound) {
		return res, fmt.Errorf("%s: %w", bin, ErrNotFound)
	}
	return res, fmt.Errorf("failed to run %s: %w", bin, err)
}

// CommandLine renders bin and args the way they would be typed, for logs.
func CommandLine(bin string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, bin)
	for _, a := range args {
		if strings.ContainsAny(a, " \t") {
			a = fmt.Sprintf("%q", a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}
