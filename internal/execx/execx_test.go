package execx

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func TestExecRunner_CapturesOutput(t *testing.T) {
	requireShell(t)
	r := NewExecRunner()
	res, err := r.Run(context.Background(), 5*time.Second, "sh", "-c", "echo out; echo err >&2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.OK() {
		t.Errorf("expected exit 0, got %d", res.ExitCode)
	}
	if strings.TrimSpace(string(res.Stdout)) != "out" {
		t.Errorf("expected stdout 'out', got %q", res.Stdout)
	}
	if strings.TrimSpace(string(res.Stderr)) != "err" {
		t.Errorf("expected stderr 'err', got %q", res.Stderr)
	}
}

func TestExecRunner_NonZeroExitIsNotError(t *testing.T) {
	requireShell(t)
	res, err := NewExecRunner().Run(context.Background(), 5*time.Second, "sh", "-c", "exit 3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", res.ExitCode)
	}
}

func TestExecRunner_Timeout(t *testing.T) {
	requireShell(t)
	_, err := NewExecRunner().Run(context.Background(), 50*time.Millisecond, "sh", "-c", "sleep 5")
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestExecRunner_MissingBinary(t *testing.T) {
	_, err := NewExecRunner().Run(context.Background(), time.Second, "memscope-no-such-binary-xyz")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFake_RecordsCalls(t *testing.T) {
	f := &Fake{Handler: func(bin string, args []string) (Result, error) {
		return Result{Stdout: []byte(bin)}, nil
	}}
	res, err := f.Run(context.Background(), 0, "vol", "-f", "my image.raw")
	if err != nil {
		t.Fatal(err)
	}
	if string(res.Stdout) != "vol" {
		t.Errorf("expected handler output, got %q", res.Stdout)
	}
	calls := f.Calls()
	if len(calls) != 1 || calls[0] != `vol -f "my image.raw"` {
		t.Errorf("unexpected calls: %v", calls)
	}
	if f.CallsMatching("vol") != 1 {
		t.Error("expected one matching call")
	}
}
