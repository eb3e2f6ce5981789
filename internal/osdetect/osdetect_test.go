package osdetect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gzhole/memscope/internal/logger"
	"github.com/gzhole/memscope/internal/model"
)

func writeImage(t *testing.T, name string, header []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, header, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDetect_Header(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   model.OS
	}{
		{"windows", "\x00\x00PAGEDU64...NTOSKRNL.EXE", model.OSWindows},
		{"microsoft", "Copyright Microsoft Corp", model.OSWindows},
		{"linux", "\x7fELF Linux version 5.15", model.OSLinux},
		{"vmlinux", "vmlinux-5.4", model.OSLinux},
		{"kernel is linux first", "kernel", model.OSLinux},
		{"darwin", "Darwin Kernel Version 21", model.OSMacOS},
		{"xnu", "root:XNU-8019", model.OSMacOS},
	}
	d := New(logger.Discard())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// file name hints the wrong OS; the header must win
			path := writeImage(t, "ubuntu_or_win.raw", []byte(tt.header))
			got, src := d.DetectWithSource(path)
			if got != tt.want || src != SourceHeader {
				t.Errorf("expected %s from header, got %s from %s", tt.want, got, src)
			}
		})
	}
}

func TestDetect_SignatureBeyondHeaderIgnored(t *testing.T) {
	data := make([]byte, HeaderSize+64)
	copy(data[HeaderSize+8:], "Darwin")
	path := writeImage(t, "image.lime", data)

	got, src := New(logger.Discard()).DetectWithSource(path)
	if got != model.OSWindows || src != SourceDefault {
		t.Errorf("expected windows default, got %s from %s", got, src)
	}
}

func TestDetect_Filename(t *testing.T) {
	tests := []struct {
		file string
		want model.OS
		src  Source
	}{
		{"Win10-x64.vmem", model.OSWindows, SourceFilename},
		{"ubuntu-20.04.lime", model.OSLinux, SourceFilename},
		{"linux.mem", model.OSLinux, SourceFilename},
		{"MacBook.raw", model.OSMacOS, SourceFilename},
		{"macos-12.raw", model.OSMacOS, SourceFilename},
		{"memory.dmp", model.OSWindows, SourceDefault},
	}
	d := New(logger.Discard())
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			path := writeImage(t, tt.file, []byte("no signatures here"))
			got, src := d.DetectWithSource(path)
			if got != tt.want || src != tt.src {
				t.Errorf("expected %s from %s, got %s from %s", tt.want, tt.src, got, src)
			}
		})
	}
}

func TestDetect_MissingFileUsesName(t *testing.T) {
	d := New(logger.Discard())
	if got := d.Detect("/nonexistent/dir/ubuntu.lime"); got != model.OSLinux {
		t.Errorf("expected linux, got %s", got)
	}
	if got := d.Detect("/nonexistent/dir/dump.raw"); got != model.OSWindows {
		t.Errorf("expected windows default, got %s", got)
	}
}
