// Package osdetect guesses the operating system a memory image was taken
// from.
package osdetect

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/gzhole/memscope/internal/logger"
	"github.com/gzhole/memscope/internal/model"
)

// HeaderSize is how much of the image is searched for signatures.
const HeaderSize = 1024

// Source says which evidence decided the result.
type Source string

const (
	SourceHeader   Source = "header"
	SourceFilename Source = "filename"
	SourceDefault  Source = "default"
)

type signatureSet struct {
	os   model.OS
	sigs [][]byte
}

// Checked in order. "kernel" appears in both the Linux and macOS sets, so
// Linux wins on that signature alone.
var signatures = []signatureSet{
	{model.OSWindows, [][]byte{[]byte("Windows"), []byte("Microsoft"), []byte("NTOSKRNL"), []byte("HAL.DLL")}},
	{model.OSLinux, [][]byte{[]byte("Linux"), []byte("initramfs"), []byte("vmlinux"), []byte("kernel")}},
	{model.OSMacOS, [][]byte{[]byte("Darwin"), []byte("XNU"), []byte("mach_kernel"), []byte("kernel")}},
}

var filenameHints = []struct {
	os    model.OS
	hints []string
}{
	{model.OSWindows, []string{"windows", "win"}},
	{model.OSLinux, []string{"linux", "ubuntu"}},
	{model.OSMacOS, []string{"macos", "mac", "darwin"}},
}

type Detector struct {
	log logrus.FieldLogger
}

func New(log logrus.FieldLogger) *Detector {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Detector{log: log}
}

// Detect returns the OS profile for the image at path. It never fails:
// unreadable files fall back to the file name, and unrecognized names to
// Windows.
func (d *Detector) Detect(path string) model.OS {
	kind, _ := d.DetectWithSource(path)
	return kind
}

func (d *Detector) DetectWithSource(path string) (model.OS, Source) {
	header, err := readHeader(path)
	if err != nil {
		d.log.WithError(err).WithField("path", path).Warn("cannot read image header; using file name")
	} else if kind, ok := FromHeader(header); ok {
		return kind, SourceHeader
	}
	if kind, ok := FromFilename(path); ok {
		return kind, SourceFilename
	}
	return model.OSWindows, SourceDefault
}

// FromHeader matches header against the signature sets.
func FromHeader(header []byte) (model.OS, bool) {
	for _, set := range signatures {
		for _, sig := range set.sigs {
			if bytes.Contains(header, sig) {
				return set.os, true
			}
		}
	}
	return "", false
}

// FromFilename matches hints in the lower-cased base name.
func FromFilename(path string) (model.OS, bool) {
	name := strings.ToLower(filepath.Base(path))
	for _, h := range filenameHints {
		for _, hint := range h.hints {
			if strings.Contains(name, hint) {
				return h.os, true
			}
		}
	}
	return "", false
}

func readHeader(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, HeaderSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

// Detect uses a detector logging to the global logger.
func Detect(path string) model.OS { return New(nil).Detect(path) }
