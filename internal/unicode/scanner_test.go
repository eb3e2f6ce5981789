package unicode

import (
	"testing"
)

func TestScanName_Clean(t *testing.T) {
	for _, name := range []string{"svchost.exe", "explorer.exe", "kworker/0:1", ""} {
		res := ScanName(name)
		if !res.Clean() {
			t.Errorf("expected %q to be clean, got %v", name, res.Findings)
		}
		if res.Skeleton != name {
			t.Errorf("expected skeleton %q, got %q", name, res.Skeleton)
		}
	}
}

func TestScanName_CyrillicHomoglyph(t *testing.T) {
	res := ScanName("ѕvchost.exe") // Cyrillic dze
	if res.Clean() {
		t.Fatal("expected a homoglyph finding")
	}
	f := res.Findings[0]
	if f.Category != CategoryHomoglyph || f.LooksLike != 's' || f.Position != 0 {
		t.Errorf("unexpected finding %+v", f)
	}
	if res.Skeleton != "svchost.exe" {
		t.Errorf("expected skeleton svchost.exe, got %q", res.Skeleton)
	}
	if !res.Masquerading() {
		t.Error("homoglyph names should count as masquerading")
	}
}

func TestScanName_GreekHomoglyph(t *testing.T) {
	res := ScanName("explοrer.exe") // Greek omicron
	if len(res.Findings) != 1 || res.Findings[0].LooksLike != 'o' {
		t.Fatalf("unexpected findings %v", res.Findings)
	}
	if res.Skeleton != "explorer.exe" {
		t.Errorf("unexpected skeleton %q", res.Skeleton)
	}
}

func TestScanName_BidiExtensionSpoof(t *testing.T) {
	res := ScanName("invoice\u202Efdp.exe")
	if len(res.Findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(res.Findings))
	}
	if res.Findings[0].Category != CategoryBidi || res.Findings[0].Codepoint != "U+202E" {
		t.Errorf("unexpected finding %+v", res.Findings[0])
	}
	if res.Skeleton != "invoicefdp.exe" {
		t.Errorf("bidi rune should be dropped from skeleton, got %q", res.Skeleton)
	}
}

func TestScanName_ZeroWidthAndControl(t *testing.T) {
	tests := []struct {
		name     string
		category string
		severity string
	}{
		{"lsass\u200B.exe", CategoryZeroWidth, "high"},
		{"svc\x01host", CategoryControl, "medium"},
		{"cmd\U000E0041.exe", CategoryTag, "high"},
		{"bad\xffname", CategoryInvalidUTF8, "medium"},
	}
	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			res := ScanName(tt.name)
			if len(res.Findings) != 1 {
				t.Fatalf("expected 1 finding, got %v", res.Findings)
			}
			if res.Findings[0].Category != tt.category || res.Findings[0].Severity != tt.severity {
				t.Errorf("unexpected finding %+v", res.Findings[0])
			}
		})
	}
}

func TestScanName_ControlIsNotMasquerading(t *testing.T) {
	if ScanName("svc\x01host").Masquerading() {
		t.Error("a stray control character alone is not masquerading")
	}
}

func TestFinding_String(t *testing.T) {
	f := Finding{Category: CategoryHomoglyph, Position: 0, Codepoint: "U+0455", LooksLike: 's'}
	if got := f.String(); got != "homoglyph U+0455 at 0 looks like 's'" {
		t.Errorf("unexpected string %q", got)
	}
}
