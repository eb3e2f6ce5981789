// Package unicode detects process and module names that use Unicode tricks
// to pass as something else: bidi overrides that flip a file extension,
// invisible characters, and Cyrillic or Greek letters standing in for Latin
// ones (a "svchost.exe" whose s is U+0455).
package unicode

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Finding categories.
const (
	CategoryInvalidUTF8 = "invalid-utf8"
	CategoryZeroWidth   = "zero-width"
	CategoryBidi        = "bidi-override"
	CategoryTag         = "tag-char"
	CategoryControl     = "control-char"
	CategoryHomoglyph   = "homoglyph"
)

// Finding is one suspicious rune in a name.
type Finding struct {
	Category  string
	Position  int    // byte offset in the name
	Codepoint string // e.g. "U+202E"
	LooksLike rune   // Latin lookalike for homoglyphs, 0 otherwise
	Severity  string // "high" or "medium"
}

func (f Finding) String() string {
	if f.LooksLike != 0 {
		return fmt.Sprintf("%s %s at %d looks like '%c'", f.Category, f.Codepoint, f.Position, f.LooksLike)
	}
	return fmt.Sprintf("%s %s at %d", f.Category, f.Codepoint, f.Position)
}

// Result of scanning one name.
type Result struct {
	Findings []Finding
	// Skeleton is the name with invisible runes dropped and homoglyphs
	// replaced by their Latin lookalikes; compare it against known-good
	// binary names to spot impersonation.
	Skeleton string
}

// Clean reports whether the name had nothing suspicious.
func (r Result) Clean() bool { return len(r.Findings) == 0 }

// Masquerading reports whether any high-severity finding is present.
func (r Result) Masquerading() bool {
	for _, f := range r.Findings {
		if f.Severity == "high" {
			return true
		}
	}
	return false
}

// ScanName inspects a process or module name.
func ScanName(name string) Result {
	var res Result
	var skeleton strings.Builder

	for i := 0; i < len(name); {
		r, size := utf8.DecodeRuneInString(name[i:])
		if r == utf8.RuneError && size == 1 {
			res.Findings = append(res.Findings, Finding{
				Category:  CategoryInvalidUTF8,
				Position:  i,
				Codepoint: fmt.Sprintf("0x%02X", name[i]),
				Severity:  "medium",
			})
			i++
			continue
		}

		if f, found := classifyRune(r, i); found {
			res.Findings = append(res.Findings, f)
			if f.LooksLike != 0 {
				skeleton.WriteRune(f.LooksLike)
			}
		} else {
			skeleton.WriteRune(r)
		}
		i += size
	}

	res.Skeleton = skeleton.String()
	return res
}

func classifyRune(r rune, pos int) (Finding, bool) {
	f := Finding{Position: pos, Codepoint: fmt.Sprintf("U+%04X", r), Severity: "high"}
	switch {
	case isZeroWidth(r):
		f.Category = CategoryZeroWidth
	case isBidiOverride(r):
		f.Category = CategoryBidi
	case r >= 0xE0001 && r <= 0xE007F:
		f.Category = CategoryTag
	case isUnsafeControl(r):
		f.Category = CategoryControl
		f.Severity = "medium"
	default:
		latin, ok := homoglyph(r)
		if !ok {
			return Finding{}, false
		}
		f.Category = CategoryHomoglyph
		f.LooksLike = latin
	}
	return f, true
}

func isZeroWidth(r rune) bool {
	switch r {
	case '\u200B', '\u200C', '\u200D', '\uFEFF', '\u2060', '\u180E', '\u200E', '\u200F':
		return true
	}
	return false
}

// isBidiOverride covers the embedding/override controls U+202A–U+202E and
// the isolates U+2066–U+2069.
func isBidiOverride(r rune) bool {
	return (r >= '\u202A' && r <= '\u202E') || (r >= '\u2066' && r <= '\u2069')
}

func isUnsafeControl(r rune) bool {
	return (r >= 0x00 && r <= 0x1F) || r == 0x7F || (r >= 0x80 && r <= 0x9F)
}

func homoglyph(r rune) (rune, bool) {
	if unicode.Is(unicode.Cyrillic, r) {
		latin, ok := cyrillicHomoglyphs[r]
		return latin, ok
	}
	if unicode.Is(unicode.Greek, r) {
		latin, ok := greekHomoglyphs[r]
		return latin, ok
	}
	return 0, false
}

var cyrillicHomoglyphs = map[rune]rune{
	'а': 'a', 'А': 'A', 'В': 'B', 'с': 'c', 'С': 'C', 'е': 'e', 'Е': 'E',
	'Н': 'H', 'і': 'i', 'І': 'I', 'ј': 'j', 'К': 'K', 'М': 'M', 'о': 'o',
	'О': 'O', 'р': 'p', 'Р': 'P', 'ѕ': 's', 'Ѕ': 'S', 'Т': 'T', 'х': 'x',
	'Х': 'X', 'у': 'y', 'У': 'Y', 'ԁ': 'd', 'һ': 'h',
}

var greekHomoglyphs = map[rune]rune{
	'Α': 'A', 'Β': 'B', 'Ε': 'E', 'Η': 'H', 'Ι': 'I', 'Κ': 'K', 'Μ': 'M',
	'Ν': 'N', 'Ο': 'O', 'ο': 'o', 'Ρ': 'P', 'Τ': 'T', 'Χ': 'X', 'Υ': 'Y',
	'Ζ': 'Z', 'ν': 'v',
}
