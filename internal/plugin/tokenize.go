package plugin

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Tokenize splits a recovered command line into arguments. Shell quoting is
// honored where the line parses as a shell command; Windows command lines
// that do not parse fall back to whitespace splitting. Backslashes are kept
// as written since most recovered paths are Windows paths.
func Tokenize(cmdline string) []string {
	cmdline = strings.TrimSpace(cmdline)
	if cmdline == "" {
		return nil
	}

	parser := syntax.NewParser(syntax.KeepComments(false), syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(cmdline), "")
	if err != nil {
		return strings.Fields(cmdline)
	}

	var tokens []string
	syntax.Walk(file, func(node syntax.Node) bool {
		call, ok := node.(*syntax.CallExpr)
		if !ok {
			return true
		}
		for _, w := range call.Args {
			tokens = append(tokens, wordToString(w))
		}
		return true
	})
	if len(tokens) == 0 {
		return strings.Fields(cmdline)
	}
	return tokens
}

// wordToString prints a word back in source form and strips one layer of
// surrounding quotes.
func wordToString(word *syntax.Word) string {
	var sb strings.Builder
	printer := syntax.NewPrinter()
	_ = printer.Print(&sb, word)
	s := sb.String()
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			s = s[1 : len(s)-1]
		}
	}
	return s
}
