// Package redact scrubs credentials from text lifted out of memory images.
// Process command lines routinely carry passwords, tokens and connection
// strings; anything written to the journal or to a redacted result passes
// through here first.
package redact

import (
	"regexp"
	"strings"

	"github.com/gzhole/memscope/internal/model"
)

var sensitivePatterns = []*regexp.Regexp{
	// Cloud keys
	regexp.MustCompile(`(?i)(aws_access_key_id|aws_secret_access_key|aws_session_token)\s*[=:]\s*['"]?[A-Za-z0-9/+=]{20,}['"]?`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`(?i)AccountKey=[A-Za-z0-9/+=]{20,}`),

	// Source-hosting tokens
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36}`),
	regexp.MustCompile(`(?i)(github_token|gh_token|github_pat)\s*[=:]\s*['"]?[A-Za-z0-9_-]{30,}['"]?`),

	// Generic API keys and tokens
	regexp.MustCompile(`(?i)(api_key|apikey|api-key|secret_key|access_token|auth_token)\s*[=:]\s*['"]?[A-Za-z0-9_-]{16,}['"]?`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._-]{20,}`),
	regexp.MustCompile(`xox[baprs]-[0-9]{10,13}-[0-9]{10,13}[a-zA-Z0-9-]*`),

	// Private key headers dumped into arguments
	regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY-----`),

	// user:pass@host in URLs and connection strings
	regexp.MustCompile(`[a-z][a-z0-9+.-]*://[^:/\s]+:[^@\s]+@`),
	regexp.MustCompile(`(?i)(password|pwd)=[^;\s'"]+`),

	// key=value / key: value secrets
	regexp.MustCompile(`(?i)(password|passwd|pwd|secret)\s*[=:]\s*['"]?[^\s'"]{8,}['"]?`),

	// Windows-style /p:secret and /password:secret switches
	regexp.MustCompile(`(?i)/(p|pass|password|pw):[^\s]+`),
}

// credentialFlags take the credential as the following argument, e.g.
// `psexec -u admin -p Secret` or `mysql --password Secret`.
var credentialFlags = map[string]bool{
	"-p":          true,
	"-pw":         true,
	"-pass":       true,
	"-password":   true,
	"--password":  true,
	"--pass":      true,
	"--token":     true,
	"-token":      true,
	"--api-key":   true,
	"-accountkey": true,
}

const redactedPlaceholder = "[REDACTED]"

func Redact(input string) string {
	result := input
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, redactedPlaceholder)
	}
	return result
}

func RedactArgs(args []string) []string {
	if args == nil {
		return nil
	}
	result := make([]string, len(args))
	for i, arg := range args {
		result[i] = Redact(arg)
	}
	return result
}

// RedactCommandLine redacts pattern matches and the argument following any
// credential flag. Whitespace runs collapse to single spaces when a flag
// value is replaced.
func RedactCommandLine(cmdline string) string {
	cmdline = Redact(cmdline)
	fields := strings.Fields(cmdline)
	changed := false
	for i := 0; i < len(fields)-1; i++ {
		if credentialFlags[strings.ToLower(fields[i])] && fields[i+1] != redactedPlaceholder {
			fields[i+1] = redactedPlaceholder
			changed = true
			i++
		}
	}
	if !changed {
		return cmdline
	}
	return strings.Join(fields, " ")
}

// RedactResult scrubs every free-text field of an analysis result that can
// carry process arguments. The result is modified in place.
func RedactResult(res *model.AnalysisResult) {
	if res == nil {
		return
	}
	for i := range res.Processes {
		res.Processes[i].CommandLine = RedactCommandLine(res.Processes[i].CommandLine)
	}
	for i := range res.Artifacts {
		res.Artifacts[i].Description = Redact(res.Artifacts[i].Description)
	}
}
