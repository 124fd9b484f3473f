// Package security scrubs secret-looking material from command text
// before it reaches logs. Commands run against remote hosts routinely
// embed passwords and tokens inline.
package security

import (
	"regexp"
	"strings"
)

var (
	secretKeyExpr   = `(?:password|passwd|secret|api[_-]?key|[a-z0-9._-]*token[a-z0-9._-]*)`
	kvSecretPattern = regexp.MustCompile(`(?i)(` + secretKeyExpr + `)\s*[:=]\s*(?:"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'|[^\s"']+)`)
	flagSecretExpr  = regexp.MustCompile(`(?i)(--?(?:password|passwd|secret|token|api-?key))(\s+|=)(?:"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'|[^\s"']+)`)
	bearerPattern   = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]+`)
	pemBlockPattern = regexp.MustCompile(`(?s)-----BEGIN [^-]+ PRIVATE KEY-----.*?-----END [^-]+ PRIVATE KEY-----`)
	urlCredsPattern = regexp.MustCompile(`(?i)(://[^\s/:@]+):[^\s/@]+@`)
)

// RedactCommand returns the command text with inline credentials masked.
// Safe for log output; the executed command itself is never modified.
func RedactCommand(input string) string {
	if input == "" {
		return ""
	}
	out := pemBlockPattern.ReplaceAllString(input, "[REDACTED_PRIVATE_KEY]")
	out = flagSecretExpr.ReplaceAllString(out, `${1}${2}[REDACTED]`)
	out = kvSecretPattern.ReplaceAllStringFunc(out, func(match string) string {
		idx := strings.IndexAny(match, ":=")
		if idx < 0 {
			return "[REDACTED]"
		}
		return match[:idx+1] + "[REDACTED]"
	})
	out = bearerPattern.ReplaceAllString(out, "Bearer [REDACTED]")
	out = urlCredsPattern.ReplaceAllString(out, `${1}:[REDACTED]@`)
	return out
}
