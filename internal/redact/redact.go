// Package redact scrubs credentials and other secrets out of strings before
// they are logged or surfaced to clients in session error messages. Backend
// and storage errors routinely echo request URLs and connection strings, so
// anything that leaves the process passes through here first.
package redact

import "regexp"

// Placeholders substituted for redacted content.
const (
	RedactionPlaceholder          = "[REDACTED]"
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
)

type rule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Rules are applied in order; earlier rules see the unmodified input.
var rules = []rule{
	{
		// user:password@ in connection strings
		pattern:     regexp.MustCompile(`(?i)\b([a-z][a-z0-9+.-]*://)[^/\s:@]+:[^/\s@]+@`),
		replacement: "${1}" + RedactedCredentialPlaceholder + "@",
	},
	{
		// Google API keys
		pattern:     regexp.MustCompile(`AIza[0-9A-Za-z_\-]{35}`),
		replacement: RedactedKeyPlaceholder,
	},
	{
		// AWS / MinIO style access keys
		pattern:     regexp.MustCompile(`\b(AKIA|ASIA)[A-Z0-9]{16}\b`),
		replacement: RedactedKeyPlaceholder,
	},
	{
		pattern:     regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9_\-.~+/=]{8,}`),
		replacement: "Bearer " + RedactionPlaceholder,
	},
	{
		// key=value pairs in query strings, headers and log lines
		pattern: regexp.MustCompile(
			`(?i)\b(api[_-]?key|key|token|secret|secret[_-]?key|access[_-]?key|password|passwd)(["']?\s*[:=]\s*["']?)[^"'&\s,]{4,}`,
		),
		replacement: "${1}${2}" + RedactionPlaceholder,
	},
}

// String redacts sensitive information from the input string.
func String(input string) string {
	if input == "" {
		return input
	}

	result := input
	for _, r := range rules {
		result = r.pattern.ReplaceAllString(result, r.replacement)
	}
	return result
}

// Error redacts sensitive information from an error's Error() output.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
