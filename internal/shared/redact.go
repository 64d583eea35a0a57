// Package shared holds small helpers used across the governor:
// secret redaction for logs and audit records.
package shared

import (
	"regexp"
	"strings"
)

const redactedPlaceholder = "[REDACTED]"

// secretPatterns matches common secret-bearing shapes in log and error strings.
var secretPatterns = []*regexp.Regexp{
	// key=value style assignments with key-like prefixes
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret[_-]?key|auth[_-]?token|bearer)\s*[:=]\s*"?([A-Za-z0-9_\-./+=]{16,})"?`),
	// Authorization header bearer tokens
	regexp.MustCompile(`(?i)(Bearer\s+)([A-Za-z0-9_\-./+=]{16,})`),
	// Google API keys
	regexp.MustCompile(`AIza[A-Za-z0-9_\-]{30,}`),
	// UUID-shaped tokens after auth-related prefixes
	regexp.MustCompile(`(?i)(token|secret)\s*[:=]\s*"?([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})"?`),
}

// Redact replaces secret-bearing substrings with [REDACTED], keeping any
// key-like prefix so log lines stay attributable.
func Redact(input string) string {
	if input == "" {
		return input
	}
	out := input
	for _, pat := range secretPatterns {
		out = pat.ReplaceAllStringFunc(out, func(match string) string {
			sub := pat.FindStringSubmatch(match)
			if len(sub) >= 3 {
				return sub[1] + redactedPlaceholder
			}
			return redactedPlaceholder
		})
	}
	return out
}

// RedactIfSensitiveKey redacts value when the key name itself looks secret.
func RedactIfSensitiveKey(key, value string) string {
	lower := strings.ToLower(key)
	for _, s := range []string{"api_key", "apikey", "secret", "token", "password", "credential"} {
		if strings.Contains(lower, s) {
			return redactedPlaceholder
		}
	}
	return value
}
