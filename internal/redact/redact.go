// Package redact scrubs credentials from strings before they are logged or
// returned in error responses. Provider errors can echo request URLs and
// headers, which for key-authenticated APIs means the API key itself.
package redact

import "regexp"

// Placeholder replaces every redacted match.
const Placeholder = "[REDACTED]"

var patterns = []*regexp.Regexp{
	// key=... query parameters, as echoed in request URLs
	regexp.MustCompile(`(?i)([?&](?:api[_-]?key|key|token|access_token)=)[A-Za-z0-9_\-.~+/]+`),
	// api_key: ..., token=... style assignments
	regexp.MustCompile(`(?i)((?:api[_-]?key|token|secret|authorization)['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`),
	// Bearer tokens
	regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9_\-.~+/]+`),
}

// String returns s with anything resembling a credential replaced by
// Placeholder. Safe to call on already-clean strings.
func String(s string) string {
	for _, p := range patterns {
		s = p.ReplaceAllString(s, "${1}"+Placeholder)
	}
	return s
}

// Error redacts an error's message. Returns "" for a nil error.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
