// Package redact scrubs personal data from strings before they reach
// logs or audit sinks. Agency policy documents routinely quote personnel
// rosters, contact details, and credentials; none of that belongs in an
// audit trail.
package redact

import (
	"fmt"
	"log"
	"regexp"
)

var (
	emailRe    = regexp.MustCompile(`(?i)[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	ssnRe      = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	phoneRe    = regexp.MustCompile(`\(?\d{3}\)?[-. ]\d{3}[-. ]\d{4}`)
	passwordRe = regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[:=]\s*\S+`)
	tokenRe    = regexp.MustCompile(`\b[A-Za-z0-9_\-]{24,}\b`)
)

// String redacts known personal-data patterns from a free-form string.
func String(s string) string {
	if s == "" {
		return s
	}
	out := s
	out = emailRe.ReplaceAllString(out, "[REDACTED_EMAIL]")
	out = ssnRe.ReplaceAllString(out, "[REDACTED_SSN]")
	out = phoneRe.ReplaceAllString(out, "[REDACTED_PHONE]")
	out = passwordRe.ReplaceAllString(out, "${1}=[REDACTED]")
	out = tokenRe.ReplaceAllString(out, "[REDACTED_TOKEN]")
	return out
}

// Sprintf formats like fmt.Sprintf and redacts the result.
func Sprintf(format string, args ...interface{}) string {
	return String(fmt.Sprintf(format, args...))
}

// Logf prints a redacted log line.
func Logf(format string, args ...interface{}) {
	log.Print(Sprintf(format, args...))
}
