// Package redact masks personal data in farmer messages before they reach
// logs, metrics tags or outbound SMS.
package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
)

var enabled atomic.Bool

var (
	emailRe     = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	ghanaCardRe = regexp.MustCompile(`(?i)\bGHA-?\d{9}-?\d\b`)
	phoneRe     = regexp.MustCompile(`\+?\d[\d\s\-]{7,}\d`)
)

// SetEnabled toggles redaction process-wide.
func SetEnabled(v bool) {
	enabled.Store(v)
}

// Enabled reports whether redaction is active.
func Enabled() bool {
	return enabled.Load()
}

// Text masks emails, national ID numbers and phone numbers when enabled.
// ID numbers are replaced before phones because they contain digit runs.
func Text(in string) string {
	if !enabled.Load() {
		return in
	}
	return Mask(in)
}

// Mask always masks, regardless of the process-wide toggle. Use it for text
// that leaves the process.
func Mask(in string) string {
	if strings.TrimSpace(in) == "" {
		return in
	}
	out := emailRe.ReplaceAllString(in, "[REDACTED_EMAIL]")
	out = ghanaCardRe.ReplaceAllString(out, "[REDACTED_ID]")
	out = phoneRe.ReplaceAllString(out, "[REDACTED_PHONE]")
	return out
}

// Snippet returns Text(in) cut to at most max runes, for log lines.
func Snippet(in string, max int) string {
	out := Text(in)
	if max <= 0 {
		return out
	}
	runes := []rune(out)
	if len(runes) <= max {
		return out
	}
	return string(runes[:max]) + "…"
}
