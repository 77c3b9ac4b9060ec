package language

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	xlang "golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Normalize composes text to NFC, lowercases it and collapses runs of
// whitespace to single spaces. Composition matters for Twi and Ewe letters
// that can arrive either precomposed or with combining marks.
func Normalize(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	// Casers keep state, so each call gets its own.
	lower := cases.Lower(xlang.Und).String(norm.NFC.String(text))
	return strings.Join(strings.Fields(lower), " ")
}

// Tokenize splits normalized text on whitespace and strips punctuation from
// token edges. Inner apostrophes and hyphens survive ("today's").
func Tokenize(normalized string) []string {
	fields := strings.Fields(normalized)
	out := fields[:0]
	for _, f := range fields {
		f = strings.TrimFunc(f, isEdgePunct)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func isEdgePunct(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}
