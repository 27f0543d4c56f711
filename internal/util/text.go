package util

import (
	"strings"
	"unicode"
)

// NormalizeHeader prepares a column header for alias matching.
func NormalizeHeader(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}

// NormalizeName reduces a free-text entity name to lowercase alphanumerics
// for exact and containment comparison. Accented letters survive.
func NormalizeName(input string) string {
	out := strings.Builder{}
	for _, r := range strings.ToLower(input) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			out.WriteRune(r)
		}
	}
	return out.String()
}

// Tokenize splits a value into lowercase whitespace-delimited tokens.
func Tokenize(input string) []string {
	return strings.Fields(strings.ToLower(strings.TrimSpace(input)))
}
