package util

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	reMoneyNoise    = regexp.MustCompile(`[^0-9.,]`)
	reDotThousands  = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)
	reCommaThousand = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+$`)
)

// ParseValor parses a monetary cell such as "R$ 150.000,00". Currency noise
// is stripped, thousand groups collapse and a comma acts as the decimal
// separator.
func ParseValor(input string) (float64, bool) {
	compact := reMoneyNoise.ReplaceAllString(input, "")
	if compact == "" {
		return 0, false
	}

	switch {
	case strings.Contains(compact, ",") && strings.Contains(compact, "."):
		compact = strings.ReplaceAll(compact, ".", "")
		compact = strings.ReplaceAll(compact, ",", ".")
	case reDotThousands.MatchString(compact):
		compact = strings.ReplaceAll(compact, ".", "")
	case reCommaThousand.MatchString(compact):
		compact = strings.ReplaceAll(compact, ",", "")
	case strings.Contains(compact, ","):
		compact = strings.ReplaceAll(compact, ",", ".")
	}

	parsed, err := strconv.ParseFloat(compact, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// ParseArea parses an area cell, accepting a decimal comma.
func ParseArea(input string) (float64, bool) {
	compact := strings.ReplaceAll(strings.TrimSpace(input), ",", ".")
	if compact == "" {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(compact, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// ParseAndar parses a floor number best-effort; nil when not an integer.
func ParseAndar(input string) *int {
	parsed, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		return nil
	}
	return &parsed
}
