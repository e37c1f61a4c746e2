package utils

import (
	"regexp"
	"strconv"
	"strings"
)

// --- Price Parsing ---

// priceRe captures the first currency amount in a string, tolerating thousands
// separators: "$1,249.00", "35.99", "$77.11 / box".
var priceRe = regexp.MustCompile(`\$?\s*([0-9]{1,3}(?:,[0-9]{3})*(?:\.[0-9]{1,2})?|[0-9]+(?:\.[0-9]{1,2})?)`)

// ParsePrice extracts the first monetary amount from raw text. Returns the
// value and whether one was found. Zero and negative amounts are rejected;
// the source catalog never legitimately lists them.
func ParsePrice(raw string) (float64, bool) {
	m := priceRe.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	cleaned := strings.ReplaceAll(m[1], ",", "")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// perUnitRe matches "/each", "per bag" style suffixes that signal per-piece
// pricing rather than box or area pricing.
var perUnitRe = regexp.MustCompile(`(?i)(?:/|\bper\s+)(each|piece|bag|bottle|tube|pail|bucket|roll|sheet|kit|unit)\b`)

// HasPerUnitIndicator reports whether raw price text carries an explicit
// per-unit keyword.
func HasPerUnitIndicator(raw string) bool {
	return perUnitRe.MatchString(raw)
}
