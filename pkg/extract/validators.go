package extract

import (
	"regexp"
	"strings"
)

// fieldValidator accepts a value when it matches the field's known-good shape
// or appears on the field's explicit allow-list. The allow-list is checked
// first: it exists because generic corruption heuristics produce false
// positives on legitimate values ("Rectified" is not a corrupted "-ified"
// fragment).
type fieldValidator struct {
	shape *regexp.Regexp
	allow []string
}

func (v *fieldValidator) Validate(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	for _, ok := range v.allow {
		if strings.EqualFold(raw, ok) {
			return true
		}
	}
	if looksCorrupted(raw) {
		return false
	}
	if v.shape == nil {
		return true
	}
	return v.shape.MatchString(raw)
}

// Corruption signals seen in the source catalog's embedded data: markup
// fragments, script leakage, and run-on concatenations from broken templates.
var corruptionRe = regexp.MustCompile(`[<>{}\[\]]|(?i)\b(function|undefined|null|NaN|var )\b`)

func looksCorrupted(raw string) bool {
	if len(raw) > 80 {
		return true
	}
	if corruptionRe.MatchString(raw) {
		return true
	}
	for _, r := range raw {
		if r < 0x20 && r != '\t' {
			return true
		}
	}
	return false
}
