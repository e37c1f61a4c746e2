// Package quality scores a candidate record's completeness against the field
// set expected for its category and decides accept versus flag.
package quality

import (
	"github.com/sirupsen/logrus"

	"catalog-scraper/pkg/models"
)

// Expected field sets per category. Installation materials and hardware carry
// far fewer dimensional fields than tile; scoring them against the tile set
// would flag perfectly complete records.
var expectedFields = map[string][]string{
	"Tile":                   {"sku", "color", "material", "edge_type", "finish", "thickness", "width", "length", "coverage", "pei_rating", "shade_variation", "country_of_origin"},
	"Mosaic":                 {"sku", "color", "material", "finish", "thickness", "width", "length", "country_of_origin"},
	"Trim":                   {"sku", "color", "material", "finish", "width", "length"},
	"Vinyl":                  {"sku", "color", "thickness", "width", "length", "coverage"},
	"Laminate":               {"sku", "color", "thickness", "width", "length", "coverage"},
	"Wood":                   {"sku", "color", "material", "thickness", "width", "length"},
	"Pavers":                 {"sku", "color", "material", "thickness", "width", "length"},
	"Slabs":                  {"sku", "color", "material", "finish", "thickness"},
	"Installation Materials": {"sku", "color", "application", "country_of_origin"},
	"Tools & Hardware":       {"sku", "application"},
}

// defaultExpected covers uncategorized records: the intersection of fields
// every product type should carry.
var defaultExpected = []string{"sku", "color", "material", "application"}

// Gate scores records and applies the configured acceptance threshold.
type Gate struct {
	acceptThreshold float64
	log             *logrus.Logger
}

// NewGate creates a Gate. Threshold is a tunable business parameter
// (config quality_accept_threshold), not a constant.
func NewGate(acceptThreshold float64, log *logrus.Logger) *Gate {
	return &Gate{acceptThreshold: acceptThreshold, log: log}
}

// Score computes the record's quality score (populated expected fields /
// expected fields, in [0,1]) and whether it clears the acceptance threshold.
// It mutates rec.QualityScore and rec.Flagged; rejected records are still
// persisted, only flagged, so a later run with better extractors can raise
// them without manual intervention.
func (g *Gate) Score(rec *models.CandidateRecord) (score float64, accept bool) {
	expected := ExpectedFields(rec.Category)

	populated := 0
	for _, field := range expected {
		if v, ok := rec.Specifications[field]; ok && v != "" {
			populated++
		}
	}
	score = float64(populated) / float64(len(expected))
	accept = score >= g.acceptThreshold

	rec.QualityScore = score
	rec.Flagged = !accept

	if !accept {
		g.log.WithFields(logrus.Fields{
			"url":       rec.SourceURL,
			"category":  rec.Category,
			"score":     score,
			"threshold": g.acceptThreshold,
		}).Debug("Record below acceptance threshold, flagging")
	}
	return score, accept
}

// ExpectedFields returns the expected specification fields for a category,
// falling back to the generic set for unknown or missing categories.
func ExpectedFields(category string) []string {
	if fields, ok := expectedFields[category]; ok {
		return fields
	}
	return defaultExpected
}
