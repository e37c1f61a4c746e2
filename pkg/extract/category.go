package extract

import "strings"

// categoryEntry maps a title keyword to a category from the controlled
// vocabulary. Entries are checked in order; more specific keywords first.
type categoryEntry struct {
	keyword  string
	category string
}

// Controlled vocabulary for category inference. Inference runs only when the
// page carries no explicit category field; free-text guessing is deliberately
// avoided.
var categoryVocabulary = []categoryEntry{
	{"mosaic", "Mosaic"},
	{"trim", "Trim"},
	{"bullnose", "Trim"},
	{"mortar", "Installation Materials"},
	{"thinset", "Installation Materials"},
	{"grout", "Installation Materials"},
	{"adhesive", "Installation Materials"},
	{"sealant", "Installation Materials"},
	{"sealer", "Installation Materials"},
	{"caulk", "Installation Materials"},
	{"leveling", "Installation Materials"},
	{"underlayment", "Installation Materials"},
	{"membrane", "Installation Materials"},
	{"spacer", "Tools & Hardware"},
	{"trowel", "Tools & Hardware"},
	{"blade", "Tools & Hardware"},
	{"vinyl plank", "Vinyl"},
	{"vinyl", "Vinyl"},
	{"laminate", "Laminate"},
	{"hardwood", "Wood"},
	{"engineered wood", "Wood"},
	{"paver", "Pavers"},
	{"slab", "Slabs"},
	{"tile", "Tile"},
}

// unitPricedCategories are priced per individual unit (bag, bottle, tube)
// rather than per box/area. The price normalizer consults this.
var unitPricedCategories = map[string]bool{
	"Installation Materials": true,
	"Tools & Hardware":       true,
}

// InferCategory returns the controlled-vocabulary category for a product
// title, or "" when no keyword matches. Matching is case-insensitive and
// longest-keyword entries are listed first in the vocabulary so "vinyl plank"
// wins over "tile" appearing elsewhere in the title.
func InferCategory(title string) string {
	lower := strings.ToLower(title)
	for _, entry := range categoryVocabulary {
		if strings.Contains(lower, entry.keyword) {
			return entry.category
		}
	}
	return ""
}

// IsUnitPricedCategory reports whether products in the category are sold per
// individual unit.
func IsUnitPricedCategory(category string) bool {
	return unitPricedCategories[category]
}
