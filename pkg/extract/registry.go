package extract

import "regexp"

// Matcher locates a candidate value for one field on a page. Matchers are
// tried in priority order; the first hit wins.
type Matcher interface {
	Match(p *pageDoc) (string, bool)
}

// Validator decides whether a matched raw value is a legitimate shape for its
// field. Rejected values are treated as misses, never coerced.
type Validator interface {
	Validate(raw string) bool
}

// FieldSpec binds a specification field name to its ordered matchers and its
// validator. Adding a field to the catalog schema is a data change here, not
// a control-flow change.
type FieldSpec struct {
	Name      string
	Matchers  []Matcher
	Validator Validator
}

// Registry is the ordered set of specification fields the extractor targets.
// Order determines the iteration order of extraction and therefore keeps
// Extract deterministic.
type Registry struct {
	fields []FieldSpec
}

// NewRegistry builds a registry from the given field specs.
func NewRegistry(fields []FieldSpec) *Registry {
	return &Registry{fields: fields}
}

// Fields returns the specs in registration order.
func (r *Registry) Fields() []FieldSpec {
	return r.fields
}

// DefaultRegistry is the production field set for the tile/flooring catalog.
// Structured-data matchers come before spec-table lookups, which come before
// loose-text fallbacks.
func DefaultRegistry() *Registry {
	return NewRegistry([]FieldSpec{
		{
			Name: "sku",
			Matchers: []Matcher{
				&jsonLDMatcher{path: []string{"sku"}},
				&jsonLDMatcher{path: []string{"mpn"}},
				&specTableMatcher{labels: []string{"sku", "item number", "item #", "model"}},
				&regexMatcher{re: regexp.MustCompile(`(?i)\bSKU[:#]?\s*([A-Z0-9][A-Z0-9\-_.]{2,24})\b`)},
			},
			Validator: &fieldValidator{shape: regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9\-_.]{2,24}$`)},
		},
		{
			Name: "color",
			Matchers: []Matcher{
				&jsonLDMatcher{path: []string{"color"}},
				&specTableMatcher{labels: []string{"color", "colour", "color group", "color family"}},
			},
			Validator: &fieldValidator{shape: wordsShape},
		},
		{
			Name: "material",
			Matchers: []Matcher{
				&jsonLDMatcher{path: []string{"material"}},
				&specTableMatcher{labels: []string{"material", "material type", "composition"}},
			},
			Validator: &fieldValidator{shape: wordsShape},
		},
		{
			Name: "edge_type",
			Matchers: []Matcher{
				&specTableMatcher{labels: []string{"edge type", "edge", "edge finish"}},
			},
			// "Rectified" trips the common-suffix corruption heuristic, so it
			// sits on the allow-list rather than widening the shape.
			Validator: &fieldValidator{
				shape: regexp.MustCompile(`^(?i)(pressed|cushioned|straight|beveled|chiseled|tumbled)( edge)?$`),
				allow: []string{"Rectified", "Micro-Beveled", "Pillowed"},
			},
		},
		{
			Name: "finish",
			Matchers: []Matcher{
				&specTableMatcher{labels: []string{"finish", "surface finish", "surface"}},
			},
			Validator: &fieldValidator{
				shape: regexp.MustCompile(`^(?i)(matte|glossy|polished|honed|textured|satin|lappato|natural|unglazed|glazed)$`),
				allow: []string{"Semi-Polished", "Anti-Slip"},
			},
		},
		{
			Name: "thickness",
			Matchers: []Matcher{
				&specTableMatcher{labels: []string{"thickness", "nominal thickness"}},
				&regexMatcher{re: regexp.MustCompile(`(?i)\bthickness[:\s]+([0-9]+(?:\.[0-9]+)?\s*(?:mm|in|inch|"))`)},
			},
			Validator: &fieldValidator{shape: regexp.MustCompile(`^[0-9]+(\.[0-9]+)?\s*(mm|cm|in|inch|")$`)},
		},
		{
			Name: "width",
			Matchers: []Matcher{
				&jsonLDMatcher{path: []string{"width", "value"}},
				&specTableMatcher{labels: []string{"width", "nominal width"}},
			},
			Validator: &fieldValidator{shape: dimensionShape},
		},
		{
			Name: "length",
			Matchers: []Matcher{
				&jsonLDMatcher{path: []string{"depth", "value"}},
				&specTableMatcher{labels: []string{"length", "nominal length", "height"}},
			},
			Validator: &fieldValidator{shape: dimensionShape},
		},
		{
			Name: "coverage",
			Matchers: []Matcher{
				&specTableMatcher{labels: []string{"coverage", "coverage per box", "sq ft per box", "box coverage"}},
				&regexMatcher{re: regexp.MustCompile(`(?i)\b([0-9]+(?:\.[0-9]+)?)\s*sq\.?\s*\.?\s*ft\.?\s*(?:per|/)\s*box`)},
			},
			Validator: &fieldValidator{shape: regexp.MustCompile(`^[0-9]+(\.[0-9]+)?( sq\.? ?ft\.?.*)?$`)},
		},
		{
			Name: "pei_rating",
			Matchers: []Matcher{
				&specTableMatcher{labels: []string{"pei rating", "pei", "abrasion resistance"}},
			},
			Validator: &fieldValidator{shape: regexp.MustCompile(`^(?i)(pei\s*)?[0-5](\s*\(.*\))?$`), allow: []string{"Class 5"}},
		},
		{
			Name: "shade_variation",
			Matchers: []Matcher{
				&specTableMatcher{labels: []string{"shade variation", "variation"}},
			},
			Validator: &fieldValidator{shape: regexp.MustCompile(`^(?i)V[1-4](\s*\(.*\))?$`), allow: []string{"Substantial", "Moderate", "Slight", "Uniform"}},
		},
		{
			Name: "country_of_origin",
			Matchers: []Matcher{
				&specTableMatcher{labels: []string{"country of origin", "origin", "made in"}},
			},
			Validator: &fieldValidator{shape: wordsShape},
		},
		{
			Name: "application",
			Matchers: []Matcher{
				&specTableMatcher{labels: []string{"application", "usage", "recommended use", "installation area"}},
			},
			Validator: &fieldValidator{shape: wordsShape, allow: []string{"Wall and Floor", "Indoor/Outdoor"}},
		},
	})
}

var (
	// wordsShape accepts short human phrases: letters with internal spaces,
	// slashes, ampersands, hyphens.
	wordsShape = regexp.MustCompile(`^[A-Za-z][A-Za-z /&\-,.']{0,49}$`)
	// dimensionShape accepts "12", "12.5 in", `24"`, "600 mm".
	dimensionShape = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?\s*(mm|cm|in|inch|")?$`)
)
