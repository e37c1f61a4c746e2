package models

// PricingKind identifies which pricing model a record carries. The three
// models are mutually exclusive representations of the same underlying fact.
type PricingKind string

const (
	PricingPerBoxAndArea PricingKind = "per_box_and_area"
	PricingPerPiece      PricingKind = "per_piece"
	PricingUnpriced      PricingKind = "unpriced"
)

// Pricing is the tagged pricing union. Exactly the fields implied by Kind are
// non-nil after normalization:
//
//	PerBoxAndArea -> BoxPrice and AreaPrice
//	PerPiece      -> PiecePrice
//	Unpriced      -> none
type Pricing struct {
	Kind       PricingKind `json:"kind"`
	BoxPrice   *float64    `json:"box_price,omitempty"`
	AreaPrice  *float64    `json:"area_price,omitempty"`
	PiecePrice *float64    `json:"piece_price,omitempty"`
}

// Consistent reports whether the populated fields agree with Kind. It is the
// invariant the normalizer establishes and persistence relies on.
func (p Pricing) Consistent() bool {
	switch p.Kind {
	case PricingPerBoxAndArea:
		return p.BoxPrice != nil && p.AreaPrice != nil && p.PiecePrice == nil
	case PricingPerPiece:
		return p.PiecePrice != nil && p.BoxPrice == nil && p.AreaPrice == nil
	case PricingUnpriced:
		return p.BoxPrice == nil && p.AreaPrice == nil && p.PiecePrice == nil
	}
	return false
}

// Float64Ptr is a convenience for building pricing values.
func Float64Ptr(v float64) *float64 { return &v }
