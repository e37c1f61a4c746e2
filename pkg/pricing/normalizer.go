// Package pricing resolves a record's raw pricing candidates into exactly one
// of the three pricing models. The source pages sometimes populate several
// pricing fields from different parts of a template; this step enforces the
// domain rule that a product is priced in exactly one coherent model.
package pricing

import (
	"github.com/sirupsen/logrus"

	"catalog-scraper/pkg/models"
)

// Normalize resolves rec.Pricing in place and returns rec. The decision
// procedure, in order:
//
//  1. Box and area prices both present -> PerBoxAndArea; any incidental
//     piece price is cleared.
//  2. A piece price with per-unit provenance (unit keyword at extraction or
//     a unit-priced category) and no area price -> PerPiece; any box price
//     is cleared.
//  3. Otherwise -> Unpriced; all price fields cleared.
//
// Normalize is deterministic and idempotent: applying it to an already
// normalized record is a no-op.
func Normalize(rec *models.CandidateRecord, log *logrus.Logger) *models.CandidateRecord {
	p := &rec.Pricing

	switch {
	case p.BoxPrice != nil && p.AreaPrice != nil:
		if p.PiecePrice != nil {
			log.WithFields(logrus.Fields{
				"url":         rec.SourceURL,
				"piece_price": *p.PiecePrice,
			}).Debug("Clearing incidental piece price on box/area-priced record")
			p.PiecePrice = nil
		}
		p.Kind = models.PricingPerBoxAndArea

	// A populated piece price carries per-unit provenance by construction:
	// the extractor only fills it from unit-keyword patterns or unit-priced
	// categories.
	case p.PiecePrice != nil && p.AreaPrice == nil:
		if p.BoxPrice != nil {
			log.WithFields(logrus.Fields{
				"url":       rec.SourceURL,
				"box_price": *p.BoxPrice,
			}).Debug("Clearing ambiguous box price on piece-priced record")
			p.BoxPrice = nil
		}
		p.Kind = models.PricingPerPiece

	default:
		if p.BoxPrice != nil || p.AreaPrice != nil || p.PiecePrice != nil {
			log.WithField("url", rec.SourceURL).Debug("No coherent pricing model, clearing partial signals")
		}
		p.BoxPrice = nil
		p.AreaPrice = nil
		p.PiecePrice = nil
		p.Kind = models.PricingUnpriced
	}

	return rec
}
