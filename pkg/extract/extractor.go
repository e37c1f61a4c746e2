package extract

import (
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"catalog-scraper/pkg/models"
	"catalog-scraper/pkg/utils"
)

// Extractor converts raw page content into a CandidateRecord using the field
// registry. It performs no I/O and is deterministic: the same RawPage always
// yields the same record.
type Extractor struct {
	registry *Registry
	log      *logrus.Logger
}

// NewExtractor creates an Extractor over the given registry.
func NewExtractor(registry *Registry, log *logrus.Logger) *Extractor {
	return &Extractor{registry: registry, log: log}
}

// Pricing signal patterns over visible text. The catalog renders prices as
// "$12.98 / sq. ft.", "$77.11/box", "$35.99/each" depending on template.
var (
	areaPriceRe = regexp.MustCompile(`(?i)\$\s*([0-9,]+(?:\.[0-9]{1,2})?)\s*(?:/|per\s+)\s*sq\.?\s*ft\.?`)
	boxPriceRe  = regexp.MustCompile(`(?i)\$\s*([0-9,]+(?:\.[0-9]{1,2})?)\s*(?:/|per\s+)\s*box`)
	unitPriceRe = regexp.MustCompile(`(?i)\$\s*([0-9,]+(?:\.[0-9]{1,2})?)\s*(?:/|per\s+)\s*(?:each|piece|bag|bottle|tube|pail|bucket|roll|sheet|kit|unit)\b`)
)

// Extract builds a CandidateRecord from a fetched page. titleHint (from the
// sitemap entry, may be empty) is the last-resort title source. Unmatched
// fields are left absent so completeness scoring stays accurate; pricing
// fields are raw candidates for the normalizer, which establishes the
// single-model invariant.
func (e *Extractor) Extract(page *models.RawPage, titleHint string) *models.CandidateRecord {
	rec := &models.CandidateRecord{
		Specifications: make(map[string]string),
		Pricing:        models.Pricing{},
		SourceURL:      page.URL,
	}

	p := parsePage(page)
	if p == nil {
		e.log.WithField("url", page.URL).Debug("HTML unparseable, returning empty record")
		rec.Title = titleHint
		return rec
	}

	rec.Title = e.extractTitle(p, titleHint)
	rec.Category = InferCategory(rec.Title)

	// Specification fields via the registry: first matcher hit wins, then the
	// field validator decides. A rejection is a miss, logged for pattern
	// tuning, never coerced.
	for _, field := range e.registry.Fields() {
		for _, matcher := range field.Matchers {
			raw, ok := matcher.Match(p)
			if !ok {
				continue
			}
			if field.Validator != nil && !field.Validator.Validate(raw) {
				e.log.WithFields(logrus.Fields{
					"url":   page.URL,
					"field": field.Name,
					"value": raw,
				}).Debug("Field value rejected by validator")
				continue // Next matcher may produce a cleaner value
			}
			rec.Specifications[field.Name] = strings.TrimSpace(raw)
			break
		}
	}
	rec.SKU = rec.Specifications["sku"]

	e.extractPricingCandidates(p, rec)
	rec.Images = extractImages(p)
	rec.Resources = extractResources(p)
	rec.DescriptionMarkdown = descriptionMarkdown(p)

	return rec
}

func (e *Extractor) extractTitle(p *pageDoc, titleHint string) string {
	if t := p.productString("name"); t != "" {
		return t
	}
	if t, ok := p.doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}
	if t := strings.TrimSpace(p.doc.Find("h1").First().Text()); t != "" {
		return t
	}
	if t := strings.TrimSpace(p.doc.Find("title").First().Text()); t != "" {
		return t
	}
	return titleHint
}

// extractPricingCandidates fills raw pricing fields from every signal on the
// page. More than one may land; the normalizer owns mutual exclusivity.
func (e *Extractor) extractPricingCandidates(p *pageDoc, rec *models.CandidateRecord) {
	if m := areaPriceRe.FindStringSubmatch(p.text); m != nil {
		if v, ok := utils.ParsePrice(m[1]); ok {
			rec.Pricing.AreaPrice = models.Float64Ptr(v)
		}
	}
	if m := boxPriceRe.FindStringSubmatch(p.text); m != nil {
		if v, ok := utils.ParsePrice(m[1]); ok {
			rec.Pricing.BoxPrice = models.Float64Ptr(v)
		}
	}
	if m := unitPriceRe.FindStringSubmatch(p.text); m != nil {
		if v, ok := utils.ParsePrice(m[1]); ok {
			rec.Pricing.PiecePrice = models.Float64Ptr(v)
		}
	}

	// JSON-LD offer price carries no unit on its own; when no priced signal
	// claimed the slot, classify it by the record's category or by a bare
	// per-unit phrase in the page text ("sold per each").
	if offer := p.productString("offers", "price"); offer != "" {
		if v, ok := utils.ParsePrice(offer); ok {
			if IsUnitPricedCategory(rec.Category) || utils.HasPerUnitIndicator(p.text) {
				if rec.Pricing.PiecePrice == nil {
					rec.Pricing.PiecePrice = models.Float64Ptr(v)
				}
			} else if rec.Pricing.BoxPrice == nil {
				rec.Pricing.BoxPrice = models.Float64Ptr(v)
			}
		}
	}
}

// extractImages returns product image URLs: JSON-LD image entries first, then
// the og:image fallback. Order is deterministic and duplicates are dropped.
func extractImages(p *pageDoc) []string {
	var images []string
	seen := make(map[string]bool)
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u != "" && !seen[u] {
			seen[u] = true
			images = append(images, u)
		}
	}

	if p.product != nil {
		switch v := p.product["image"].(type) {
		case string:
			add(v)
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok {
					add(s)
				}
			}
		}
	}
	if og, ok := p.doc.Find(`meta[property="og:image"]`).Attr("content"); ok {
		add(og)
	}
	return images
}

// extractResources collects linked documents (spec sheets, installation
// guides); the catalog publishes them as PDF links. Sorted by URL for a
// stable record.
func extractResources(p *pageDoc) []models.Resource {
	var resources []models.Resource
	seen := make(map[string]bool)
	p.doc.Find(`a[href$=".pdf"], a[href$=".PDF"]`).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || seen[href] {
			return
		}
		seen[href] = true
		name := strings.TrimSpace(sel.Text())
		if name == "" {
			name = "Document"
		}
		resources = append(resources, models.Resource{Name: name, URL: href})
	})
	sort.Slice(resources, func(i, j int) bool { return resources[i].URL < resources[j].URL })
	return resources
}
