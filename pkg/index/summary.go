package index

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"catalog-scraper/pkg/models"
)

// DefaultSummaryTokenBudget caps the indexable summary handed to the search
// collaborator's embedding pipeline.
const DefaultSummaryTokenBudget = 512

// BuildSummary renders a record into a compact markdown summary for indexing:
// title heading, pricing line, a sorted specification list, then as much of
// the description as fits the token budget. Sorting the specs keeps a
// re-extraction of unchanged content byte-identical, so downstream consumers
// can skip redundant re-embeds.
func BuildSummary(rec *models.CandidateRecord, tokenBudget int) (string, error) {
	if tokenBudget <= 0 {
		tokenBudget = DefaultSummaryTokenBudget
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", rec.Title)
	if rec.SKU != "" {
		fmt.Fprintf(&b, "SKU: %s\n", rec.SKU)
	}
	if rec.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", rec.Category)
	}
	b.WriteString(pricingLine(rec.Pricing))

	if len(rec.Specifications) > 0 {
		b.WriteString("\n## Specifications\n\n")
		keys := make([]string, 0, len(rec.Specifications))
		for k := range rec.Specifications {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, rec.Specifications[k])
		}
	}

	head := b.String()
	if rec.DescriptionMarkdown == "" {
		return head, nil
	}

	// Spend whatever budget the structured header leaves on the description.
	used := CountTokens(head)
	if used < 0 {
		// Tokenizer unavailable; include the description untrimmed.
		return head + "\n## Description\n\n" + rec.DescriptionMarkdown + "\n", nil
	}

	remaining := tokenBudget - used - descriptionHeaderTokens
	if remaining <= 0 {
		return head, nil
	}

	desc, err := trimToTokens(rec.DescriptionMarkdown, remaining)
	if err != nil {
		return "", fmt.Errorf("trimming description: %w", err)
	}
	if desc == "" {
		return head, nil
	}
	return head + "\n## Description\n\n" + desc + "\n", nil
}

// descriptionHeaderTokens reserves space for the "## Description" section
// marker itself.
const descriptionHeaderTokens = 8

func pricingLine(p models.Pricing) string {
	switch p.Kind {
	case models.PricingPerBoxAndArea:
		return fmt.Sprintf("Price: $%.2f per box ($%.2f per sq ft)\n", *p.BoxPrice, *p.AreaPrice)
	case models.PricingPerPiece:
		return fmt.Sprintf("Price: $%.2f each\n", *p.PiecePrice)
	}
	return ""
}

// trimToTokens cuts markdown down to at most budget tokens, splitting on
// markdown structure so the cut lands on a section or sentence boundary
// rather than mid-word.
func trimToTokens(markdown string, budget int) (string, error) {
	if CountTokens(markdown) <= budget {
		return markdown, nil
	}

	lenFunc := func(s string) int {
		n := CountTokens(s)
		if n < 0 {
			return len(s)
		}
		return n
	}

	recursiveSplitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(budget),
		textsplitter.WithChunkOverlap(0),
		textsplitter.WithLenFunc(lenFunc),
	)
	splitter := textsplitter.NewMarkdownTextSplitter(
		textsplitter.WithChunkSize(budget),
		textsplitter.WithChunkOverlap(0),
		textsplitter.WithSecondSplitter(recursiveSplitter),
		textsplitter.WithLenFunc(lenFunc),
	)

	parts, err := splitter.SplitText(markdown)
	if err != nil {
		return "", err
	}
	if len(parts) == 0 {
		return "", nil
	}
	return strings.TrimSpace(parts[0]), nil
}
