package extract

import (
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// descriptionSelectors are tried in order to locate the product description
// block. The catalog's templates have drifted over the years, hence the list.
var descriptionSelectors = []string{
	"div.product-description",
	"div#description",
	"section.description",
	"div[itemprop=description]",
	".product-details__description",
}

// descriptionMarkdown converts the product description block to markdown.
// Falls back to the JSON-LD description string when no HTML block is found.
// Returns "" when the page has no description at all; absent stays absent.
func descriptionMarkdown(p *pageDoc) string {
	var sel *goquery.Selection
	for _, selector := range descriptionSelectors {
		found := p.doc.Find(selector).First()
		if found.Length() > 0 {
			sel = found
			break
		}
	}

	if sel != nil {
		html, err := goquery.OuterHtml(sel)
		if err == nil && html != "" {
			converter := md.NewConverter("", true, nil)
			markdown, convErr := converter.ConvertString(html)
			if convErr == nil {
				markdown = strings.TrimSpace(markdown)
				if markdown != "" {
					return markdown
				}
			}
		}
	}

	return p.productString("description")
}
