package extract

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"catalog-scraper/pkg/models"
)

// pageDoc is the parsed view of a RawPage that matchers run against: the
// goquery document, the decoded JSON-LD product object (if any), and the
// flattened visible text. Built once per Extract call.
type pageDoc struct {
	doc     *goquery.Document
	product map[string]interface{} // First ld+json object with @type Product, nil if none
	text    string                 // Whitespace-collapsed visible body text
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// parsePage builds a pageDoc from a RawPage. Returns nil if the HTML is
// unparseable.
func parsePage(page *models.RawPage) *pageDoc {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.HTML))
	if err != nil {
		return nil
	}

	p := &pageDoc{doc: doc}
	p.product = findProductObject(page.EmbeddedJSON)

	body := doc.Find("body")
	// Scripts and styles pollute the text fallback matchers
	body.Find("script, style, noscript").Remove()
	p.text = whitespaceRe.ReplaceAllString(body.Text(), " ")
	return p
}

// findProductObject decodes the embedded JSON blobs in order and returns the
// first object whose @type is Product. Handles @graph wrappers and top-level
// arrays; blobs that fail to decode are skipped.
func findProductObject(blobs []string) map[string]interface{} {
	for _, blob := range blobs {
		var decoded interface{}
		if err := json.Unmarshal([]byte(blob), &decoded); err != nil {
			continue
		}
		if product := searchProduct(decoded); product != nil {
			return product
		}
	}
	return nil
}

func searchProduct(node interface{}) map[string]interface{} {
	switch v := node.(type) {
	case map[string]interface{}:
		if isProductType(v["@type"]) {
			return v
		}
		if graph, ok := v["@graph"]; ok {
			return searchProduct(graph)
		}
	case []interface{}:
		for _, item := range v {
			if product := searchProduct(item); product != nil {
				return product
			}
		}
	}
	return nil
}

func isProductType(t interface{}) bool {
	switch v := t.(type) {
	case string:
		return strings.EqualFold(v, "Product")
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.EqualFold(s, "Product") {
				return true
			}
		}
	}
	return false
}

// productString walks a dotted path into the product object and returns the
// value as a trimmed string. Numeric leaves are formatted without an
// exponent; non-scalar leaves return "".
func (p *pageDoc) productString(path ...string) string {
	if p.product == nil {
		return ""
	}
	var cur interface{} = p.product
	for _, key := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return ""
		}
		cur = m[key]
	}
	return scalarString(cur)
}

func scalarString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		// JSON numbers decode as float64; format compactly
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
	return ""
}
