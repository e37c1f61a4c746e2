package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// jsonLDMatcher reads a dotted path out of the page's JSON-LD Product object.
// Highest-priority source: structured data survives page redesigns.
type jsonLDMatcher struct {
	path []string
}

func (m *jsonLDMatcher) Match(p *pageDoc) (string, bool) {
	v := p.productString(m.path...)
	return v, v != ""
}

// specTableMatcher scans specification tables and definition lists for a row
// whose label matches one of the given names (case-insensitive, colon and
// whitespace tolerant).
type specTableMatcher struct {
	labels []string
}

func (m *specTableMatcher) Match(p *pageDoc) (string, bool) {
	var value string
	var found bool

	match := func(label, candidate string) bool {
		label = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(label), ":")))
		return label == candidate
	}

	// Table rows: <tr><th>Label</th><td>Value</td></tr> or two <td>s
	p.doc.Find("table tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := row.Find("th, td")
		if cells.Length() < 2 {
			return true
		}
		label := cells.Eq(0).Text()
		for _, want := range m.labels {
			if match(label, want) {
				value = strings.TrimSpace(cells.Eq(1).Text())
				found = value != ""
				return !found
			}
		}
		return true
	})
	if found {
		return value, true
	}

	// Definition lists: <dt>Label</dt><dd>Value</dd>
	p.doc.Find("dl dt").EachWithBreak(func(_ int, dt *goquery.Selection) bool {
		label := dt.Text()
		for _, want := range m.labels {
			if match(label, want) {
				value = strings.TrimSpace(dt.NextFiltered("dd").Text())
				found = value != ""
				return !found
			}
		}
		return true
	})
	return value, found
}

// regexMatcher is the loose-text fallback: a pattern over the page's
// flattened visible text. The first capture group is the value.
type regexMatcher struct {
	re *regexp.Regexp
}

func (m *regexMatcher) Match(p *pageDoc) (string, bool) {
	sub := m.re.FindStringSubmatch(p.text)
	if len(sub) < 2 {
		return "", false
	}
	v := strings.TrimSpace(sub[1])
	return v, v != ""
}
