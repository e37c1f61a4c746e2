package sitemap

import (
	"encoding/xml"
	"fmt"

	"catalog-scraper/pkg/utils"
)

// --- XML Structs for Sitemap Parsing ---

// XMLURL represents a <url> element in a sitemap
type XMLURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// XMLURLSet represents a <urlset> element in a sitemap
type XMLURLSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []XMLURL `xml:"url"`
}

// XMLSitemap represents a <sitemap> element in a sitemap index file
type XMLSitemap struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// XMLSitemapIndex represents a <sitemapindex> element
type XMLSitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []XMLSitemap `xml:"sitemap"`
}

// parseSitemapXML decodes a sitemap document. A document is either an index
// referencing nested sitemaps or a urlset of page URLs; both element lists are
// returned so the caller can walk indexes recursively.
func parseSitemapXML(data []byte) (pageURLs []string, nestedSitemaps []string, err error) {
	var index XMLSitemapIndex
	if errIndex := xml.Unmarshal(data, &index); errIndex == nil && len(index.Sitemaps) > 0 {
		for _, sm := range index.Sitemaps {
			if sm.Loc != "" {
				nestedSitemaps = append(nestedSitemaps, sm.Loc)
			}
		}
		return nil, nestedSitemaps, nil
	}

	var urlSet XMLURLSet
	if errSet := xml.Unmarshal(data, &urlSet); errSet != nil {
		return nil, nil, fmt.Errorf("%w: document is neither sitemapindex nor urlset: %w", utils.ErrParsing, errSet)
	}
	for _, u := range urlSet.URLs {
		if u.Loc != "" {
			pageURLs = append(pageURLs, u.Loc)
		}
	}
	return pageURLs, nil, nil
}
