package sitemap

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSitemapXMLURLSet(t *testing.T) {
	data := urlsetXML(
		"https://shop.example.com/tile/a",
		"https://shop.example.com/tile/b",
	)
	pages, nested, err := parseSitemapXML(data)
	require.NoError(t, err)
	assert.Empty(t, nested)
	assert.Equal(t, []string{
		"https://shop.example.com/tile/a",
		"https://shop.example.com/tile/b",
	}, pages)
}

func TestParseSitemapXMLIndex(t *testing.T) {
	data := indexXML(
		"https://shop.example.com/sitemap-1.xml",
		"https://shop.example.com/sitemap-2.xml",
	)
	pages, nested, err := parseSitemapXML(data)
	require.NoError(t, err)
	assert.Empty(t, pages)
	assert.Equal(t, []string{
		"https://shop.example.com/sitemap-1.xml",
		"https://shop.example.com/sitemap-2.xml",
	}, nested)
}

func TestParseSitemapXMLMalformed(t *testing.T) {
	_, _, err := parseSitemapXML([]byte("<html><body>not a sitemap</body></html>"))
	assert.Error(t, err)

	_, _, err = parseSitemapXML([]byte("definitely not xml"))
	assert.Error(t, err)
}

func TestParseSitemapXMLSkipsEmptyLoc(t *testing.T) {
	data := []byte(`<?xml version="1.0"?><urlset><url><loc></loc></url><url><loc>https://shop.example.com/a</loc></url></urlset>`)
	pages, _, err := parseSitemapXML(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://shop.example.com/a"}, pages)
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases host", "https://SHOP.Example.COM/Tile", "https://shop.example.com/Tile"},
		{"strips default https port", "https://shop.example.com:443/tile", "https://shop.example.com/tile"},
		{"strips default http port", "http://shop.example.com:80/tile", "http://shop.example.com/tile"},
		{"keeps custom port", "https://shop.example.com:8443/tile", "https://shop.example.com:8443/tile"},
		{"removes trailing slash", "https://shop.example.com/tile/", "https://shop.example.com/tile"},
		{"keeps root slash", "https://shop.example.com/", "https://shop.example.com/"},
		{"empty path becomes root", "https://shop.example.com", "https://shop.example.com/"},
		{"strips query", "https://shop.example.com/tile?utm=promo&b=2", "https://shop.example.com/tile"},
		{"strips fragment", "https://shop.example.com/tile#specs", "https://shop.example.com/tile"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := url.Parse(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, NormalizeURL(parsed))
		})
	}

	assert.Equal(t, "", NormalizeURL(nil))
}

func TestParseAndNormalize(t *testing.T) {
	normalized, parsed, err := ParseAndNormalize("https://shop.example.com/tile/zenobia/?ref=home")
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example.com/tile/zenobia", normalized)
	assert.Equal(t, "shop.example.com", parsed.Hostname())

	_, _, err = ParseAndNormalize("no-scheme.example.com/tile")
	assert.Error(t, err)
}
