package sitemap

import (
	"net"
	"net/url"
	"strings"
)

// NormalizeURL standardizes a URL for dedup and storage. It lowercases the
// scheme and host, removes default ports, trims trailing slashes from paths
// (unless root "/"), and strips fragments and query strings. Catalog pages on
// the target storefronts are query-independent, so dropping the query
// collapses tracking-parameter variants onto one record.
func NormalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	// Work on a copy
	normalized := *u

	normalized.Scheme = strings.ToLower(normalized.Scheme)
	normalized.Host = strings.ToLower(normalized.Host)

	// Remove default ports
	host, port, err := net.SplitHostPort(normalized.Host)
	if err == nil {
		if (normalized.Scheme == "http" && port == "80") ||
			(normalized.Scheme == "https" && port == "443") {
			normalized.Host = host
		}
	}

	if normalized.Path == "" {
		normalized.Path = "/"
	} else if len(normalized.Path) > 1 && strings.HasSuffix(normalized.Path, "/") {
		normalized.Path = normalized.Path[:len(normalized.Path)-1]
	}

	normalized.Fragment = ""
	normalized.RawQuery = ""

	return normalized.String()
}

// ParseAndNormalize parses a URL string using the stricter url.ParseRequestURI
// (requiring a scheme) and then normalizes it.
func ParseAndNormalize(urlStr string) (string, *url.URL, error) {
	parsed, err := url.ParseRequestURI(urlStr)
	if err != nil {
		return "", nil, err
	}
	return NormalizeURL(parsed), parsed, nil
}
