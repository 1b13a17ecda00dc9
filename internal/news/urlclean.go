package news

import (
	"net/url"
	"strings"
)

// Query parameters that survive canonicalization; everything else is a
// tracking or session artifact.
var keepQueryParams = []string{"v", "id", "p"}

// Markers that identify an aggregator-internal link: a URL still carrying
// one of these was never actually decoded.
var aggregatorMarkers = []string{
	"news.google.com/rss/articles",
	"news.google.com/articles",
	"consent.google.com",
}

// CanonicalizeURL reduces a URL to scheme://host/path plus the allow-listed
// query parameter subset. Unparseable or host-less input passes through
// unchanged. The reduction is idempotent.
func CanonicalizeURL(raw string) string {
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return raw
	}

	scheme := parsed.Scheme
	if scheme == "" {
		scheme = "https"
	}
	clean := scheme + "://" + parsed.Host + parsed.EscapedPath()

	query := parsed.Query()
	kept := url.Values{}
	for _, key := range keepQueryParams {
		if value := query.Get(key); value != "" {
			kept.Set(key, value)
		}
	}
	if len(kept) > 0 {
		clean += "?" + kept.Encode()
	}
	return clean
}

// IsActuallyDecoded reports whether decoded is a real destination URL: it
// must be non-empty, differ from the original after canonicalization, and
// carry no aggregator-internal path markers.
func IsActuallyDecoded(original, decoded string) bool {
	if decoded == "" {
		return false
	}
	if CanonicalizeURL(original) == CanonicalizeURL(decoded) {
		return false
	}
	for _, marker := range aggregatorMarkers {
		if strings.Contains(decoded, marker) {
			return false
		}
	}
	return true
}

// CleanTitle strips a trailing " - <sourceName>" suffix, exact match only.
func CleanTitle(title, sourceName string) string {
	if sourceName == "" {
		return title
	}
	suffix := " - " + sourceName
	if strings.HasSuffix(title, suffix) {
		return strings.TrimSuffix(title, suffix)
	}
	return title
}

// ExtractDomain returns a URL's host with any leading "www." trimmed.
func ExtractDomain(raw string) string {
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return ""
	}
	host := parsed.Hostname()
	return strings.TrimPrefix(host, "www.")
}
