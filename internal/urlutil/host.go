// Package urlutil holds host extraction and domain pattern matching shared
// by request blocking and service worker policy.
package urlutil

import (
	"net/url"
	"strings"
)

// Host returns the lowercased hostname of raw, or "" when raw has none.
func Host(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
}

// IsWeb reports whether raw is an http or https URL.
func IsWeb(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// MatchDomain reports whether host is covered by pattern. "*.example.com"
// and "example.com" both match example.com itself and any subdomain of it.
func MatchDomain(host, pattern string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	pattern = strings.TrimPrefix(pattern, "*.")
	pattern = strings.TrimPrefix(pattern, ".")
	if host == "" || pattern == "" {
		return false
	}
	return host == pattern || strings.HasSuffix(host, "."+pattern)
}

// MatchAny reports whether host matches at least one of patterns.
func MatchAny(host string, patterns []string) bool {
	for _, p := range patterns {
		if MatchDomain(host, p) {
			return true
		}
	}
	return false
}
