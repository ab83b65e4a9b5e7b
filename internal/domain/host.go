package domain

import (
	"net/url"
	"strings"
)

// IsURL reports whether s can be used as a candidate host: an absolute
// http or https URL with a non-empty host.
func IsURL(s string) bool {
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.Host != ""
}

// Clean trims surrounding spaces and trailing slashes.
// Example: "https://api.domain.ext//" -> "https://api.domain.ext"
func Clean(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "/")
}

// FilterURLs keeps the valid URLs of in, cleaned, preserving order and
// dropping duplicates.
func FilterURLs(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, raw := range in {
		c := Clean(raw)
		if !IsURL(c) || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// DomainOf returns the hostname of a URL. Anything that does not look like
// an http(s) URL, or fails to parse, is returned unchanged.
func DomainOf(s string) string {
	if !strings.HasPrefix(s, "http") {
		return s
	}
	u, err := url.Parse(s)
	if err != nil || u.Hostname() == "" {
		return s
	}
	return u.Hostname()
}
