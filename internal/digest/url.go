package digest

import (
	"net/url"
	"strings"
)

// NormalizeURL prepares a URL for equality matching: one trailing slash is
// removed, http is upgraded to https, and the whole string is lower-cased.
func NormalizeURL(raw string) string {
	raw = strings.TrimSuffix(raw, "/")
	if strings.HasPrefix(raw, "http://") {
		raw = "https://" + strings.TrimPrefix(raw, "http://")
	}
	return strings.ToLower(raw)
}

// URLPath returns the path component of raw, or "" when it does not parse.
func URLPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Path
}

// Host returns the host (with port) of raw, or "" when it does not parse.
func Host(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
