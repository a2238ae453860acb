// Package pages filters discovered URLs and turns classifier output into
// page-creation records.
package pages

import (
	"net/url"
	"regexp"
	"strings"
)

// excludePatterns match documentation-irrelevant paths. They are searched in
// the lower-cased path.
var excludePatterns = []*regexp.Regexp{
	regexp.MustCompile(`/search`),
	regexp.MustCompile(`/login`),
	regexp.MustCompile(`/signup`),
	regexp.MustCompile(`/404`),
	regexp.MustCompile(`/500`),
	regexp.MustCompile(`/auth`),
	regexp.MustCompile(`/oauth`),
	regexp.MustCompile(`/callback`),
	regexp.MustCompile(`/privacy`),
	regexp.MustCompile(`/terms`),
	regexp.MustCompile(`/tag/`),
	regexp.MustCompile(`/category/`),
	regexp.MustCompile(`/author/`),
	regexp.MustCompile(`/page/\d+`),
	regexp.MustCompile(`\?`),
	regexp.MustCompile(`#`),
	regexp.MustCompile(`/sitemap`),
	regexp.MustCompile(`\.xml$`),
}

// Filter drops cross-domain URLs and URLs matching the exclusion patterns.
// Order is preserved and duplicates are kept.
func Filter(urls []string, baseURL string) []string {
	baseHost := ""
	if base, err := url.Parse(baseURL); err == nil {
		baseHost = base.Host
	}

	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		if u.Host != "" && u.Host != baseHost {
			continue
		}
		// A raw query or fragment never shows up in the parsed path.
		if u.RawQuery != "" || u.ForceQuery || u.Fragment != "" || strings.HasSuffix(raw, "#") {
			continue
		}
		if excluded(strings.ToLower(u.Path)) {
			continue
		}
		out = append(out, raw)
	}
	return out
}

func excluded(path string) bool {
	for _, re := range excludePatterns {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}
