package generate

import (
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"
)

// canonicalCategories render unchanged.
var canonicalCategories = map[string]bool{
	"API":           true,
	"API Reference": true,
	"Docs":          true,
	"Examples":      true,
	"Optional":      true,
}

// CategoryDisplayName title-cases a category while keeping known acronyms.
func CategoryDisplayName(category string) string {
	if canonicalCategories[category] {
		return category
	}
	switch strings.ToLower(category) {
	case "api":
		return "API"
	case "api reference", "api-reference":
		return "API Reference"
	}
	return titleWords(strings.ReplaceAll(category, "-", " "))
}

// CategorySlug derives the embedded-content tag for a category.
func CategorySlug(category string) string {
	return strings.ReplaceAll(strings.ToLower(category), " ", "-")
}

// TruncateSummary cuts s to limit characters, backing off to the last space
// when it sits past the midpoint, and appends an ellipsis.
func TruncateSummary(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	cut := runes[:limit]
	for i := len(cut) - 1; i > limit/2; i-- {
		if cut[i] == ' ' {
			cut = cut[:i]
			break
		}
	}
	return strings.TrimRightFunc(string(cut), unicode.IsSpace) + "..."
}

// SiteDomain returns the host of siteURL without a leading "www.".
func SiteDomain(siteURL string) string {
	if siteURL == "" {
		return "Unknown Site"
	}
	domain := ""
	if u, err := url.Parse(siteURL); err == nil {
		domain = u.Host
		if domain == "" {
			domain, _, _ = strings.Cut(u.Path, "/")
		}
	}
	if domain == "" {
		return "Unknown Site"
	}
	return strings.TrimPrefix(domain, "www.")
}

// titleWords capitalizes the first letter of each space-separated word and
// lower-cases the rest.
func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = capitalize(w)
	}
	return strings.Join(words, " ")
}

// domainTitle is titleWords that also capitalizes after hyphens, so
// "my-docs io" becomes "My-Docs Io".
func domainTitle(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		parts := strings.Split(w, "-")
		for j, p := range parts {
			parts[j] = capitalize(p)
		}
		words[i] = strings.Join(parts, "-")
	}
	return strings.Join(words, " ")
}

func capitalize(w string) string {
	if w == "" {
		return w
	}
	r, size := utf8.DecodeRuneInString(w)
	return string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
}

func escapeLinkText(s string) string {
	return strings.NewReplacer("[", `\[`, "]", `\]`).Replace(s)
}

func escapeAttr(s string) string {
	return strings.ReplaceAll(s, `"`, "&quot;")
}
