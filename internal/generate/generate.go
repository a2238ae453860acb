// Package generate renders the llms.txt link index and the llms-ctx.txt
// embedded-content document from categorized, summarized pages.
package generate

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/tesfandiari1/llms.txt/internal/digest"
)

const (
	optionalCategory = "Optional"
	untitled         = "Untitled"
	emptyPlaceholder = "*No documentation pages available.*"
)

// Artifacts holds both rendered documents.
type Artifacts struct {
	LinkIndex       string
	EmbeddedContent string
}

// Files maps artifact keys to rendered content.
func (a Artifacts) Files() map[string]string {
	return map[string]string{
		digest.ArtifactLinkIndex:       a.LinkIndex,
		digest.ArtifactEmbeddedContent: a.EmbeddedContent,
	}
}

// Generate renders both variants. Output depends only on its inputs.
func Generate(job digest.Job, pages []digest.Page) Artifacts {
	groups := groupByCategory(pages)
	return Artifacts{
		LinkIndex:       LinkIndex(job, groups),
		EmbeddedContent: EmbeddedContent(job, groups),
	}
}

// Groups maps a category name to its pages.
type Groups map[string][]digest.Page

func groupByCategory(pages []digest.Page) Groups {
	groups := make(Groups)
	for _, p := range pages {
		category := p.Category
		if category == "" {
			category = optionalCategory
		}
		groups[category] = append(groups[category], p)
	}
	return groups
}

// LinkIndex renders the markdown link index.
func LinkIndex(job digest.Job, groups Groups) string {
	title, summary := header(job)
	lines := []string{
		"# " + title,
		"",
		"> " + summary,
		"",
	}

	if notes := strings.TrimSpace(job.SiteNotes); notes != "" {
		lines = append(lines, "Important notes:", "")
		for _, note := range strings.Split(notes, "\n") {
			note = strings.TrimSpace(note)
			if note == "" {
				continue
			}
			if !strings.HasPrefix(note, "- ") {
				note = "- " + note
			}
			lines = append(lines, note)
		}
		lines = append(lines, "")
	}

	hasContent := false
	for _, category := range categoryOrder(job, groups) {
		selected := selectPages(groups[category], func(p digest.Page) bool {
			return p.Included && p.Summary != ""
		})
		if len(selected) == 0 {
			continue
		}
		hasContent = true
		lines = append(lines, "## "+CategoryDisplayName(category), "")
		for _, p := range selected {
			lines = append(lines, fmt.Sprintf("- [%s](%s): %s",
				escapeLinkText(pageTitle(p)), p.URL, TruncateSummary(p.Summary, 200)))
		}
		lines = append(lines, "")
	}

	if !hasContent {
		lines = append(lines, emptyPlaceholder, "")
	}
	return strings.Join(lines, "\n")
}

// EmbeddedContent renders the tagged document with full page markdown.
func EmbeddedContent(job digest.Job, groups Groups) string {
	title, summary := header(job)
	lines := []string{
		fmt.Sprintf(`<project title="%s" summary="%s">`, escapeAttr(title), escapeAttr(summary)),
	}

	if strings.TrimSpace(job.SiteNotes) != "" {
		lines = append(lines, "<notes>", job.SiteNotes, "</notes>")
	}

	for _, category := range categoryOrder(job, groups) {
		selected := selectPages(groups[category], func(p digest.Page) bool {
			return p.Included && p.Markdown != ""
		})
		if len(selected) == 0 {
			continue
		}
		tag := CategorySlug(category)
		lines = append(lines, "<"+tag+">")
		for _, p := range selected {
			lines = append(lines,
				fmt.Sprintf(`<doc title="%s" desc="%s">`, escapeAttr(pageTitle(p)), escapeAttr(p.Summary)),
				p.Markdown,
				"</doc>",
			)
		}
		lines = append(lines, "</"+tag+">")
	}

	lines = append(lines, "</project>")
	return strings.Join(lines, "\n")
}

func header(job digest.Job) (string, string) {
	domain := SiteDomain(job.URL)
	title := job.SiteTitle
	if title == "" {
		title = domainTitle(strings.ReplaceAll(domain, ".", " "))
	}
	summary := job.SiteSummary
	if summary == "" {
		summary = "Documentation for " + domain
	}
	return title, summary
}

// categoryOrder lists the categories to render: the discovered order when
// present, otherwise alphabetical.
func categoryOrder(job digest.Job, groups Groups) []string {
	if len(job.DiscoveredCategories) > 0 {
		return job.DiscoveredCategories
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// selectPages keeps matching pages ordered by descending importance.
func selectPages(pages []digest.Page, keep func(digest.Page) bool) []digest.Page {
	out := make([]digest.Page, 0, len(pages))
	for _, p := range pages {
		if keep(p) {
			out = append(out, p)
		}
	}
	slices.SortStableFunc(out, func(a, b digest.Page) int {
		return cmp.Compare(importance(b), importance(a))
	})
	return out
}

// importance treats a zero score as unset.
func importance(p digest.Page) int {
	if p.ImportanceScore == 0 {
		return digest.DefaultImportance
	}
	return p.ImportanceScore
}

func pageTitle(p digest.Page) string {
	if p.Title == "" {
		return untitled
	}
	return p.Title
}
