package pages

import (
	"slices"

	"github.com/tesfandiari1/llms.txt/internal/digest"
)

// Merge converts classifier output into page drafts ordered by the index of
// their category in result.Categories (unknown categories last), then by
// descending importance. Ties keep classifier order.
func Merge(result digest.Categorization) []digest.PageDraft {
	drafts := make([]digest.PageDraft, 0, len(result.Pages))
	for _, item := range result.Pages {
		category := item.Category
		if category == "" {
			category = digest.DefaultCategory
		}
		importance := digest.DefaultImportance
		if item.Importance != nil {
			importance = *item.Importance
		}
		drafts = append(drafts, digest.PageDraft{
			URL:             item.URL,
			Path:            digest.URLPath(item.URL),
			Category:        category,
			ImportanceScore: importance,
			Included:        true,
		})
	}

	order := make(map[string]int, len(result.Categories))
	for i, c := range result.Categories {
		if _, seen := order[c]; !seen {
			order[c] = i
		}
	}
	rank := func(category string) int {
		if i, ok := order[category]; ok {
			return i
		}
		return len(result.Categories)
	}

	slices.SortStableFunc(drafts, func(a, b digest.PageDraft) int {
		if ra, rb := rank(a.Category), rank(b.Category); ra != rb {
			return ra - rb
		}
		return b.ImportanceScore - a.ImportanceScore
	})
	return drafts
}
