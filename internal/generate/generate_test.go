package generate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesfandiari1/llms.txt/internal/digest"
)

func page(url, title, category string, importance int, summary, markdown string) digest.Page {
	return digest.Page{
		URL:             url,
		Title:           title,
		Category:        category,
		ImportanceScore: importance,
		Summary:         summary,
		Markdown:        markdown,
		Included:        true,
	}
}

func TestLinkIndexExactLinkLine(t *testing.T) {
	t.Parallel()

	job := digest.Job{URL: "https://e.com", SiteTitle: "Example", SiteSummary: "An example."}
	out := Generate(job, []digest.Page{
		page("https://e.com/g", "Quick Start Guide", "Docs", 90, "Step-by-step guide...", "# Start"),
	})

	require.Contains(t, out.LinkIndex, "- [Quick Start Guide](https://e.com/g): Step-by-step guide...")
}

func TestLinkIndexFullDocument(t *testing.T) {
	t.Parallel()

	job := digest.Job{
		URL:                  "https://docs.example.com",
		SiteTitle:            "Example",
		SiteSummary:          "Example is a library.",
		SiteNotes:            "Not a framework\n- Needs Go 1.22\n\n",
		DiscoveredCategories: []string{"getting-started", "api"},
	}
	out := Generate(job, []digest.Page{
		page("https://docs.example.com/api", "API [v2]", "api", 70, "Endpoint reference", "api body"),
		page("https://docs.example.com/start", "Start", "getting-started", 95, "Install and run", "start body"),
		page("https://docs.example.com/more", "More", "getting-started", 40, "Extra", "more body"),
	})

	want := strings.Join([]string{
		"# Example",
		"",
		"> Example is a library.",
		"",
		"Important notes:",
		"",
		"- Not a framework",
		"- Needs Go 1.22",
		"",
		"## Getting Started",
		"",
		"- [Start](https://docs.example.com/start): Install and run",
		"- [More](https://docs.example.com/more): Extra",
		"",
		"## API",
		"",
		`- [API \[v2\]](https://docs.example.com/api): Endpoint reference`,
		"",
	}, "\n")
	require.Equal(t, want, out.LinkIndex)
}

func TestLinkIndexSkipsPagesWithoutSummaryOrExcluded(t *testing.T) {
	t.Parallel()

	excluded := page("https://e.com/x", "Hidden", "Docs", 90, "hidden", "x")
	excluded.Included = false
	job := digest.Job{URL: "https://www.e.com", DiscoveredCategories: []string{"Docs", "Examples"}}
	out := Generate(job, []digest.Page{
		excluded,
		page("https://e.com/y", "", "Examples", 50, "", "y"),
	})

	assert.NotContains(t, out.LinkIndex, "Hidden")
	assert.NotContains(t, out.LinkIndex, "## ")
	assert.Contains(t, out.LinkIndex, "# E Com\n\n> Documentation for e.com\n\n")
	assert.True(t, strings.HasSuffix(out.LinkIndex, "*No documentation pages available.*\n"))
}

func TestLinkIndexFallsBackToAlphabeticalOrder(t *testing.T) {
	t.Parallel()

	job := digest.Job{URL: "https://e.com"}
	out := Generate(job, []digest.Page{
		page("https://e.com/z", "Z", "zeta", 50, "z", "z"),
		page("https://e.com/a", "A", "alpha", 50, "a", "a"),
		page("https://e.com/o", "O", "", 50, "o", "o"),
	})

	// Byte order puts the capitalized fallback bucket first.
	optional := strings.Index(out.LinkIndex, "## Optional")
	alpha := strings.Index(out.LinkIndex, "## Alpha")
	zeta := strings.Index(out.LinkIndex, "## Zeta")
	require.True(t, optional >= 0 && alpha > optional && zeta > alpha, out.LinkIndex)
}

func TestEmbeddedContentDocument(t *testing.T) {
	t.Parallel()

	job := digest.Job{
		URL:                  "https://e.com",
		SiteTitle:            `The "E" Kit`,
		SiteSummary:          "Kit.",
		SiteNotes:            "- raw note",
		DiscoveredCategories: []string{"Getting Started", "API Reference"},
	}
	out := Generate(job, []digest.Page{
		page("https://e.com/ref", "Ref", "API Reference", 60, `Say "hi"`, "# Ref"),
		page("https://e.com/start", "Start", "Getting Started", 90, "", "# Start"),
		page("https://e.com/empty", "Empty", "Getting Started", 99, "nothing", ""),
	})

	want := strings.Join([]string{
		`<project title="The &quot;E&quot; Kit" summary="Kit.">`,
		"<notes>",
		"- raw note",
		"</notes>",
		"<getting-started>",
		`<doc title="Start" desc="">`,
		"# Start",
		"</doc>",
		"</getting-started>",
		"<api-reference>",
		`<doc title="Ref" desc="Say &quot;hi&quot;">`,
		"# Ref",
		"</doc>",
		"</api-reference>",
		"</project>",
	}, "\n")
	require.Equal(t, want, out.EmbeddedContent)
}

func TestGenerateCategoryOrderAndUniqueness(t *testing.T) {
	t.Parallel()

	job := digest.Job{URL: "https://e.com", DiscoveredCategories: []string{"A", "B"}}
	out := Generate(job, []digest.Page{
		page("https://e.com/b", "Page B", "B", 80, "about b", "b body"),
		page("https://e.com/a", "Page A", "A", 20, "about a", "a body"),
	})

	for _, doc := range []string{out.LinkIndex, out.EmbeddedContent} {
		require.Less(t, strings.Index(doc, "Page A"), strings.Index(doc, "Page B"))
		require.Equal(t, 1, strings.Count(doc, "Page A"))
		require.Equal(t, 1, strings.Count(doc, "Page B"))
	}
	require.Equal(t, map[string]string{
		digest.ArtifactLinkIndex:       out.LinkIndex,
		digest.ArtifactEmbeddedContent: out.EmbeddedContent,
	}, out.Files())
}

func TestHeaderTitleFromHyphenatedDomain(t *testing.T) {
	t.Parallel()

	out := Generate(digest.Job{URL: "https://my-docs.io"}, nil)
	assert.True(t, strings.HasPrefix(out.LinkIndex, "# My-Docs Io\n\n> Documentation for my-docs.io\n"))
	assert.True(t, strings.HasPrefix(out.EmbeddedContent, `<project title="My-Docs Io" summary="Documentation for my-docs.io">`))
}
