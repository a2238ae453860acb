package digest

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://Example.com/Docs/":  "https://example.com/docs",
		"http://example.com/guide":   "https://example.com/guide",
		"https://example.com/a//":    "https://example.com/a/",
		"HTTP://example.com/":        "http://example.com",
		"https://example.com/a?b=C":  "https://example.com/a?b=c",
		"":                           "",
	}
	for in, want := range cases {
		require.Equal(t, want, NormalizeURL(in), in)
	}
}

func TestNormalizeURLMatchesBothSides(t *testing.T) {
	t.Parallel()

	require.Equal(t, NormalizeURL("http://ex.com/Start/"), NormalizeURL("https://EX.com/start"))
}

func TestURLPathAndHost(t *testing.T) {
	t.Parallel()

	require.Equal(t, "/docs/intro", URLPath("https://ex.com/docs/intro?x=1"))
	require.Equal(t, "ex.com:8080", Host("https://ex.com:8080/docs"))
	require.Equal(t, "", URLPath("://bad"))
}

func TestErrorfMatchesKind(t *testing.T) {
	t.Parallel()

	err := Errorf(ErrEmptyResult, "job %s: no URLs discovered", "j1")
	require.EqualError(t, err, "job j1: no URLs discovered")
	require.True(t, errors.Is(err, ErrEmptyResult))
	require.True(t, errors.Is(fmt.Errorf("run: %w", err), ErrEmptyResult))
	require.False(t, errors.Is(err, ErrNotFound))
}

func TestJobUpdateApply(t *testing.T) {
	t.Parallel()

	job := Job{ID: "j1", Status: JobStatusPending, ProgressMessage: "old"}
	JobUpdate{
		Status:          Ptr(JobStatusDiscovering),
		ProgressPercent: Ptr(5),
		DiscoveredURLs:  []string{"https://ex.com"},
		ResultFiles:     map[string]string{ArtifactLinkIndex: "j1/llms.txt"},
	}.Apply(&job)

	require.Equal(t, JobStatusDiscovering, job.Status)
	require.Equal(t, 5, job.ProgressPercent)
	require.Equal(t, "old", job.ProgressMessage)
	require.Equal(t, []string{"https://ex.com"}, job.DiscoveredURLs)
	require.Equal(t, "j1/llms.txt", job.ResultFiles[ArtifactLinkIndex])
}

func TestDefaultCategorization(t *testing.T) {
	t.Parallel()

	got := DefaultCategorization([]string{"https://ex.com/a", "https://ex.com/b"})
	require.Equal(t, []string{"Documentation"}, got.Categories)
	require.Len(t, got.Pages, 2)
	for _, p := range got.Pages {
		require.Equal(t, "Documentation", p.Category)
		require.Equal(t, 50, *p.Importance)
	}
}

func TestArtifactFilename(t *testing.T) {
	t.Parallel()

	require.Equal(t, "llms.txt", ArtifactFilename(ArtifactLinkIndex))
	require.Equal(t, "llms-ctx.txt", ArtifactFilename(ArtifactEmbeddedContent))
	require.Equal(t, "other.txt", ArtifactFilename("other"))
}
