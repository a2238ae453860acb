package memory

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tesfandiari1/llms.txt/internal/digest"
)

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NewID() (string, error) {
	return fmt.Sprintf("page-%d", s.n.Add(1)), nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newRepo() *Repository {
	return NewRepository(&seqIDs{}, fixedClock{t: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)})
}

func TestRepositoryJobLifecycle(t *testing.T) {
	t.Parallel()

	repo := newRepo()
	ctx := context.Background()
	job := digest.Job{ID: "job-1", URL: "https://docs.example.com", Status: digest.JobStatusPending}

	require.NoError(t, repo.CreateJob(ctx, job))
	require.Error(t, repo.CreateJob(ctx, job))

	err := repo.UpdateJob(ctx, "job-1", digest.JobUpdate{
		Status:          digest.Ptr(digest.JobStatusDiscovering),
		ProgressPercent: digest.Ptr(5),
		DiscoveredURLs:  []string{"https://docs.example.com/a"},
	})
	require.NoError(t, err)

	got, err := repo.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, digest.JobStatusDiscovering, got.Status)
	require.Equal(t, 5, got.ProgressPercent)
	require.False(t, got.CreatedAt.IsZero())

	// Returned jobs are copies.
	got.DiscoveredURLs[0] = "mutated"
	again, err := repo.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, "https://docs.example.com/a", again.DiscoveredURLs[0])

	_, err = repo.GetJob(ctx, "missing")
	require.ErrorIs(t, err, digest.ErrNotFound)
	require.ErrorIs(t, repo.UpdateJob(ctx, "missing", digest.JobUpdate{}), digest.ErrNotFound)
}

func TestRepositoryPages(t *testing.T) {
	t.Parallel()

	repo := newRepo()
	ctx := context.Background()
	require.NoError(t, repo.CreateJob(ctx, digest.Job{ID: "job-1"}))
	require.NoError(t, repo.CreateJob(ctx, digest.Job{ID: "job-2"}))

	pages, err := repo.CreatePages(ctx, "job-1", []digest.PageDraft{
		{URL: "https://d.com/a", Path: "/a", Category: "Guides", ImportanceScore: 90, Included: true},
		{URL: "https://d.com/b", Path: "/b", Category: "Guides", ImportanceScore: 80, Included: true},
		{URL: "https://d.com/c", Path: "/c", Category: "API", ImportanceScore: 70, Included: true},
	})
	require.NoError(t, err)
	require.Len(t, pages, 3)
	require.Equal(t, digest.StepPending, pages[0].ExtractionStatus)

	_, err = repo.CreatePages(ctx, "missing", nil)
	require.ErrorIs(t, err, digest.ErrNotFound)

	require.NoError(t, repo.UpdatePage(ctx, pages[0].ID, digest.PageUpdate{
		Markdown:         digest.Ptr("# A"),
		ExtractionStatus: digest.Ptr(digest.StepSuccess),
	}))
	require.ErrorIs(t, repo.UpdatePage(ctx, "nope", digest.PageUpdate{}), digest.ErrNotFound)

	updated, err := repo.SetPagesIncluded(ctx, "job-1", []string{pages[1].ID, "unknown"}, false)
	require.NoError(t, err)
	require.Equal(t, 1, updated)

	// IDs from another job do not match.
	updated, err = repo.SetPagesIncluded(ctx, "job-2", []string{pages[2].ID}, false)
	require.NoError(t, err)
	require.Zero(t, updated)

	all, err := repo.ListPages(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, []string{"https://d.com/a", "https://d.com/b", "https://d.com/c"}, urls(all))

	forExtraction, err := repo.PagesForExtraction(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, []string{"https://d.com/a", "https://d.com/c"}, urls(forExtraction))

	withContent, err := repo.PagesWithContent(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, []string{"https://d.com/a"}, urls(withContent))

	require.NoError(t, repo.Ping(ctx))
}

func urls(pages []digest.Page) []string {
	out := make([]string, 0, len(pages))
	for _, p := range pages {
		out = append(out, p.URL)
	}
	return out
}
