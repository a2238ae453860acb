package digest

import (
	"context"
	"time"
)

// Repository persists jobs and pages.
type Repository interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	UpdateJob(ctx context.Context, jobID string, update JobUpdate) error
	CreatePages(ctx context.Context, jobID string, drafts []PageDraft) ([]Page, error)
	ListPages(ctx context.Context, jobID string) ([]Page, error)
	// PagesForExtraction returns included pages.
	PagesForExtraction(ctx context.Context, jobID string) ([]Page, error)
	// PagesWithContent returns included pages holding non-empty markdown.
	PagesWithContent(ctx context.Context, jobID string) ([]Page, error)
	UpdatePage(ctx context.Context, pageID string, update PageUpdate) error
	SetPagesIncluded(ctx context.Context, jobID string, pageIDs []string, included bool) (int, error)
	Ping(ctx context.Context) error
}

// ArtifactStore saves generated documents. Save returns the storage key that
// Read and URL accept.
type ArtifactStore interface {
	Save(ctx context.Context, key string, content string) (string, error)
	// Read returns ok=false when the key is absent.
	Read(ctx context.Context, key string) (content string, ok bool, err error)
	URL(key string) string
}

// Crawler discovers and extracts site content.
type Crawler interface {
	MapSite(ctx context.Context, siteURL string, limit int) ([]string, error)
	BatchExtract(ctx context.Context, urls []string) ([]ExtractedPage, error)
}

// Classifier groups URLs into categories. It degrades to DefaultCategorization
// instead of failing.
type Classifier interface {
	CategorizeURLs(ctx context.Context, siteURL string, urls []string) Categorization
}

// PageSummarizer produces page and site descriptions.
type PageSummarizer interface {
	SummarizePage(ctx context.Context, title, content string) (string, error)
	GenerateSiteSummary(ctx context.Context, siteURL string, top []SiteSample) SiteSummary
}

// Publisher pushes job outcome events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for pipeline work.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job and page IDs.
type IDGenerator interface {
	NewID() (string, error)
}
