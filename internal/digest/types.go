package digest

import "time"

// JobStatus represents the lifecycle state of a digest job.
type JobStatus string

// Job status values persisted in the repository.
const (
	JobStatusPending      JobStatus = "pending"
	JobStatusDiscovering  JobStatus = "discovering"
	JobStatusCategorizing JobStatus = "categorizing"
	JobStatusExtracting   JobStatus = "extracting"
	JobStatusSummarizing  JobStatus = "summarizing"
	JobStatusCompleted    JobStatus = "completed"
	JobStatusFailed       JobStatus = "failed"
)

// Terminal reports whether no further phase runs for the status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Mode selects how far the pipeline runs.
type Mode string

// Supported job modes.
const (
	ModeAuto Mode = "auto"
	ModeScan Mode = "scan"
)

// StepStatus tracks per-page extraction and summarization outcomes.
type StepStatus string

// Step status values.
const (
	StepPending StepStatus = "pending"
	StepSuccess StepStatus = "success"
	StepFailed  StepStatus = "failed"
)

// DefaultImportance is assigned when the classifier omits a score.
const DefaultImportance = 50

// DefaultCategory is assigned when the classifier omits a category.
const DefaultCategory = "Documentation"

// Job is one crawl-to-document request and its persisted state.
type Job struct {
	ID                   string            `json:"id"`
	URL                  string            `json:"url"`
	Status               JobStatus         `json:"status"`
	Mode                 Mode              `json:"mode"`
	AutoGenerate         bool              `json:"auto_generate"`
	MaxPages             int               `json:"max_pages"`
	ProgressPercent      int               `json:"progress_percent"`
	ProgressMessage      string            `json:"progress_message,omitempty"`
	PagesTotal           int               `json:"pages_total"`
	PagesProcessed       int               `json:"pages_processed"`
	DiscoveredURLs       []string          `json:"discovered_urls,omitempty"`
	DiscoveredCategories []string          `json:"discovered_categories,omitempty"`
	SiteTitle            string            `json:"site_title,omitempty"`
	SiteSummary          string            `json:"site_summary,omitempty"`
	SiteNotes            string            `json:"site_notes,omitempty"`
	ResultFiles          map[string]string `json:"result_files,omitempty"`
	ErrorMessage         string            `json:"error_message,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// Page is one retained URL within a job.
type Page struct {
	ID                  string     `json:"id"`
	JobID               string     `json:"job_id"`
	URL                 string     `json:"url"`
	Path                string     `json:"path"`
	Title               string     `json:"title,omitempty"`
	Category            string     `json:"category,omitempty"`
	ImportanceScore     int        `json:"importance_score"`
	Markdown            string     `json:"markdown,omitempty"`
	WordCount           int        `json:"word_count"`
	Summary             string     `json:"summary,omitempty"`
	Included            bool       `json:"included"`
	ExtractionStatus    StepStatus `json:"extraction_status"`
	SummarizationStatus StepStatus `json:"summarization_status"`
	CreatedAt           time.Time  `json:"created_at"`
}

// PageDraft is a page-creation record produced by the category merger.
type PageDraft struct {
	URL             string
	Path            string
	Category        string
	ImportanceScore int
	Included        bool
}

// JobUpdate is a partial job mutation. Nil fields are left unchanged.
type JobUpdate struct {
	Status               *JobStatus
	ProgressPercent      *int
	ProgressMessage      *string
	PagesTotal           *int
	PagesProcessed       *int
	DiscoveredURLs       []string
	DiscoveredCategories []string
	SiteTitle            *string
	SiteSummary          *string
	SiteNotes            *string
	ResultFiles          map[string]string
	ErrorMessage         *string
}

// Apply copies every set field of the update onto job.
func (u JobUpdate) Apply(job *Job) {
	if u.Status != nil {
		job.Status = *u.Status
	}
	if u.ProgressPercent != nil {
		job.ProgressPercent = *u.ProgressPercent
	}
	if u.ProgressMessage != nil {
		job.ProgressMessage = *u.ProgressMessage
	}
	if u.PagesTotal != nil {
		job.PagesTotal = *u.PagesTotal
	}
	if u.PagesProcessed != nil {
		job.PagesProcessed = *u.PagesProcessed
	}
	if u.DiscoveredURLs != nil {
		job.DiscoveredURLs = append([]string(nil), u.DiscoveredURLs...)
	}
	if u.DiscoveredCategories != nil {
		job.DiscoveredCategories = append([]string(nil), u.DiscoveredCategories...)
	}
	if u.SiteTitle != nil {
		job.SiteTitle = *u.SiteTitle
	}
	if u.SiteSummary != nil {
		job.SiteSummary = *u.SiteSummary
	}
	if u.SiteNotes != nil {
		job.SiteNotes = *u.SiteNotes
	}
	if u.ResultFiles != nil {
		job.ResultFiles = make(map[string]string, len(u.ResultFiles))
		for k, v := range u.ResultFiles {
			job.ResultFiles[k] = v
		}
	}
	if u.ErrorMessage != nil {
		job.ErrorMessage = *u.ErrorMessage
	}
}

// PageUpdate is a partial page mutation. Nil fields are left unchanged.
type PageUpdate struct {
	Title               *string
	Markdown            *string
	WordCount           *int
	ExtractionStatus    *StepStatus
	Summary             *string
	SummarizationStatus *StepStatus
	Included            *bool
}

// Apply copies every set field of the update onto page.
func (u PageUpdate) Apply(page *Page) {
	if u.Title != nil {
		page.Title = *u.Title
	}
	if u.Markdown != nil {
		page.Markdown = *u.Markdown
	}
	if u.WordCount != nil {
		page.WordCount = *u.WordCount
	}
	if u.ExtractionStatus != nil {
		page.ExtractionStatus = *u.ExtractionStatus
	}
	if u.Summary != nil {
		page.Summary = *u.Summary
	}
	if u.SummarizationStatus != nil {
		page.SummarizationStatus = *u.SummarizationStatus
	}
	if u.Included != nil {
		page.Included = *u.Included
	}
}

// Ptr returns a pointer to v. Handy for building updates.
func Ptr[T any](v T) *T {
	return &v
}

// CategorizedURL is one classifier assignment. Importance is nil when omitted.
type CategorizedURL struct {
	URL        string `json:"url"`
	Category   string `json:"category"`
	Importance *int   `json:"importance"`
}

// Categorization is the classifier output for a set of URLs.
type Categorization struct {
	Categories []string         `json:"categories"`
	Pages      []CategorizedURL `json:"pages"`
}

// DefaultCategorization assigns every URL to a single category with uniform importance.
func DefaultCategorization(urls []string) Categorization {
	pages := make([]CategorizedURL, 0, len(urls))
	for _, u := range urls {
		pages = append(pages, CategorizedURL{
			URL:        u,
			Category:   DefaultCategory,
			Importance: Ptr(DefaultImportance),
		})
	}
	return Categorization{Categories: []string{DefaultCategory}, Pages: pages}
}

// ExtractedPage is a best-effort content extraction result.
type ExtractedPage struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Markdown string `json:"markdown"`
}

// SiteSample feeds the site-level summary.
type SiteSample struct {
	Title    string
	Markdown string
}

// SiteSummary is the header information for generated documents.
type SiteSummary struct {
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Notes   []string `json:"notes"`
}

// Entrypoint names the pipeline operation a queue item runs.
type Entrypoint string

// Queue entrypoints.
const (
	EntrypointProcessJob         Entrypoint = "process_job"
	EntrypointContinueGeneration Entrypoint = "continue_generation"
)

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID      string
	Entrypoint Entrypoint
	Attempt    int
	Submitted  int64
}

// Artifact keys recorded in Job.ResultFiles.
const (
	ArtifactLinkIndex       = "llms_txt"
	ArtifactEmbeddedContent = "llms_ctx"
)

// ArtifactFilename maps an artifact key to its file name.
func ArtifactFilename(key string) string {
	switch key {
	case ArtifactLinkIndex:
		return "llms.txt"
	case ArtifactEmbeddedContent:
		return "llms-ctx.txt"
	default:
		return key + ".txt"
	}
}
