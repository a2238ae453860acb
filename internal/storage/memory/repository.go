package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/tesfandiari1/llms.txt/internal/digest"
)

var _ digest.Repository = (*Repository)(nil)

// Repository provides an in-memory digest.Repository. Reads return copies.
type Repository struct {
	mu        sync.RWMutex
	ids       digest.IDGenerator
	clock     digest.Clock
	jobs      map[string]digest.Job
	pages     map[string]digest.Page
	pageOrder map[string][]string // job ID -> page IDs in creation order
}

// NewRepository constructs a Repository.
func NewRepository(ids digest.IDGenerator, clock digest.Clock) *Repository {
	return &Repository{
		ids:       ids,
		clock:     clock,
		jobs:      make(map[string]digest.Job),
		pages:     make(map[string]digest.Page),
		pageOrder: make(map[string][]string),
	}
}

// CreateJob stores a new job.
func (r *Repository) CreateJob(_ context.Context, job digest.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	now := r.clock.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	r.jobs[job.ID] = cloneJob(job)
	return nil
}

// GetJob fetches a job by ID.
func (r *Repository) GetJob(_ context.Context, jobID string) (digest.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return digest.Job{}, digest.Errorf(digest.ErrNotFound, "job %s not found", jobID)
	}
	return cloneJob(job), nil
}

// UpdateJob applies a partial update.
func (r *Repository) UpdateJob(_ context.Context, jobID string, update digest.JobUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return digest.Errorf(digest.ErrNotFound, "job %s not found", jobID)
	}
	update.Apply(&job)
	job.UpdatedAt = r.clock.Now()
	r.jobs[jobID] = job
	return nil
}

// CreatePages inserts one page per draft, preserving draft order.
func (r *Repository) CreatePages(_ context.Context, jobID string, drafts []digest.PageDraft) ([]digest.Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[jobID]; !ok {
		return nil, digest.Errorf(digest.ErrNotFound, "job %s not found", jobID)
	}
	now := r.clock.Now()
	created := make([]digest.Page, 0, len(drafts))
	for _, draft := range drafts {
		id, err := r.ids.NewID()
		if err != nil {
			return nil, fmt.Errorf("generate page id: %w", err)
		}
		page := digest.Page{
			ID:                  id,
			JobID:               jobID,
			URL:                 draft.URL,
			Path:                draft.Path,
			Category:            draft.Category,
			ImportanceScore:     draft.ImportanceScore,
			Included:            draft.Included,
			ExtractionStatus:    digest.StepPending,
			SummarizationStatus: digest.StepPending,
			CreatedAt:           now,
		}
		r.pages[id] = page
		r.pageOrder[jobID] = append(r.pageOrder[jobID], id)
		created = append(created, page)
	}
	return created, nil
}

// ListPages returns every page of a job in creation order.
func (r *Repository) ListPages(_ context.Context, jobID string) ([]digest.Page, error) {
	return r.selectPages(jobID, func(digest.Page) bool { return true }), nil
}

// PagesForExtraction returns included pages.
func (r *Repository) PagesForExtraction(_ context.Context, jobID string) ([]digest.Page, error) {
	return r.selectPages(jobID, func(p digest.Page) bool { return p.Included }), nil
}

// PagesWithContent returns included pages holding markdown.
func (r *Repository) PagesWithContent(_ context.Context, jobID string) ([]digest.Page, error) {
	return r.selectPages(jobID, func(p digest.Page) bool { return p.Included && p.Markdown != "" }), nil
}

// UpdatePage applies a partial update to one page.
func (r *Repository) UpdatePage(_ context.Context, pageID string, update digest.PageUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	page, ok := r.pages[pageID]
	if !ok {
		return digest.Errorf(digest.ErrNotFound, "page %s not found", pageID)
	}
	update.Apply(&page)
	r.pages[pageID] = page
	return nil
}

// SetPagesIncluded flips Included on the listed pages of a job and returns
// how many matched. IDs belonging to other jobs are ignored.
func (r *Repository) SetPagesIncluded(_ context.Context, jobID string, pageIDs []string, included bool) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	updated := 0
	for _, id := range pageIDs {
		page, ok := r.pages[id]
		if !ok || page.JobID != jobID {
			continue
		}
		page.Included = included
		r.pages[id] = page
		updated++
	}
	return updated, nil
}

// Ping always succeeds.
func (r *Repository) Ping(context.Context) error {
	return nil
}

func (r *Repository) selectPages(jobID string, keep func(digest.Page) bool) []digest.Page {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]digest.Page, 0, len(r.pageOrder[jobID]))
	for _, id := range r.pageOrder[jobID] {
		if page := r.pages[id]; keep(page) {
			out = append(out, page)
		}
	}
	return out
}

func cloneJob(job digest.Job) digest.Job {
	job.DiscoveredURLs = slices.Clone(job.DiscoveredURLs)
	job.DiscoveredCategories = slices.Clone(job.DiscoveredCategories)
	job.ResultFiles = maps.Clone(job.ResultFiles)
	return job
}
