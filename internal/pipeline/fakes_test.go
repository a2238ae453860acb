package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/tesfandiari1/llms.txt/internal/clock/system"
	"github.com/tesfandiari1/llms.txt/internal/digest"
	"github.com/tesfandiari1/llms.txt/internal/id/uuid"
	"github.com/tesfandiari1/llms.txt/internal/storage/memory"
)

const siteURL = "https://docs.acme.dev"

type fakeCrawler struct {
	mu         sync.Mutex
	urls       []string
	mapErr     error
	extracted  []digest.ExtractedPage
	extractErr error
	mapLimits  []int
	batches    [][]string
}

func (f *fakeCrawler) MapSite(_ context.Context, _ string, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mapLimits = append(f.mapLimits, limit)
	if f.mapErr != nil {
		return nil, f.mapErr
	}
	return f.urls, nil
}

func (f *fakeCrawler) BatchExtract(_ context.Context, urls []string) ([]digest.ExtractedPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, append([]string(nil), urls...))
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	return f.extracted, nil
}

func (f *fakeCrawler) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

type fakeClassifier struct {
	result *digest.Categorization
}

func (f fakeClassifier) CategorizeURLs(_ context.Context, _ string, urls []string) digest.Categorization {
	if f.result == nil {
		return digest.DefaultCategorization(urls)
	}
	return *f.result
}

type fakeSummarizer struct {
	mu      sync.Mutex
	calls   int
	failFor map[string]bool
	site    digest.SiteSummary
	samples []digest.SiteSample
}

func (f *fakeSummarizer) SummarizePage(_ context.Context, title, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failFor[title] {
		return "", errors.New("llm unavailable")
	}
	return "Summary of " + title, nil
}

func (f *fakeSummarizer) GenerateSiteSummary(_ context.Context, _ string, top []digest.SiteSample) digest.SiteSummary {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = top
	return f.site
}

func (f *fakeSummarizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type progress struct {
	Status  digest.JobStatus
	Percent int
	Message string
}

// recordingRepo captures every progress write on top of the in-memory repository.
type recordingRepo struct {
	*memory.Repository
	mu      sync.Mutex
	updates []progress
}

func (r *recordingRepo) UpdateJob(ctx context.Context, jobID string, update digest.JobUpdate) error {
	r.mu.Lock()
	var p progress
	if update.Status != nil {
		p.Status = *update.Status
	}
	if update.ProgressPercent != nil {
		p.Percent = *update.ProgressPercent
	}
	if update.ProgressMessage != nil {
		p.Message = *update.ProgressMessage
	}
	r.updates = append(r.updates, p)
	r.mu.Unlock()
	return r.Repository.UpdateJob(ctx, jobID, update)
}

func (r *recordingRepo) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, u := range r.updates {
		if u.Message != "" {
			out = append(out, u.Message)
		}
	}
	return out
}

func (r *recordingRepo) percents() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, u := range r.updates {
		if u.Percent != 0 {
			out = append(out, u.Percent)
		}
	}
	return out
}

type harness struct {
	repo       *recordingRepo
	store      *memory.BlobStore
	crawler    *fakeCrawler
	summarizer *fakeSummarizer
	pipeline   *Pipeline
}

func defaultCrawler() *fakeCrawler {
	return &fakeCrawler{
		urls: []string{
			siteURL + "/",
			siteURL + "/guide",
			siteURL + "/api/tokens",
			siteURL + "/login",
			"https://other.example.com/x",
		},
		extracted: []digest.ExtractedPage{
			{URL: "http://docs.acme.dev", Title: "Home", Markdown: "# Home\n\nWelcome to Acme."},
			{URL: siteURL + "/guide/", Title: "Guide", Markdown: "# Guide\n\nInstall the CLI and run it."},
		},
	}
}

func defaultCategorization() *digest.Categorization {
	return &digest.Categorization{
		Categories: []string{"Guides", "API"},
		Pages: []digest.CategorizedURL{
			{URL: siteURL + "/guide", Category: "Guides", Importance: digest.Ptr(80)},
			{URL: siteURL + "/api/tokens", Category: "API", Importance: digest.Ptr(90)},
			{URL: siteURL + "/", Category: "Guides", Importance: digest.Ptr(100)},
		},
	}
}

func newHarness(t *testing.T, crawler *fakeCrawler, opts ...Option) *harness {
	t.Helper()

	repo := &recordingRepo{Repository: memory.NewRepository(uuid.New(), system.New())}
	store := memory.NewBlobStore()
	summarizer := &fakeSummarizer{site: digest.SiteSummary{
		Title:   "Acme Docs",
		Summary: "Docs for Acme.",
		Notes:   []string{"Use the v2 API"},
	}}
	p, err := New(Deps{
		Repo:       repo,
		Crawler:    crawler,
		Classifier: fakeClassifier{result: defaultCategorization()},
		Summarizer: summarizer,
		Store:      store,
	}, Config{}, nil, opts...)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return &harness{repo: repo, store: store, crawler: crawler, summarizer: summarizer, pipeline: p}
}

func (h *harness) createJob(t *testing.T, id string, mode digest.Mode, autoGenerate bool) {
	t.Helper()
	err := h.repo.CreateJob(context.Background(), digest.Job{
		ID:           id,
		URL:          siteURL,
		Status:       digest.JobStatusPending,
		Mode:         mode,
		AutoGenerate: autoGenerate,
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
}
