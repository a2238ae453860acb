package pipeline

import (
	"cmp"
	"context"
	"fmt"
	"path"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/tesfandiari1/llms.txt/internal/digest"
	"github.com/tesfandiari1/llms.txt/internal/generate"
	"github.com/tesfandiari1/llms.txt/internal/pages"
	"github.com/tesfandiari1/llms.txt/internal/summarize"
)

func (p *Pipeline) mapLimit(job digest.Job) int {
	if job.MaxPages > 0 && job.MaxPages < p.cfg.MapLimit {
		return job.MaxPages
	}
	return p.cfg.MapLimit
}

func (p *Pipeline) discover(ctx context.Context, job digest.Job, logger *zap.Logger) error {
	if err := p.update(ctx, job.ID, digest.JobUpdate{
		Status:          digest.Ptr(digest.JobStatusDiscovering),
		ProgressPercent: digest.Ptr(5),
		ProgressMessage: digest.Ptr("Discovering pages..."),
	}); err != nil {
		return err
	}

	urls, err := p.crawler.MapSite(ctx, job.URL, p.mapLimit(job))
	if err != nil {
		return fmt.Errorf("map site: %w", err)
	}
	if urls == nil {
		urls = []string{}
	}
	logger.Info("discovered urls", zap.Int("count", len(urls)))

	return p.update(ctx, job.ID, digest.JobUpdate{
		DiscoveredURLs:  urls,
		ProgressPercent: digest.Ptr(10),
	})
}

func (p *Pipeline) categorize(ctx context.Context, job digest.Job, logger *zap.Logger) error {
	if err := p.update(ctx, job.ID, digest.JobUpdate{
		Status:          digest.Ptr(digest.JobStatusCategorizing),
		ProgressPercent: digest.Ptr(10),
		ProgressMessage: digest.Ptr("Categorizing pages..."),
	}); err != nil {
		return err
	}

	current, err := p.repo.GetJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("reload job: %w", err)
	}
	if len(current.DiscoveredURLs) == 0 {
		return digest.Errorf(digest.ErrEmptyResult, "job %s: no URLs discovered", job.ID)
	}
	filtered := pages.Filter(current.DiscoveredURLs, job.URL)
	if len(filtered) == 0 {
		return digest.Errorf(digest.ErrEmptyResult, "job %s: all URLs filtered out", job.ID)
	}
	logger.Info("filtered urls",
		zap.Int("kept", len(filtered)),
		zap.Int("discovered", len(current.DiscoveredURLs)),
	)

	categorization := p.classifier.CategorizeURLs(ctx, job.URL, filtered)
	drafts := pages.Merge(categorization)
	if _, err := p.repo.CreatePages(ctx, job.ID, drafts); err != nil {
		return fmt.Errorf("create pages: %w", err)
	}

	categories := categorization.Categories
	if categories == nil {
		categories = []string{}
	}
	logger.Info("categorized pages", zap.Int("categories", len(categories)), zap.Int("pages", len(drafts)))
	return p.update(ctx, job.ID, digest.JobUpdate{
		DiscoveredCategories: categories,
		PagesTotal:           digest.Ptr(len(drafts)),
		ProgressPercent:      digest.Ptr(15),
		ProgressMessage:      digest.Ptr(fmt.Sprintf("Categorized %d pages", len(drafts))),
	})
}

func (p *Pipeline) extract(ctx context.Context, job digest.Job, logger *zap.Logger) error {
	if err := p.update(ctx, job.ID, digest.JobUpdate{
		Status:          digest.Ptr(digest.JobStatusExtracting),
		ProgressPercent: digest.Ptr(15),
		ProgressMessage: digest.Ptr("Extracting content..."),
	}); err != nil {
		return err
	}

	targets, err := p.repo.PagesForExtraction(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("list pages for extraction: %w", err)
	}
	if len(targets) == 0 {
		return digest.Errorf(digest.ErrEmptyResult, "job %s: no included pages to extract", job.ID)
	}

	urls := make([]string, 0, len(targets))
	for _, page := range targets {
		urls = append(urls, page.URL)
	}
	results, err := p.crawler.BatchExtract(ctx, urls)
	if err != nil {
		return fmt.Errorf("batch extract: %w", err)
	}
	byURL := make(map[string]digest.ExtractedPage, len(results))
	for _, res := range results {
		byURL[digest.NormalizeURL(res.URL)] = res
	}

	extracted := 0
	for _, page := range targets {
		res := byURL[digest.NormalizeURL(page.URL)]
		status := digest.StepFailed
		if res.Markdown != "" {
			status = digest.StepSuccess
			extracted++
		}
		if res.Title == "" {
			logger.Warn("page has no title after extraction", zap.String("url", page.URL))
		}
		if err := p.repo.UpdatePage(ctx, page.ID, digest.PageUpdate{
			Title:            digest.Ptr(res.Title),
			Markdown:         digest.Ptr(res.Markdown),
			WordCount:        digest.Ptr(len(strings.Fields(res.Markdown))),
			ExtractionStatus: digest.Ptr(status),
		}); err != nil {
			return fmt.Errorf("update page %s: %w", page.ID, err)
		}
	}
	if extracted == 0 {
		logger.Warn("no pages returned content", zap.Int("pages", len(targets)))
	}
	logger.Info("extracted pages", zap.Int("extracted", extracted), zap.Int("total", len(targets)))

	return p.update(ctx, job.ID, digest.JobUpdate{
		PagesProcessed:  digest.Ptr(len(targets)),
		ProgressPercent: digest.Ptr(50),
		ProgressMessage: digest.Ptr(fmt.Sprintf("Extracted %d/%d pages", extracted, len(targets))),
	})
}

func (p *Pipeline) summarize(ctx context.Context, job digest.Job, logger *zap.Logger) error {
	if err := p.update(ctx, job.ID, digest.JobUpdate{
		Status:          digest.Ptr(digest.JobStatusSummarizing),
		ProgressPercent: digest.Ptr(50),
		ProgressMessage: digest.Ptr("Summarizing pages..."),
	}); err != nil {
		return err
	}

	withContent, err := p.repo.PagesWithContent(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("list pages with content: %w", err)
	}
	if len(withContent) == 0 {
		return digest.Errorf(digest.ErrEmptyResult, "job %s: no pages with content to summarize", job.ID)
	}

	items := make([]summarize.BatchItem, 0, len(withContent))
	for _, page := range withContent {
		items = append(items, summarize.BatchItem{ID: page.ID, Title: page.Title, Content: page.Markdown})
	}
	results := summarize.SummarizeBatch(ctx, p.summarizer, items, p.cfg.SummaryConcurrency, logger)
	for _, res := range results {
		status := digest.StepSuccess
		if res.Failed || res.Summary == "" {
			status = digest.StepFailed
		}
		if err := p.repo.UpdatePage(ctx, res.ID, digest.PageUpdate{
			Summary:             digest.Ptr(res.Summary),
			SummarizationStatus: digest.Ptr(status),
		}); err != nil {
			return fmt.Errorf("update page %s: %w", res.ID, err)
		}
	}

	site := p.summarizer.GenerateSiteSummary(ctx, job.URL, topSamples(withContent, siteSampleLimit))
	logger.Info("summarized pages", zap.Int("pages", len(results)), zap.String("site_title", site.Title))

	return p.update(ctx, job.ID, digest.JobUpdate{
		SiteTitle:       digest.Ptr(site.Title),
		SiteSummary:     digest.Ptr(site.Summary),
		SiteNotes:       digest.Ptr(strings.Join(site.Notes, "\n")),
		ProgressPercent: digest.Ptr(90),
		ProgressMessage: digest.Ptr(fmt.Sprintf("Summarized %d pages", len(results))),
	})
}

// topSamples returns up to n pages ordered by descending importance. Ties
// keep repository order.
func topSamples(candidates []digest.Page, n int) []digest.SiteSample {
	sorted := slices.Clone(candidates)
	slices.SortStableFunc(sorted, func(a, b digest.Page) int {
		return cmp.Compare(b.ImportanceScore, a.ImportanceScore)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	samples := make([]digest.SiteSample, 0, len(sorted))
	for _, page := range sorted {
		samples = append(samples, digest.SiteSample{Title: page.Title, Markdown: page.Markdown})
	}
	return samples
}

func (p *Pipeline) generate(ctx context.Context, jobID string, logger *zap.Logger) error {
	if err := p.update(ctx, jobID, digest.JobUpdate{
		ProgressPercent: digest.Ptr(90),
		ProgressMessage: digest.Ptr("Generating llms.txt files..."),
	}); err != nil {
		return err
	}

	included, err := p.repo.PagesWithContent(ctx, jobID)
	if err != nil {
		return fmt.Errorf("list pages for generation: %w", err)
	}
	job, err := p.repo.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("reload job: %w", err)
	}

	files := generate.Generate(job, included).Files()
	resultFiles := make(map[string]string, len(files))
	for _, key := range []string{digest.ArtifactLinkIndex, digest.ArtifactEmbeddedContent} {
		storageKey, err := p.store.Save(ctx, path.Join(jobID, digest.ArtifactFilename(key)), files[key])
		if err != nil {
			return fmt.Errorf("save %s: %w", key, err)
		}
		resultFiles[key] = storageKey
	}
	logger.Info("generated artifacts", zap.Int("pages", len(included)), zap.Any("files", resultFiles))

	return p.update(ctx, jobID, digest.JobUpdate{
		Status:          digest.Ptr(digest.JobStatusCompleted),
		ProgressPercent: digest.Ptr(100),
		ProgressMessage: digest.Ptr(messageComplete),
		ResultFiles:     resultFiles,
	})
}
