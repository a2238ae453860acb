package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/tesfandiari1/llms.txt/internal/digest"
)

var _ digest.Repository = (*Repository)(nil)

const jobColumns = `id, url, status, mode, auto_generate, max_pages, progress_percent,
	COALESCE(progress_message, ''), pages_total, pages_processed,
	discovered_urls, discovered_categories,
	COALESCE(site_title, ''), COALESCE(site_summary, ''), COALESCE(site_notes, ''),
	result_files, COALESCE(error_message, ''), created_at, updated_at`

const pageColumns = `id, job_id, url, path, COALESCE(title, ''), COALESCE(category, ''),
	importance_score, COALESCE(markdown, ''), word_count, COALESCE(summary, ''),
	included, extraction_status, summarization_status, created_at`

// Repository implements digest.Repository on Postgres.
type Repository struct {
	pool  Pool
	ids   digest.IDGenerator
	clock digest.Clock
}

// NewRepository wraps an existing pool.
func NewRepository(pool Pool, ids digest.IDGenerator, clock digest.Clock) (*Repository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if ids == nil || clock == nil {
		return nil, fmt.Errorf("id generator and clock are required")
	}
	return &Repository{pool: pool, ids: ids, clock: clock}, nil
}

// Close releases the underlying pool resources.
func (r *Repository) Close() {
	if r == nil || r.pool == nil {
		return
	}
	r.pool.Close()
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// CreateJob inserts a job row.
func (r *Repository) CreateJob(ctx context.Context, job digest.Job) error {
	now := r.clock.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	urls, err := encodeJSON(job.DiscoveredURLs)
	if err != nil {
		return err
	}
	categories, err := encodeJSON(job.DiscoveredCategories)
	if err != nil {
		return err
	}
	files, err := encodeJSON(job.ResultFiles)
	if err != nil {
		return err
	}
	const query = `
INSERT INTO jobs (
	id, url, status, mode, auto_generate, max_pages, progress_percent, progress_message,
	pages_total, pages_processed, discovered_urls, discovered_categories,
	site_title, site_summary, site_notes, result_files, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`
	_, err = r.pool.Exec(ctx, query,
		job.ID,
		job.URL,
		string(job.Status),
		string(job.Mode),
		job.AutoGenerate,
		job.MaxPages,
		job.ProgressPercent,
		nullIfEmpty(job.ProgressMessage),
		job.PagesTotal,
		job.PagesProcessed,
		urls,
		categories,
		nullIfEmpty(job.SiteTitle),
		nullIfEmpty(job.SiteSummary),
		nullIfEmpty(job.SiteNotes),
		files,
		nullIfEmpty(job.ErrorMessage),
		job.CreatedAt,
		now,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob fetches a job by ID.
func (r *Repository) GetJob(ctx context.Context, jobID string) (digest.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return digest.Job{}, digest.Errorf(digest.ErrNotFound, "job %s not found", jobID)
		}
		return digest.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// UpdateJob writes the set fields of update.
func (r *Repository) UpdateJob(ctx context.Context, jobID string, update digest.JobUpdate) error {
	var set setClause
	if update.Status != nil {
		set.add("status", string(*update.Status))
	}
	if update.ProgressPercent != nil {
		set.add("progress_percent", *update.ProgressPercent)
	}
	if update.ProgressMessage != nil {
		set.add("progress_message", nullIfEmpty(*update.ProgressMessage))
	}
	if update.PagesTotal != nil {
		set.add("pages_total", *update.PagesTotal)
	}
	if update.PagesProcessed != nil {
		set.add("pages_processed", *update.PagesProcessed)
	}
	if update.DiscoveredURLs != nil {
		raw, err := encodeJSON(update.DiscoveredURLs)
		if err != nil {
			return err
		}
		set.add("discovered_urls", raw)
	}
	if update.DiscoveredCategories != nil {
		raw, err := encodeJSON(update.DiscoveredCategories)
		if err != nil {
			return err
		}
		set.add("discovered_categories", raw)
	}
	if update.SiteTitle != nil {
		set.add("site_title", nullIfEmpty(*update.SiteTitle))
	}
	if update.SiteSummary != nil {
		set.add("site_summary", nullIfEmpty(*update.SiteSummary))
	}
	if update.SiteNotes != nil {
		set.add("site_notes", nullIfEmpty(*update.SiteNotes))
	}
	if update.ResultFiles != nil {
		raw, err := encodeJSON(update.ResultFiles)
		if err != nil {
			return err
		}
		set.add("result_files", raw)
	}
	if update.ErrorMessage != nil {
		set.add("error_message", nullIfEmpty(*update.ErrorMessage))
	}
	set.add("updated_at", r.clock.Now())

	query, args := set.build("jobs", jobID)
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return digest.Errorf(digest.ErrNotFound, "job %s not found", jobID)
	}
	return nil
}

// CreatePages inserts one row per draft inside a single transaction.
func (r *Repository) CreatePages(ctx context.Context, jobID string, drafts []digest.PageDraft) ([]digest.Page, error) {
	now := r.clock.Now()
	pages := make([]digest.Page, 0, len(drafts))
	for _, draft := range drafts {
		id, err := r.ids.NewID()
		if err != nil {
			return nil, fmt.Errorf("generate page id: %w", err)
		}
		pages = append(pages, digest.Page{
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
		})
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	const query = `
INSERT INTO pages (
	id, job_id, url, path, category, importance_score, included,
	extraction_status, summarization_status, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	for _, p := range pages {
		_, err := tx.Exec(ctx, query,
			p.ID,
			p.JobID,
			p.URL,
			p.Path,
			nullIfEmpty(p.Category),
			p.ImportanceScore,
			p.Included,
			string(p.ExtractionStatus),
			string(p.SummarizationStatus),
			p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("insert page %s: %w", p.URL, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit pages: %w", err)
	}
	return pages, nil
}

// ListPages returns every page of a job in creation order.
func (r *Repository) ListPages(ctx context.Context, jobID string) ([]digest.Page, error) {
	return r.queryPages(ctx, `SELECT `+pageColumns+` FROM pages WHERE job_id = $1 ORDER BY seq`, jobID)
}

// PagesForExtraction returns included pages.
func (r *Repository) PagesForExtraction(ctx context.Context, jobID string) ([]digest.Page, error) {
	return r.queryPages(ctx,
		`SELECT `+pageColumns+` FROM pages WHERE job_id = $1 AND included ORDER BY seq`, jobID)
}

// PagesWithContent returns included pages holding markdown.
func (r *Repository) PagesWithContent(ctx context.Context, jobID string) ([]digest.Page, error) {
	return r.queryPages(ctx,
		`SELECT `+pageColumns+` FROM pages
WHERE job_id = $1 AND included AND markdown IS NOT NULL AND markdown <> '' ORDER BY seq`, jobID)
}

// UpdatePage writes the set fields of update.
func (r *Repository) UpdatePage(ctx context.Context, pageID string, update digest.PageUpdate) error {
	var set setClause
	if update.Title != nil {
		set.add("title", nullIfEmpty(*update.Title))
	}
	if update.Markdown != nil {
		set.add("markdown", nullIfEmpty(*update.Markdown))
	}
	if update.WordCount != nil {
		set.add("word_count", *update.WordCount)
	}
	if update.ExtractionStatus != nil {
		set.add("extraction_status", string(*update.ExtractionStatus))
	}
	if update.Summary != nil {
		set.add("summary", nullIfEmpty(*update.Summary))
	}
	if update.SummarizationStatus != nil {
		set.add("summarization_status", string(*update.SummarizationStatus))
	}
	if update.Included != nil {
		set.add("included", *update.Included)
	}
	if set.empty() {
		return nil
	}

	query, args := set.build("pages", pageID)
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update page: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return digest.Errorf(digest.ErrNotFound, "page %s not found", pageID)
	}
	return nil
}

// SetPagesIncluded flips Included on the listed pages of a job.
func (r *Repository) SetPagesIncluded(ctx context.Context, jobID string, pageIDs []string, included bool) (int, error) {
	if len(pageIDs) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE pages SET included = $1 WHERE job_id = $2 AND id = ANY($3)`,
		included, jobID, pageIDs)
	if err != nil {
		return 0, fmt.Errorf("set pages included: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *Repository) queryPages(ctx context.Context, query, jobID string) ([]digest.Page, error) {
	rows, err := r.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer rows.Close()

	pages := []digest.Page{}
	for rows.Next() {
		var (
			p                  digest.Page
			extraction, summar string
		)
		if err := rows.Scan(
			&p.ID,
			&p.JobID,
			&p.URL,
			&p.Path,
			&p.Title,
			&p.Category,
			&p.ImportanceScore,
			&p.Markdown,
			&p.WordCount,
			&p.Summary,
			&p.Included,
			&extraction,
			&summar,
			&p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan page row: %w", err)
		}
		p.ExtractionStatus = digest.StepStatus(extraction)
		p.SummarizationStatus = digest.StepStatus(summar)
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return pages, nil
}

func scanJob(row pgx.Row) (digest.Job, error) {
	var (
		job                      digest.Job
		status, mode             string
		urls, categories, result []byte
	)
	err := row.Scan(
		&job.ID,
		&job.URL,
		&status,
		&mode,
		&job.AutoGenerate,
		&job.MaxPages,
		&job.ProgressPercent,
		&job.ProgressMessage,
		&job.PagesTotal,
		&job.PagesProcessed,
		&urls,
		&categories,
		&job.SiteTitle,
		&job.SiteSummary,
		&job.SiteNotes,
		&result,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return digest.Job{}, err
	}
	job.Status = digest.JobStatus(status)
	job.Mode = digest.Mode(mode)
	if err := decodeJSON(urls, &job.DiscoveredURLs); err != nil {
		return digest.Job{}, err
	}
	if err := decodeJSON(categories, &job.DiscoveredCategories); err != nil {
		return digest.Job{}, err
	}
	if err := decodeJSON(result, &job.ResultFiles); err != nil {
		return digest.Job{}, err
	}
	return job, nil
}

// setClause accumulates "col = $n" assignments for a partial UPDATE.
type setClause struct {
	cols []string
	args []any
}

func (s *setClause) add(col string, value any) {
	s.args = append(s.args, value)
	s.cols = append(s.cols, fmt.Sprintf("%s = $%d", col, len(s.args)))
}

func (s *setClause) empty() bool {
	return len(s.cols) == 0
}

func (s *setClause) build(table, id string) (string, []any) {
	args := append(s.args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", table, strings.Join(s.cols, ", "), len(args))
	return query, args
}

func encodeJSON(v any) ([]byte, error) {
	switch typed := v.(type) {
	case []string:
		if typed == nil {
			return nil, nil
		}
	case map[string]string:
		if typed == nil {
			return nil, nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal json column: %w", err)
	}
	return raw, nil
}

func decodeJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("unmarshal json column: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
