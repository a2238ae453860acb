package api

import (
	"time"

	"github.com/tesfandiari1/llms.txt/internal/digest"
)

type jobView struct {
	ID              string            `json:"id"`
	URL             string            `json:"url"`
	Status          digest.JobStatus  `json:"status"`
	Mode            digest.Mode       `json:"mode"`
	AutoGenerate    bool              `json:"auto_generate"`
	ProgressPercent int               `json:"progress_percent"`
	ProgressMessage *string           `json:"progress_message"`
	PagesTotal      int               `json:"pages_total"`
	PagesProcessed  int               `json:"pages_processed"`
	SiteTitle       *string           `json:"site_title"`
	SiteSummary     *string           `json:"site_summary"`
	ResultFiles     map[string]string `json:"result_files"`
	ErrorMessage    *string           `json:"error_message"`
	CreatedAt       time.Time         `json:"created_at"`
}

// nullable renders empty strings as JSON null.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func newJobView(job digest.Job) jobView {
	return jobView{
		ID:              job.ID,
		URL:             job.URL,
		Status:          job.Status,
		Mode:            job.Mode,
		AutoGenerate:    job.AutoGenerate,
		ProgressPercent: job.ProgressPercent,
		ProgressMessage: nullable(job.ProgressMessage),
		PagesTotal:      job.PagesTotal,
		PagesProcessed:  job.PagesProcessed,
		SiteTitle:       nullable(job.SiteTitle),
		SiteSummary:     nullable(job.SiteSummary),
		ResultFiles:     job.ResultFiles,
		ErrorMessage:    nullable(job.ErrorMessage),
		CreatedAt:       job.CreatedAt,
	}
}

type pageView struct {
	ID              string  `json:"id"`
	URL             string  `json:"url"`
	Title           *string `json:"title"`
	Category        *string `json:"category"`
	ImportanceScore int     `json:"importance_score"`
	HasMarkdown     bool    `json:"has_markdown"`
	HasSummary      bool    `json:"has_summary"`
	Included        bool    `json:"included"`
}

type pageList struct {
	Pages         []pageView `json:"pages"`
	Total         int        `json:"total"`
	IncludedCount int        `json:"included_count"`
}

func newPageList(pages []digest.Page) pageList {
	out := pageList{Pages: make([]pageView, 0, len(pages)), Total: len(pages)}
	for _, p := range pages {
		if p.Included {
			out.IncludedCount++
		}
		out.Pages = append(out.Pages, pageView{
			ID:              p.ID,
			URL:             p.URL,
			Title:           nullable(p.Title),
			Category:        nullable(p.Category),
			ImportanceScore: p.ImportanceScore,
			HasMarkdown:     p.Markdown != "",
			HasSummary:      p.Summary != "",
			Included:        p.Included,
		})
	}
	return out
}
