// Package summarize classifies URLs and writes page and site descriptions
// through an LLM, and fans page summaries out over a bounded worker pool.
package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tesfandiari1/llms.txt/internal/digest"
)

const (
	// MinContentWords is the shortest page worth an LLM call.
	MinContentWords = 20

	maxPageChars       = 8000
	maxSampleChars     = 2000
	maxSiteSamples     = 5
	pageSummaryTokens  = 100
	siteSummaryTokens  = 1500
	categorizeMaxToken = 6000
)

// ErrTooShort marks content skipped without an LLM call.
var ErrTooShort = errors.New("content too short to summarize")

// Completer sends a single-turn prompt to a model and returns its text reply.
type Completer interface {
	Complete(ctx context.Context, model string, maxTokens int, prompt string) (string, error)
}

// Config selects models and per-call timeouts.
type Config struct {
	Model             string
	AdvancedModel     string
	SummaryTimeout    time.Duration
	SiteTimeout       time.Duration
	CategorizeTimeout time.Duration
}

// Summarizer implements digest.Classifier and digest.PageSummarizer.
type Summarizer struct {
	llm    Completer
	cfg    Config
	logger *zap.Logger
}

// New constructs a Summarizer.
func New(llm Completer, cfg Config, logger *zap.Logger) *Summarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AdvancedModel == "" {
		cfg.AdvancedModel = cfg.Model
	}
	if cfg.SummaryTimeout <= 0 {
		cfg.SummaryTimeout = 30 * time.Second
	}
	if cfg.SiteTimeout <= 0 {
		cfg.SiteTimeout = 90 * time.Second
	}
	if cfg.CategorizeTimeout <= 0 {
		cfg.CategorizeTimeout = 90 * time.Second
	}
	return &Summarizer{llm: llm, cfg: cfg, logger: logger}
}

// SummarizePage returns a short description of a page. Content under
// MinContentWords yields ErrTooShort.
func (s *Summarizer) SummarizePage(ctx context.Context, title, content string) (string, error) {
	words := len(strings.Fields(content))
	if words < MinContentWords {
		s.logger.Warn("skipping summarization",
			zap.String("title", title),
			zap.Int("words", words),
		)
		return "", ErrTooShort
	}

	prompt := fmt.Sprintf(summarizePagePrompt,
		fmt.Sprintf("Title: %s\n\nContent:\n%s", title, truncate(content, maxPageChars)))

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.SummaryTimeout)
	defer cancel()
	reply, err := s.llm.Complete(callCtx, s.cfg.Model, pageSummaryTokens, prompt)
	if err != nil {
		return "", fmt.Errorf("summarize page: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

// GenerateSiteSummary derives the document header from the most important
// pages, falling back to domain defaults on any failure.
func (s *Summarizer) GenerateSiteSummary(ctx context.Context, siteURL string, top []digest.SiteSample) digest.SiteSummary {
	if len(top) > maxSiteSamples {
		top = top[:maxSiteSamples]
	}
	var samples []string
	for _, p := range top {
		if strings.TrimSpace(p.Markdown) == "" {
			continue
		}
		samples = append(samples, fmt.Sprintf("## %s\n%s", p.Title, truncate(p.Markdown, maxSampleChars)))
	}
	if len(samples) == 0 {
		s.logger.Warn("no pages with content for site summary", zap.String("site", siteURL))
		return DefaultSiteSummary(siteURL)
	}

	prompt := fmt.Sprintf(siteSummaryPrompt, siteURL, strings.Join(samples, "\n\n"))
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.SiteTimeout)
	defer cancel()
	reply, err := s.llm.Complete(callCtx, s.cfg.AdvancedModel, siteSummaryTokens, prompt)
	if err != nil {
		s.logger.Error("site summary failed", zap.String("site", siteURL), zap.Error(err))
		return DefaultSiteSummary(siteURL)
	}

	var summary digest.SiteSummary
	if err := json.Unmarshal([]byte(ExtractJSON(ExtractAnswer(reply))), &summary); err != nil {
		s.logger.Error("parse site summary", zap.String("site", siteURL), zap.Error(err))
		return DefaultSiteSummary(siteURL)
	}
	s.logger.Info("generated site summary", zap.String("site", siteURL), zap.String("title", summary.Title))
	return summary
}

// CategorizeURLs groups urls into categories with importance scores, falling
// back to digest.DefaultCategorization on any failure.
func (s *Summarizer) CategorizeURLs(ctx context.Context, siteURL string, urls []string) digest.Categorization {
	if len(urls) == 0 {
		return digest.Categorization{Categories: []string{}, Pages: []digest.CategorizedURL{}}
	}
	s.logger.Info("categorizing urls", zap.String("site", siteURL), zap.Int("count", len(urls)))

	prompt := fmt.Sprintf(categorizePrompt, siteURL, strings.Join(urls, "\n"))
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CategorizeTimeout)
	defer cancel()
	reply, err := s.llm.Complete(callCtx, s.cfg.Model, categorizeMaxToken, prompt)
	if err != nil {
		s.logger.Error("categorize urls failed", zap.Error(err))
		return digest.DefaultCategorization(urls)
	}

	var result digest.Categorization
	if err := json.Unmarshal([]byte(ExtractJSON(reply)), &result); err != nil {
		s.logger.Error("parse categorization", zap.Error(err))
		return digest.DefaultCategorization(urls)
	}
	if result.Categories == nil {
		result.Categories = []string{}
	}
	s.logger.Info("categorized urls",
		zap.Int("categories", len(result.Categories)),
		zap.Int("pages", len(result.Pages)),
	)
	return result
}

// DefaultSiteSummary is the header used when no summary can be generated.
func DefaultSiteSummary(siteURL string) digest.SiteSummary {
	domain := siteURL
	if u, err := url.Parse(siteURL); err == nil && u.Host != "" {
		domain = u.Host
	}
	return digest.SiteSummary{
		Title:   domain,
		Summary: "Documentation for " + domain,
		Notes:   []string{},
	}
}

// truncate keeps at most limit characters of s.
func truncate(s string, limit int) string {
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
