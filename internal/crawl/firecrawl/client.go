// Package firecrawl implements digest.Crawler on the Firecrawl v1 REST API.
package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tesfandiari1/llms.txt/internal/digest"
	"github.com/tesfandiari1/llms.txt/internal/policy/retry"
)

var _ digest.Crawler = (*Client)(nil)

const (
	defaultBaseURL      = "https://api.firecrawl.dev"
	defaultWaitForMs    = 3000
	defaultPollInterval = 2 * time.Second
	maxErrorBody        = 2048
)

// Config configures the client.
type Config struct {
	APIKey       string
	BaseURL      string
	WaitForMs    int
	PollInterval time.Duration
	Timeout      time.Duration
}

// Client talks to Firecrawl.
type Client struct {
	apiKey       string
	baseURL      string
	waitForMs    int
	pollInterval time.Duration
	http         *http.Client
	retry        *retry.Policy
	logger       *zap.Logger
}

// New creates a Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("firecrawl api key is required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	waitFor := cfg.WaitForMs
	if waitFor <= 0 {
		waitFor = defaultWaitForMs
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		apiKey:       cfg.APIKey,
		baseURL:      baseURL,
		waitForMs:    waitFor,
		pollInterval: poll,
		http:         &http.Client{Timeout: timeout},
		retry:        retry.NewPolicy(3, 500*time.Millisecond, 5*time.Second),
		logger:       logger.Named("firecrawl"),
	}, nil
}

type mapRequest struct {
	URL   string `json:"url"`
	Limit int    `json:"limit"`
}

type mapResponse struct {
	Success bool              `json:"success"`
	Links   []json.RawMessage `json:"links"`
	Error   string            `json:"error"`
}

// MapSite lists the URLs Firecrawl discovers for siteURL.
func (c *Client) MapSite(ctx context.Context, siteURL string, limit int) ([]string, error) {
	c.logger.Info("mapping site", zap.String("url", siteURL), zap.Int("limit", limit))

	var resp mapResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/v1/map", mapRequest{URL: siteURL, Limit: limit}, &resp); err != nil {
		return nil, fmt.Errorf("firecrawl map: %w", err)
	}
	if !resp.Success && resp.Error != "" {
		return nil, fmt.Errorf("firecrawl map: %s", resp.Error)
	}

	urls := make([]string, 0, len(resp.Links))
	for _, raw := range resp.Links {
		if link := decodeLink(raw); link != "" {
			urls = append(urls, link)
		}
	}
	c.logger.Info("discovered urls", zap.Int("count", len(urls)))
	return urls, nil
}

// decodeLink accepts both the plain-string and the {"url": ...} link shapes.
func decodeLink(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.URL
	}
	return ""
}

type batchRequest struct {
	URLs            []string `json:"urls"`
	Formats         []string `json:"formats"`
	OnlyMainContent bool     `json:"onlyMainContent"`
	WaitFor         int      `json:"waitFor"`
}

type batchStartResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Error   string `json:"error"`
}

type document struct {
	Markdown string `json:"markdown"`
	Metadata struct {
		SourceURL string `json:"sourceURL"`
		URL       string `json:"url"`
		Title     string `json:"title"`
	} `json:"metadata"`
}

type batchStatusResponse struct {
	Status    string     `json:"status"`
	Total     int        `json:"total"`
	Completed int        `json:"completed"`
	Data      []document `json:"data"`
	Next      string     `json:"next"`
	Error     string     `json:"error"`
}

// BatchExtract scrapes urls as markdown and polls until the batch completes.
// Result order is whatever Firecrawl returns.
func (c *Client) BatchExtract(ctx context.Context, urls []string) ([]digest.ExtractedPage, error) {
	if len(urls) == 0 {
		return []digest.ExtractedPage{}, nil
	}
	c.logger.Info("batch scraping", zap.Int("urls", len(urls)))

	var start batchStartResponse
	req := batchRequest{
		URLs:            urls,
		Formats:         []string{"markdown"},
		OnlyMainContent: true,
		WaitFor:         c.waitForMs,
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/v1/batch/scrape", req, &start); err != nil {
		return nil, fmt.Errorf("firecrawl batch scrape: %w", err)
	}
	if start.ID == "" {
		return nil, fmt.Errorf("firecrawl batch scrape: no job id returned: %s", start.Error)
	}

	status, err := c.waitForBatch(ctx, start.ID)
	if err != nil {
		return nil, err
	}
	docs, err := c.collectPages(ctx, status)
	if err != nil {
		return nil, err
	}

	out := make([]digest.ExtractedPage, 0, len(docs))
	for _, d := range docs {
		source := d.Metadata.SourceURL
		if source == "" {
			source = d.Metadata.URL
		}
		out = append(out, digest.ExtractedPage{URL: source, Title: d.Metadata.Title, Markdown: d.Markdown})
	}
	c.logger.Info("batch complete", zap.Int("completed", status.Completed), zap.Int("total", status.Total))
	return out, nil
}

func (c *Client) waitForBatch(ctx context.Context, id string) (batchStatusResponse, error) {
	statusURL := c.baseURL + "/v1/batch/scrape/" + id
	for {
		var status batchStatusResponse
		if err := c.do(ctx, http.MethodGet, statusURL, nil, &status); err != nil {
			return batchStatusResponse{}, fmt.Errorf("firecrawl batch status: %w", err)
		}
		switch status.Status {
		case "completed":
			return status, nil
		case "failed", "cancelled":
			return batchStatusResponse{}, fmt.Errorf("firecrawl batch %s %s: %s", id, status.Status, status.Error)
		}
		c.logger.Debug("batch in progress",
			zap.String("batch_id", id),
			zap.Int("completed", status.Completed),
			zap.Int("total", status.Total))

		select {
		case <-ctx.Done():
			return batchStatusResponse{}, fmt.Errorf("firecrawl batch wait canceled: %w", ctx.Err())
		case <-time.After(c.pollInterval):
		}
	}
}

// collectPages follows "next" links on large result sets.
func (c *Client) collectPages(ctx context.Context, first batchStatusResponse) ([]document, error) {
	docs := append([]document(nil), first.Data...)
	next := first.Next
	for next != "" {
		var page batchStatusResponse
		if err := c.do(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, fmt.Errorf("firecrawl batch page: %w", err)
		}
		docs = append(docs, page.Data...)
		next = page.Next
	}
	return docs, nil
}

func (c *Client) do(ctx context.Context, method, url string, in, out any) error {
	var body []byte
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = raw
	}
	return c.retry.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("send request: %w", err)
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return &retry.StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
}
