// Package local implements digest.Crawler without a hosted crawl service:
// sites are mapped from sitemap.xml or by following same-host links with
// colly, and pages are converted to markdown locally.
package local

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tesfandiari1/llms.txt/internal/crawl/detector"
	"github.com/tesfandiari1/llms.txt/internal/digest"
	"github.com/tesfandiari1/llms.txt/internal/metrics"
	"github.com/tesfandiari1/llms.txt/internal/policy/ratelimit"
)

var _ digest.Crawler = (*Crawler)(nil)

// Renderer returns the rendered HTML of a page after JavaScript runs.
type Renderer interface {
	Render(ctx context.Context, pageURL string) (string, error)
}

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	MaxDepth      int
	// Parallelism bounds concurrent page fetches in BatchExtract.
	Parallelism int
	// AlwaysRender sends every page through the Renderer. Otherwise only
	// pages the detector flags as client-rendered are re-fetched.
	AlwaysRender bool
}

// Crawler maps and extracts sites with colly.
type Crawler struct {
	cfg       Config
	transport http.RoundTripper
	limiter   *ratelimit.Limiter
	renderer  Renderer
	detector  *detector.Heuristic
	logger    *zap.Logger
}

// New builds a Crawler. limiter and renderer may be nil.
func New(cfg Config, limiter *ratelimit.Limiter, renderer Renderer, logger *zap.Logger) *Crawler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 3
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{
		cfg:       cfg,
		transport: newHTTPTransport(),
		limiter:   limiter,
		renderer:  renderer,
		detector:  detector.NewHeuristic(0),
		logger:    logger.Named("local_crawler"),
	}
}

// MapSite returns sitemap URLs when the site publishes a sitemap, otherwise
// the same-host links reachable from siteURL. At most limit URLs are returned.
func (c *Crawler) MapSite(ctx context.Context, siteURL string, limit int) ([]string, error) {
	seed, err := url.Parse(siteURL)
	if err != nil || seed.Host == "" {
		return nil, fmt.Errorf("invalid site url %q", siteURL)
	}
	if limit <= 0 {
		limit = 500
	}

	found := newURLSet(limit)
	found.add(seed.String())

	sitemapURL := seed.Scheme + "://" + seed.Host + "/sitemap.xml"
	if err := c.crawlSitemap(ctx, sitemapURL, found); err != nil {
		c.logger.Debug("sitemap unavailable", zap.String("url", sitemapURL), zap.Error(err))
	}
	if found.len() > 1 {
		c.logger.Info("mapped site from sitemap", zap.String("url", siteURL), zap.Int("count", found.len()))
		return found.list(), nil
	}

	if err := c.crawlLinks(ctx, seed, found); err != nil {
		return nil, err
	}
	c.logger.Info("mapped site from links", zap.String("url", siteURL), zap.Int("count", found.len()))
	return found.list(), nil
}

func (c *Crawler) crawlSitemap(ctx context.Context, sitemapURL string, found *urlSet) error {
	collector := c.newCollector(ctx)
	collector.OnXML("//sitemapindex/sitemap/loc", func(e *colly.XMLElement) {
		if !found.full() {
			_ = e.Request.Visit(strings.TrimSpace(e.Text))
		}
	})
	collector.OnXML("//urlset/url/loc", func(e *colly.XMLElement) {
		found.add(strings.TrimSpace(e.Text))
	})
	return c.run(ctx, collector, sitemapURL)
}

func (c *Crawler) crawlLinks(ctx context.Context, seed *url.URL, found *urlSet) error {
	collector := c.newCollector(ctx,
		colly.AllowedDomains(seed.Hostname()),
		colly.MaxDepth(c.cfg.MaxDepth),
	)
	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		if found.full() {
			return
		}
		link, err := url.Parse(e.Request.AbsoluteURL(e.Attr("href")))
		if err != nil || link.Hostname() != seed.Hostname() {
			return
		}
		if link.Scheme != "http" && link.Scheme != "https" {
			return
		}
		link.Fragment = ""
		if found.add(link.String()) {
			_ = e.Request.Visit(link.String())
		}
	})
	return c.run(ctx, collector, seed.String())
}

// BatchExtract fetches each URL and converts it to markdown. Pages that fail
// are logged and left out of the result.
func (c *Crawler) BatchExtract(ctx context.Context, urls []string) ([]digest.ExtractedPage, error) {
	results := make([]*digest.ExtractedPage, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Parallelism)
	for i, pageURL := range urls {
		g.Go(func() error {
			page, err := c.extract(gctx, pageURL)
			if err != nil {
				if ctx.Err() != nil {
					return fmt.Errorf("extract canceled: %w", ctx.Err())
				}
				c.logger.Warn("extract failed", zap.String("url", pageURL), zap.Error(err))
				metrics.ObserveExtraction(pageURL, "failed")
				return nil
			}
			metrics.ObserveExtraction(pageURL, "success")
			results[i] = &page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]digest.ExtractedPage, 0, len(urls))
	for _, p := range results {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (c *Crawler) extract(ctx context.Context, pageURL string) (digest.ExtractedPage, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return digest.ExtractedPage{}, fmt.Errorf("parse url: %w", err)
	}

	body, err := c.fetchHTML(ctx, pageURL)
	if err != nil {
		return digest.ExtractedPage{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return digest.ExtractedPage{}, fmt.Errorf("parse html: %w", err)
	}
	title, markdown := HTMLToMarkdown(doc, base)
	return digest.ExtractedPage{URL: pageURL, Title: title, Markdown: markdown}, nil
}

func (c *Crawler) fetchHTML(ctx context.Context, pageURL string) ([]byte, error) {
	if c.renderer != nil && c.cfg.AlwaysRender {
		return c.render(ctx, pageURL)
	}

	var (
		body     []byte
		status   int
		fetchErr error
	)
	collector := c.newCollector(ctx)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})
	if err := c.run(ctx, collector, pageURL); err != nil {
		return nil, err
	}
	if fetchErr != nil {
		return nil, fmt.Errorf("colly response failed: %w", fetchErr)
	}
	if c.renderer != nil && c.detector.ShouldRender(status, body) {
		c.logger.Debug("promoting page to headless render", zap.String("url", pageURL))
		return c.render(ctx, pageURL)
	}
	return body, nil
}

func (c *Crawler) render(ctx context.Context, pageURL string) ([]byte, error) {
	if err := c.limiter.WaitURL(ctx, pageURL); err != nil {
		return nil, err
	}
	rendered, err := c.renderer.Render(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}
	return []byte(rendered), nil
}

func (c *Crawler) newCollector(ctx context.Context, opts ...colly.CollectorOption) *colly.Collector {
	opts = append([]colly.CollectorOption{colly.StdlibContext(ctx)}, opts...)
	collector := colly.NewCollector(opts...)
	collector.WithTransport(c.transport)
	collector.IgnoreRobotsTxt = !c.cfg.RespectRobots
	collector.SetRequestTimeout(c.cfg.Timeout)
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}
	collector.OnRequest(func(r *colly.Request) {
		if err := c.limiter.WaitURL(ctx, r.URL.String()); err != nil {
			r.Abort()
		}
	})
	return collector
}

func (c *Crawler) run(ctx context.Context, collector *colly.Collector, target string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly visit canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

// urlSet is an insertion-ordered, bounded set shared by colly callbacks.
type urlSet struct {
	mu    sync.Mutex
	limit int
	seen  map[string]struct{}
	order []string
}

func newURLSet(limit int) *urlSet {
	return &urlSet{limit: limit, seen: make(map[string]struct{})}
}

func (s *urlSet) add(u string) bool {
	if u == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.order) >= s.limit {
		return false
	}
	if _, ok := s.seen[u]; ok {
		return false
	}
	s.seen[u] = struct{}{}
	s.order = append(s.order, u)
	return true
}

func (s *urlSet) full() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order) >= s.limit
}

func (s *urlSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

func (s *urlSet) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
