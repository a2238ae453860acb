// Package headless renders JavaScript-heavy documentation sites with headless Chrome.
package headless

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
)

// Config controls the behavior of the renderer.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// Settle is how long to wait after the body is ready for client-side rendering.
	Settle time.Duration
}

// Renderer returns fully rendered page HTML using chromedp.
type Renderer struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New creates a renderer backed by a shared Chrome allocator.
func New(cfg Config) (*Renderer, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 500 * time.Millisecond
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Renderer{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close shuts down the browser allocator.
func (r *Renderer) Close() {
	r.allocCancel()
}

// Render navigates to pageURL and returns the outer HTML of the document.
func (r *Renderer) Render(ctx context.Context, pageURL string) (string, error) {
	if err := r.acquire(ctx); err != nil {
		return "", err
	}
	defer r.release()

	taskCtx, taskCancel := chromedp.NewContext(r.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, r.cfg.NavigationTimeout)
	defer cancel()

	// Propagate caller cancellation into the browser tab.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	if err := chromedp.Run(taskCtx, r.actions(pageURL, &html)...); err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, nil
}

func (r *Renderer) actions(pageURL string, html *string) []chromedp.Action {
	actions := make([]chromedp.Action, 0, 5)
	if r.cfg.UserAgent != "" {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			if err := emulation.SetUserAgentOverride(r.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
			return nil
		}))
	}
	return append(actions,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(r.cfg.Settle),
		chromedp.OuterHTML("html", html, chromedp.ByQuery),
	)
}

func (r *Renderer) acquire(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	select {
	case r.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (r *Renderer) release() {
	if r.limiter == nil {
		return
	}
	select {
	case <-r.limiter:
	default:
	}
}
