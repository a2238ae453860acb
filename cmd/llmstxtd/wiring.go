package main

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/tesfandiari1/llms.txt/internal/config"
	"github.com/tesfandiari1/llms.txt/internal/crawl/firecrawl"
	"github.com/tesfandiari1/llms.txt/internal/crawl/headless"
	"github.com/tesfandiari1/llms.txt/internal/crawl/local"
	"github.com/tesfandiari1/llms.txt/internal/digest"
	"github.com/tesfandiari1/llms.txt/internal/llm/anthropic"
	"github.com/tesfandiari1/llms.txt/internal/policy/ratelimit"
	pubsubpublisher "github.com/tesfandiari1/llms.txt/internal/publisher/pubsub"
	queueMemory "github.com/tesfandiari1/llms.txt/internal/queue/memory"
	queuePostgres "github.com/tesfandiari1/llms.txt/internal/queue/postgres"
	"github.com/tesfandiari1/llms.txt/internal/storage/gcs"
	localstore "github.com/tesfandiari1/llms.txt/internal/storage/local"
	"github.com/tesfandiari1/llms.txt/internal/storage/memory"
	"github.com/tesfandiari1/llms.txt/internal/storage/postgres"
	"github.com/tesfandiari1/llms.txt/internal/summarize"
)

// closerStack runs cleanup funcs in reverse registration order.
type closerStack []func()

func (c *closerStack) push(fn func()) {
	*c = append(*c, fn)
}

func (c *closerStack) closeAll() {
	for i := len(*c) - 1; i >= 0; i-- {
		(*c)[i]()
	}
}

func newArtifactStore(ctx context.Context, cfg config.Config, closers *closerStack) (digest.ArtifactStore, error) {
	switch cfg.Storage.Type {
	case config.StorageGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		closers.push(func() { _ = client.Close() })
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket, Prefix: cfg.Storage.Prefix})
		if err != nil {
			return nil, fmt.Errorf("create gcs store: %w", err)
		}
		return store, nil
	case config.StorageMemory:
		return memory.NewBlobStore(), nil
	default:
		store, err := localstore.New(localstore.Config{BaseDir: cfg.Storage.OutputsDir})
		if err != nil {
			return nil, fmt.Errorf("create local store: %w", err)
		}
		return store, nil
	}
}

// newPersistence picks the repository and queue. Postgres serves both when a
// DSN is configured.
func newPersistence(
	ctx context.Context,
	cfg config.Config,
	ids digest.IDGenerator,
	clock digest.Clock,
	closers *closerStack,
	logger *zap.Logger,
) (digest.Repository, digest.Queue, error) {
	if cfg.DB.DSN == "" {
		logger.Warn("db.dsn not set; jobs are kept in memory")
		q := queueMemory.NewQueue(cfg.Worker.QueueDepth)
		closers.push(q.Close)
		return memory.NewRepository(ids, clock), q, nil
	}

	pool, err := postgres.NewPool(ctx, postgres.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: time.Hour,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	closers.push(pool.Close)
	if err := postgres.Migrate(ctx, pool); err != nil {
		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}
	repo, err := postgres.NewRepository(pool, ids, clock)
	if err != nil {
		return nil, nil, fmt.Errorf("create repository: %w", err)
	}

	if cfg.Worker.Queue == config.QueuePostgres {
		q, err := queuePostgres.New(pool, cfg.PollInterval())
		if err != nil {
			return nil, nil, fmt.Errorf("create postgres queue: %w", err)
		}
		return repo, q, nil
	}
	q := queueMemory.NewQueue(cfg.Worker.QueueDepth)
	closers.push(q.Close)
	return repo, q, nil
}

func newCrawler(cfg config.Config, closers *closerStack, logger *zap.Logger) (digest.Crawler, error) {
	if cfg.Crawler.Provider == config.CrawlerFirecrawl {
		client, err := firecrawl.New(firecrawl.Config{
			APIKey:    cfg.Crawler.FirecrawlAPIKey,
			BaseURL:   cfg.Crawler.FirecrawlBaseURL,
			WaitForMs: cfg.Crawler.WaitForMs,
			Timeout:   cfg.CrawlTimeout(),
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("create firecrawl client: %w", err)
		}
		return client, nil
	}

	var renderer local.Renderer
	if cfg.Crawler.RenderJS {
		r, err := headless.New(headless.Config{
			MaxParallel: 2,
			UserAgent:   cfg.Crawler.UserAgent,
		})
		if err != nil {
			logger.Warn("headless renderer init failed; client-rendered pages fall back to raw HTML", zap.Error(err))
		} else {
			closers.push(r.Close)
			renderer = r
		}
	}
	limiter := ratelimit.New(ratelimit.Config{DefaultRPS: cfg.Crawler.RequestsPerSecond, DefaultBurst: 1})
	return local.New(local.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		RespectRobots: true,
		Timeout:       cfg.CrawlTimeout(),
		MaxDepth:      3,
		Parallelism:   4,
	}, limiter, renderer, logger), nil
}

func newSummarizer(cfg config.Config, logger *zap.Logger) (*summarize.Summarizer, error) {
	limiter := ratelimit.New(ratelimit.Config{DefaultRPS: cfg.LLM.RequestsPerSecond, DefaultBurst: 1})
	client, err := anthropic.New(anthropic.Config{
		APIKey:  cfg.LLM.AnthropicAPIKey,
		BaseURL: cfg.LLM.BaseURL,
	}, limiter, logger)
	if err != nil {
		return nil, fmt.Errorf("create anthropic client: %w", err)
	}
	return summarize.New(client, summarize.Config{
		Model:          cfg.LLM.Model,
		AdvancedModel:  cfg.LLM.ModelAdvanced,
		SummaryTimeout: cfg.SummaryTimeout(),
	}, logger), nil
}

// newPublisher returns nil when no topic is configured; workers then skip
// publishing.
func newPublisher(ctx context.Context, cfg config.Config, closers *closerStack) (digest.Publisher, error) {
	if cfg.PubSub.TopicName == "" {
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	pub := pubsubpublisher.New(client, cfg.PubSub.TopicName)
	closers.push(func() {
		pub.Stop()
		_ = client.Close()
	})
	return pub, nil
}
