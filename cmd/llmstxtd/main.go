package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/tesfandiari1/llms.txt/internal/api"
	"github.com/tesfandiari1/llms.txt/internal/clock/system"
	"github.com/tesfandiari1/llms.txt/internal/config"
	"github.com/tesfandiari1/llms.txt/internal/dispatcher"
	"github.com/tesfandiari1/llms.txt/internal/id/uuid"
	"github.com/tesfandiari1/llms.txt/internal/logging"
	"github.com/tesfandiari1/llms.txt/internal/pipeline"
	"github.com/tesfandiari1/llms.txt/internal/telemetry"
	"github.com/tesfandiari1/llms.txt/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env failed: %v\n", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("llmstxtd exited", zap.Error(err))
		stop()
		os.Exit(1) //nolint:gocritic // deferred logger sync is skipped on this path
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if cfg.Telemetry.TracingEnabled {
		tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{ServiceName: cfg.Telemetry.ServiceName})
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Warn("tracer shutdown failed", zap.Error(err))
			}
		}()
	}

	clock := system.New()
	idGen := uuid.New()

	var closers closerStack
	defer closers.closeAll()

	store, err := newArtifactStore(ctx, cfg, &closers)
	if err != nil {
		return err
	}
	repo, queue, err := newPersistence(ctx, cfg, idGen, clock, &closers, logger)
	if err != nil {
		return err
	}
	crawler, err := newCrawler(cfg, &closers, logger)
	if err != nil {
		return err
	}
	summarizer, err := newSummarizer(cfg, logger)
	if err != nil {
		return err
	}
	publisher, err := newPublisher(ctx, cfg, &closers)
	if err != nil {
		return err
	}

	pipe, err := pipeline.New(pipeline.Deps{
		Repo:       repo,
		Crawler:    crawler,
		Classifier: summarizer,
		Summarizer: summarizer,
		Store:      store,
	}, pipeline.Config{
		MapLimit:           cfg.Pipeline.MapLimit,
		SummaryConcurrency: cfg.Pipeline.SummaryConcurrency,
	}, logger)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	workers := make([]*worker.Worker, 0, cfg.Worker.Concurrency)
	for i := range cfg.Worker.Concurrency {
		workers = append(workers, worker.New(
			queue,
			pipe,
			publisher,
			clock,
			worker.Config{Topic: cfg.PubSub.TopicName},
			logger.With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, workers, clock)

	apiServer := api.NewServer(repo, dispatch, store, idGen, clock, cfg, logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		dispatch.Run(workerCtx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening",
			zap.String("addr", httpServer.Addr),
			zap.String("crawler", cfg.Crawler.Provider),
			zap.String("storage", cfg.Storage.Type),
			zap.String("queue", cfg.Worker.Queue),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err, ok := <-serverErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
	cancelWorkers()
	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		logger.Warn("workers did not stop before shutdown timeout")
	}
	return runErr
}
