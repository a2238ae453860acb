// Package pipeline runs the five-phase digest state machine: discover,
// categorize, extract, summarize and generate. Progress is persisted after
// every phase so the API can report it while a job is running.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tesfandiari1/llms.txt/internal/digest"
	"github.com/tesfandiari1/llms.txt/internal/logging"
	"github.com/tesfandiari1/llms.txt/internal/metrics"
)

const tracerName = "github.com/tesfandiari1/llms.txt/internal/pipeline"

// Phase names used for spans and metrics.
const (
	PhaseDiscover   = "discover"
	PhaseCategorize = "categorize"
	PhaseExtract    = "extract"
	PhaseSummarize  = "summarize"
	PhaseGenerate   = "generate"
)

const (
	defaultMapLimit  = 500
	siteSampleLimit  = 5
	messageScanDone  = "Scan complete"
	messageExtracted = "Extraction complete"
	messageComplete  = "Complete"
)

// Config tunes the pipeline.
type Config struct {
	// MapLimit caps the number of URLs requested from the crawler. Jobs with
	// MaxPages set use the smaller of the two.
	MapLimit           int
	SummaryConcurrency int
}

// Deps are the collaborators a Pipeline drives.
type Deps struct {
	Repo       digest.Repository
	Crawler    digest.Crawler
	Classifier digest.Classifier
	Summarizer digest.PageSummarizer
	Store      digest.ArtifactStore
}

// Result reports how a Run or Resume finished.
type Result struct {
	JobID   string
	Status  digest.JobStatus
	Message string
	Err     error
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Pipeline) {
		p.tracer = tracer
	}
}

// Pipeline sequences the phases of a digest job.
type Pipeline struct {
	repo       digest.Repository
	crawler    digest.Crawler
	classifier digest.Classifier
	summarizer digest.PageSummarizer
	store      digest.ArtifactStore
	cfg        Config
	tracer     trace.Tracer
	logger     *zap.Logger
}

// New validates deps and builds a Pipeline.
func New(deps Deps, cfg Config, logger *zap.Logger, opts ...Option) (*Pipeline, error) {
	switch {
	case deps.Repo == nil:
		return nil, errors.New("pipeline: repository is required")
	case deps.Crawler == nil:
		return nil, errors.New("pipeline: crawler is required")
	case deps.Classifier == nil:
		return nil, errors.New("pipeline: classifier is required")
	case deps.Summarizer == nil:
		return nil, errors.New("pipeline: summarizer is required")
	case deps.Store == nil:
		return nil, errors.New("pipeline: artifact store is required")
	}
	if cfg.MapLimit <= 0 {
		cfg.MapLimit = defaultMapLimit
	}
	p := &Pipeline{
		repo:       deps.Repo,
		crawler:    deps.Crawler,
		classifier: deps.Classifier,
		summarizer: deps.Summarizer,
		store:      deps.Store,
		cfg:        cfg,
		tracer:     otel.Tracer(tracerName),
		logger:     logging.OrNop(logger).Named("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run executes the full pipeline for a pending job. Scan-mode jobs stop after
// categorization and jobs without auto_generate stop after extraction.
func (p *Pipeline) Run(ctx context.Context, jobID string) (Result, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(attribute.String("job.id", jobID)))
	defer span.End()

	logger := logging.ForJob(p.logger, jobID)
	job, err := p.repo.GetJob(ctx, jobID)
	if err != nil {
		span.RecordError(err)
		return Result{JobID: jobID, Err: err}, fmt.Errorf("load job: %w", err)
	}
	logger.Info("processing job", zap.String("url", job.URL), zap.String("mode", string(job.Mode)))

	res, err := p.run(ctx, job, logger)
	if err != nil {
		return p.fail(ctx, span, jobID, err, logger)
	}
	logger.Info("job finished", zap.String("message", res.Message))
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, job digest.Job, logger *zap.Logger) (Result, error) {
	if err := p.phase(ctx, PhaseDiscover, job.ID, func(ctx context.Context) error {
		return p.discover(ctx, job, logger)
	}); err != nil {
		return Result{}, err
	}
	if err := p.phase(ctx, PhaseCategorize, job.ID, func(ctx context.Context) error {
		return p.categorize(ctx, job, logger)
	}); err != nil {
		return Result{}, err
	}
	if job.Mode == digest.ModeScan {
		return p.complete(ctx, job.ID, messageScanDone)
	}

	if err := p.phase(ctx, PhaseExtract, job.ID, func(ctx context.Context) error {
		return p.extract(ctx, job, logger)
	}); err != nil {
		return Result{}, err
	}
	if !job.AutoGenerate {
		return p.complete(ctx, job.ID, messageExtracted)
	}
	return p.summarizeAndGenerate(ctx, job, logger)
}

// Resume continues a job whose pages were reviewed after a scan. The job must
// be summarizing with auto_generate disabled; otherwise ErrInvalidState is
// returned and nothing is written.
func (p *Pipeline) Resume(ctx context.Context, jobID string) (Result, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.resume", trace.WithAttributes(attribute.String("job.id", jobID)))
	defer span.End()

	logger := logging.ForJob(p.logger, jobID)
	job, err := p.repo.GetJob(ctx, jobID)
	if err != nil {
		span.RecordError(err)
		return Result{JobID: jobID, Err: err}, fmt.Errorf("load job: %w", err)
	}
	if job.Status != digest.JobStatusSummarizing || job.AutoGenerate {
		err := digest.Errorf(digest.ErrInvalidState,
			"job %s not eligible for generation: status=%s, auto_generate=%t",
			jobID, job.Status, job.AutoGenerate)
		span.RecordError(err)
		return Result{JobID: jobID, Status: job.Status, Message: err.Error(), Err: err}, err
	}
	logger.Info("resuming generation")

	res, err := p.resume(ctx, job, logger)
	if err != nil {
		return p.fail(ctx, span, jobID, err, logger)
	}
	logger.Info("generation finished")
	return res, nil
}

func (p *Pipeline) resume(ctx context.Context, job digest.Job, logger *zap.Logger) (Result, error) {
	if err := p.update(ctx, job.ID, digest.JobUpdate{
		Status:          digest.Ptr(digest.JobStatusExtracting),
		ProgressPercent: digest.Ptr(15),
		ProgressMessage: digest.Ptr("Extracting content..."),
	}); err != nil {
		return Result{}, err
	}
	if err := p.phase(ctx, PhaseExtract, job.ID, func(ctx context.Context) error {
		return p.extract(ctx, job, logger)
	}); err != nil {
		return Result{}, err
	}
	return p.summarizeAndGenerate(ctx, job, logger)
}

func (p *Pipeline) summarizeAndGenerate(ctx context.Context, job digest.Job, logger *zap.Logger) (Result, error) {
	if err := p.phase(ctx, PhaseSummarize, job.ID, func(ctx context.Context) error {
		return p.summarize(ctx, job, logger)
	}); err != nil {
		return Result{}, err
	}
	if err := p.phase(ctx, PhaseGenerate, job.ID, func(ctx context.Context) error {
		return p.generate(ctx, job.ID, logger)
	}); err != nil {
		return Result{}, err
	}
	return Result{JobID: job.ID, Status: digest.JobStatusCompleted, Message: messageComplete}, nil
}

// phase wraps one phase body in a span and records its duration.
func (p *Pipeline) phase(ctx context.Context, name, jobID string, fn func(context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, "pipeline."+name, trace.WithAttributes(
		attribute.String("job.id", jobID),
		attribute.String("pipeline.phase", name),
	))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	metrics.ObservePhase(name, err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (p *Pipeline) complete(ctx context.Context, jobID, message string) (Result, error) {
	if err := p.update(ctx, jobID, digest.JobUpdate{
		Status:          digest.Ptr(digest.JobStatusCompleted),
		ProgressPercent: digest.Ptr(100),
		ProgressMessage: digest.Ptr(message),
	}); err != nil {
		return Result{}, err
	}
	return Result{JobID: jobID, Status: digest.JobStatusCompleted, Message: message}, nil
}

// fail marks the job failed with the root error message. The write survives
// cancellation of ctx so shutdowns still leave a terminal status behind.
func (p *Pipeline) fail(ctx context.Context, span trace.Span, jobID string, err error, logger *zap.Logger) (Result, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	message := rootMessage(err)
	logger.Error("job failed", zap.Error(err))
	if uerr := p.repo.UpdateJob(context.WithoutCancel(ctx), jobID, digest.JobUpdate{
		Status:       digest.Ptr(digest.JobStatusFailed),
		ErrorMessage: digest.Ptr(message),
	}); uerr != nil {
		logger.Error("mark job failed", zap.Error(uerr))
	}
	return Result{JobID: jobID, Status: digest.JobStatusFailed, Message: message, Err: err}, err
}

// rootMessage prefers the user-facing text of a digest.Error over the phase
// prefixes added while unwinding.
func rootMessage(err error) string {
	var derr *digest.Error
	if errors.As(err, &derr) {
		return derr.Msg
	}
	return err.Error()
}

func (p *Pipeline) update(ctx context.Context, jobID string, update digest.JobUpdate) error {
	if err := p.repo.UpdateJob(ctx, jobID, update); err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}
