// Package worker consumes queued digest jobs and drives them through the pipeline.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tesfandiari1/llms.txt/internal/digest"
	"github.com/tesfandiari1/llms.txt/internal/logging"
	"github.com/tesfandiari1/llms.txt/internal/metrics"
	"github.com/tesfandiari1/llms.txt/internal/pipeline"
	"github.com/tesfandiari1/llms.txt/internal/queue"
)

// Runner executes pipeline entrypoints.
type Runner interface {
	Run(ctx context.Context, jobID string) (pipeline.Result, error)
	Resume(ctx context.Context, jobID string) (pipeline.Result, error)
}

// Config controls Worker behavior.
type Config struct {
	// Topic receives one Event per finished queue item. Empty disables publishing.
	Topic string
}

// Event is the payload published when a queue item finishes.
type Event struct {
	JobID      string `json:"job_id"`
	Entrypoint string `json:"entrypoint"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	Attempt    int    `json:"attempt"`
	FinishedAt string `json:"finished_at"`
}

// Outcome labels for jobs that did not reach a job status.
const (
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

// Worker consumes queue items and executes the pipeline.
type Worker struct {
	queue     digest.Queue
	runner    Runner
	publisher digest.Publisher
	clock     digest.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. publisher may be nil.
func New(
	queue digest.Queue,
	runner Runner,
	publisher digest.Publisher,
	clock digest.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	return &Worker{
		queue:     queue,
		runner:    runner,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logging.OrNop(logger).Named("worker"),
	}
}

// Run blocks, consuming queue items until the context finishes or the queue
// is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job",
			zap.String("job_id", item.JobID),
			zap.String("entrypoint", string(item.Entrypoint)),
		)
		w.process(ctx, item)
	}
}

func (w *Worker) process(ctx context.Context, item digest.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	logger := logging.ForJob(w.logger, item.JobID)
	res, err := w.execute(ctx, item)
	outcome := outcomeLabel(res, err)
	metrics.ObserveJob(string(item.Entrypoint), outcome)

	if err != nil {
		logger.Error("job processing failed", zap.String("outcome", outcome), zap.Error(err))
	} else {
		logger.Info("job processed", zap.String("status", string(res.Status)), zap.String("message", res.Message))
	}
	w.publishResult(ctx, item, outcome, res, err, logger)
}

func (w *Worker) execute(ctx context.Context, item digest.QueueItem) (res pipeline.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
			res = pipeline.Result{JobID: item.JobID, Err: err}
		}
	}()

	switch item.Entrypoint {
	case digest.EntrypointProcessJob, "":
		return w.runner.Run(ctx, item.JobID)
	case digest.EntrypointContinueGeneration:
		return w.runner.Resume(ctx, item.JobID)
	default:
		err := fmt.Errorf("unknown entrypoint %q", item.Entrypoint)
		return pipeline.Result{JobID: item.JobID, Err: err}, err
	}
}

func outcomeLabel(res pipeline.Result, err error) string {
	switch {
	case errors.Is(err, digest.ErrInvalidState):
		return outcomeRejected
	case res.Status != "":
		return string(res.Status)
	case err != nil:
		return outcomeError
	default:
		return string(digest.JobStatusCompleted)
	}
}

func (w *Worker) publishResult(
	ctx context.Context,
	item digest.QueueItem,
	outcome string,
	res pipeline.Result,
	runErr error,
	logger *zap.Logger,
) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	evt := Event{
		JobID:      item.JobID,
		Entrypoint: string(item.Entrypoint),
		Status:     outcome,
		Message:    res.Message,
		Attempt:    item.Attempt,
		FinishedAt: w.now().Format(time.RFC3339),
	}
	if runErr != nil {
		evt.Error = runErr.Error()
	}
	// The job outcome is already persisted; a lost event must not undo it.
	id, err := w.publisher.Publish(context.WithoutCancel(ctx), w.cfg.Topic, evt)
	if err != nil {
		logger.Error("publish job event failed", zap.Error(err))
		return
	}
	logger.Info("job event published", zap.String("message_id", id), zap.String("status", outcome))
}

func (w *Worker) now() time.Time {
	if w.clock == nil {
		return time.Now().UTC()
	}
	return w.clock.Now()
}
