package summarize

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tesfandiari1/llms.txt/internal/digest"
	"github.com/tesfandiari1/llms.txt/internal/metrics"
)

// DefaultConcurrency bounds in-flight summarization calls.
const DefaultConcurrency = 5

// BatchItem is one page to summarize.
type BatchItem struct {
	ID      string
	Title   string
	Content string
}

// BatchResult is the outcome for one BatchItem. Failed results carry an empty
// Summary.
type BatchResult struct {
	ID      string
	Summary string
	Failed  bool
	Err     error
}

// SummarizeBatch summarizes items with at most concurrency calls in flight.
// Results come back in input order; a failing item never affects siblings.
func SummarizeBatch(
	ctx context.Context,
	summarizer digest.PageSummarizer,
	items []BatchItem,
	concurrency int,
	logger *zap.Logger,
) []BatchResult {
	if len(items) == 0 {
		return []BatchResult{}
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("starting batch summarization", zap.Int("pages", len(items)))

	completed := make(chan BatchResult, len(items))
	var g errgroup.Group
	g.SetLimit(concurrency)
	for _, item := range items {
		g.Go(func() error {
			completed <- summarizeOne(ctx, summarizer, item)
			return nil
		})
	}
	_ = g.Wait() // items never return errors
	close(completed)

	position := make(map[string]int, len(items))
	for i, item := range items {
		if _, dup := position[item.ID]; !dup {
			position[item.ID] = i
		}
	}
	results := make([]BatchResult, 0, len(items))
	for res := range completed {
		results = append(results, res)
		logger.Debug("summarized page",
			zap.String("page_id", res.ID),
			zap.Int("done", len(results)),
			zap.Int("total", len(items)),
		)
	}
	slices.SortStableFunc(results, func(a, b BatchResult) int {
		return position[a.ID] - position[b.ID]
	})

	failed := 0
	for _, res := range results {
		if res.Failed {
			failed++
			if res.Err != nil && !errors.Is(res.Err, ErrTooShort) {
				logger.Warn("page summary failed", zap.String("page_id", res.ID), zap.Error(res.Err))
			}
		}
	}
	logger.Info("batch summarization complete",
		zap.Int("succeeded", len(results)-failed),
		zap.Int("failed", failed),
	)
	return results
}

func summarizeOne(ctx context.Context, summarizer digest.PageSummarizer, item BatchItem) (res BatchResult) {
	res.ID = item.ID
	defer func() {
		if r := recover(); r != nil {
			res = BatchResult{ID: item.ID, Failed: true, Err: fmt.Errorf("summarize panic: %v", r)}
		}
		if res.Failed {
			metrics.ObserveSummary("failed")
		} else {
			metrics.ObserveSummary("success")
		}
	}()

	summary, err := summarizer.SummarizePage(ctx, item.Title, item.Content)
	if err != nil || summary == "" {
		return BatchResult{ID: item.ID, Failed: true, Err: err}
	}
	return BatchResult{ID: item.ID, Summary: summary}
}
