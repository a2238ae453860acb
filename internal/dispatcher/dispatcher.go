// Package dispatcher manages worker fan-out over the job queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/tesfandiari1/llms.txt/internal/digest"
	"github.com/tesfandiari1/llms.txt/internal/worker"
)

// Dispatcher fans out queue work to a pool of workers and accepts new work
// from the API.
type Dispatcher struct {
	queue   digest.Queue
	workers []*worker.Worker
	clock   digest.Clock
}

// New creates a Dispatcher.
func New(queue digest.Queue, workers []*worker.Worker, clock digest.Clock) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
		clock:   clock,
	}
}

// Run starts all workers and blocks until the context finishes and every
// worker has returned.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Submit enqueues the first attempt of an entrypoint for jobID.
func (d *Dispatcher) Submit(ctx context.Context, jobID string, entrypoint digest.Entrypoint) error {
	item := digest.QueueItem{JobID: jobID, Entrypoint: entrypoint, Attempt: 1}
	if d.clock != nil {
		item.Submitted = d.clock.Now().Unix()
	}
	return d.Enqueue(ctx, item)
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item digest.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
