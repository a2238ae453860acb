// Package memory provides an in-process work queue for single-node deployments.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/tesfandiari1/llms.txt/internal/digest"
	"github.com/tesfandiari1/llms.txt/internal/queue"
)

var _ digest.Queue = (*Queue)(nil)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan digest.QueueItem
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan digest.QueueItem, capacity),
	}
}

// Enqueue pushes an item into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, item digest.QueueItem) error {
	q.closeMu.Lock()
	closed := q.closed
	q.closeMu.Unlock()
	if closed {
		return queue.ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next item, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (digest.QueueItem, error) {
	select {
	case <-ctx.Done():
		return digest.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return digest.QueueItem{}, queue.ErrClosed
		}
		return item, nil
	}
}

// Len reports the number of buffered items.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
