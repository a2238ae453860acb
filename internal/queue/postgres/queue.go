// Package postgres provides a durable work queue backed by the job_queue table.
// Multiple processes may poll the same table; rows are claimed with
// FOR UPDATE SKIP LOCKED so each item is delivered once.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tesfandiari1/llms.txt/internal/digest"
)

var _ digest.Queue = (*Queue)(nil)

const claimQuery = `
DELETE FROM job_queue
WHERE id = (
	SELECT id FROM job_queue
	ORDER BY id
	FOR UPDATE SKIP LOCKED
	LIMIT 1
)
RETURNING job_id, entrypoint, attempt, submitted_at`

type execQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queue polls Postgres for work.
type Queue struct {
	db           execQuerier
	pollInterval time.Duration
}

// New creates a Queue. A non-positive interval defaults to two seconds.
func New(db execQuerier, pollInterval time.Duration) (*Queue, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Queue{db: db, pollInterval: pollInterval}, nil
}

// Enqueue inserts an item.
func (q *Queue) Enqueue(ctx context.Context, item digest.QueueItem) error {
	submitted := item.Submitted
	if submitted == 0 {
		submitted = time.Now().Unix()
	}
	_, err := q.db.Exec(ctx,
		`INSERT INTO job_queue (job_id, entrypoint, attempt, submitted_at) VALUES ($1, $2, $3, $4)`,
		item.JobID, string(item.Entrypoint), item.Attempt, submitted)
	if err != nil {
		return fmt.Errorf("insert queue item: %w", err)
	}
	return nil
}

// Dequeue claims the oldest item, polling until one arrives or ctx ends.
func (q *Queue) Dequeue(ctx context.Context) (digest.QueueItem, error) {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()
	for {
		item, ok, err := q.claim(ctx)
		if err != nil {
			return digest.QueueItem{}, err
		}
		if ok {
			return item, nil
		}
		select {
		case <-ctx.Done():
			return digest.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (q *Queue) claim(ctx context.Context) (digest.QueueItem, bool, error) {
	var (
		item       digest.QueueItem
		entrypoint string
	)
	err := q.db.QueryRow(ctx, claimQuery).Scan(&item.JobID, &entrypoint, &item.Attempt, &item.Submitted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return digest.QueueItem{}, false, nil
		}
		if ctx.Err() != nil {
			return digest.QueueItem{}, false, fmt.Errorf("dequeue canceled: %w", ctx.Err())
		}
		return digest.QueueItem{}, false, fmt.Errorf("claim queue item: %w", err)
	}
	item.Entrypoint = digest.Entrypoint(entrypoint)
	return item, true, nil
}
