package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/tesfandiari1/llms.txt/internal/digest"
)

func TestEnqueueInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	q, err := New(mock, time.Millisecond)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO job_queue").
		WithArgs("job-1", "process_job", 0, int64(1700000000)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = q.Enqueue(context.Background(), digest.QueueItem{
		JobID:      "job-1",
		Entrypoint: digest.EntrypointProcessJob,
		Submitted:  1700000000,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDequeuePollsUntilRowAvailable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	q, err := New(mock, time.Millisecond)
	require.NoError(t, err)

	mock.ExpectQuery("DELETE FROM job_queue").WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("DELETE FROM job_queue").
		WillReturnRows(pgxmock.NewRows([]string{"job_id", "entrypoint", "attempt", "submitted_at"}).
			AddRow("job-9", "continue_generation", 1, int64(42)))

	item, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, digest.QueueItem{
		JobID:      "job-9",
		Entrypoint: digest.EntrypointContinueGeneration,
		Attempt:    1,
		Submitted:  42,
	}, item)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDequeueStopsOnCancel(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	q, err := New(mock, time.Hour)
	require.NoError(t, err)

	mock.ExpectQuery("DELETE FROM job_queue").WillReturnError(pgx.ErrNoRows)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = q.Dequeue(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDequeueSurfacesErrors(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	q, err := New(mock, time.Millisecond)
	require.NoError(t, err)

	mock.ExpectQuery("DELETE FROM job_queue").WillReturnError(errors.New("connection reset"))
	_, err = q.Dequeue(context.Background())
	require.ErrorContains(t, err, "claim queue item: connection reset")

	_, err = New(nil, 0)
	require.Error(t, err)
}
