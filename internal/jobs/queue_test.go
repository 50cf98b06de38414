package jobs

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestQueue(t *testing.T) (*Queue, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewQueue(db), mock
}

func TestEnqueue(t *testing.T) {
	queue, mock := setupTestQueue(t)

	job := New("trackers", "tracker.post_comment", map[string]interface{}{
		"tracker_id": 1,
	})

	mock.ExpectExec(`(?s)INSERT INTO jobs`).
		WithArgs(job.ID, "trackers", "tracker.post_comment", []byte(`{"tracker_id":1}`),
			StatusPending, PriorityNormal, 0, job.MaxAttempts,
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := queue.Enqueue(context.Background(), job)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDequeue(t *testing.T) {
	queue, mock := setupTestQueue(t)

	jobID := uuid.New()
	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "queue", "type", "payload", "status", "priority", "attempts",
		"max_attempts", "error", "created_at", "run_at", "started_at",
		"completed_at", "locked_by", "locked_at",
	}).AddRow(jobID, "trackers", "tracker.post_comment", []byte(`{"issue_url":"x"}`),
		StatusRunning, PriorityNormal, 1, 3, nil, now, now, now, nil, "worker-1", now)

	mock.ExpectQuery(`(?s)UPDATE jobs.+FOR UPDATE SKIP LOCKED.+RETURNING`).
		WillReturnRows(rows)

	job, err := queue.Dequeue(context.Background(), "worker-1", "trackers")
	require.NoError(t, err)
	assert.Equal(t, jobID, job.ID)
	assert.Equal(t, "tracker.post_comment", job.Type)
	assert.Equal(t, "x", job.Payload["issue_url"])
	assert.Equal(t, StatusRunning, job.Status)
}

func TestDequeue_Empty(t *testing.T) {
	queue, mock := setupTestQueue(t)

	mock.ExpectQuery(`(?s)UPDATE jobs`).
		WillReturnError(sql.ErrNoRows)

	_, err := queue.Dequeue(context.Background(), "worker-1", "trackers")
	assert.ErrorIs(t, err, ErrNoJobs)
}

func TestComplete_NotFound(t *testing.T) {
	queue, mock := setupTestQueue(t)

	jobID := uuid.New()
	mock.ExpectExec(`(?s)UPDATE jobs`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := queue.Complete(context.Background(), jobID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job not found")
}

func TestRetry_ExceededMaxAttempts(t *testing.T) {
	queue, mock := setupTestQueue(t)

	mock.ExpectQuery(`(?s)UPDATE jobs`).
		WillReturnError(sql.ErrNoRows)

	err := queue.Retry(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max attempts")
}

func TestGetStats(t *testing.T) {
	queue, mock := setupTestQueue(t)

	mock.ExpectQuery(`(?s)SELECT.+FROM jobs.+WHERE queue = \$1`).
		WithArgs("trackers").
		WillReturnRows(sqlmock.NewRows([]string{"pending", "running", "completed", "failed"}).
			AddRow(3, 1, 10, 2))

	stats, err := queue.GetStats(context.Background(), "trackers")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Pending)
	assert.Equal(t, 1, stats.Running)
	assert.Equal(t, 10, stats.Completed)
	assert.Equal(t, 2, stats.Failed)
}

func TestJobIsRetryable(t *testing.T) {
	job := New("trackers", "tracker.post_comment", nil)
	job.Attempts = 1
	assert.True(t, job.IsRetryable())

	job.Attempts = job.MaxAttempts
	assert.False(t, job.IsRetryable())
}
