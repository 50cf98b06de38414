package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNoJobs is returned by Dequeue when no runnable job is available
var ErrNoJobs = errors.New("no jobs available")

// Queue provides PostgreSQL-backed job queue operations.
// Dequeue relies on FOR UPDATE SKIP LOCKED, so the queue requires the
// postgres driver.
type Queue struct {
	db *sql.DB
}

// NewQueue creates a new job queue over the given database handle
func NewQueue(db *sql.DB) *Queue {
	return &Queue{db: db}
}

// Enqueue adds a new job to the queue
func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	payloadJSON, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO jobs (
			id, queue, type, payload, status, priority,
			attempts, max_attempts, created_at, run_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = q.db.ExecContext(ctx, query,
		job.ID, job.Queue, job.Type, payloadJSON, job.Status, job.Priority,
		job.Attempts, job.MaxAttempts, job.CreatedAt, job.RunAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	return nil
}

// Dequeue retrieves and locks the next available job for processing.
// Returns ErrNoJobs when the queue is empty.
func (q *Queue) Dequeue(ctx context.Context, workerID, queueName string) (*Job, error) {
	// SKIP LOCKED keeps concurrent workers from contending on the same row
	query := `
		UPDATE jobs
		SET status = $1, locked_by = $2, locked_at = $3, started_at = $4, attempts = attempts + 1
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = $5
				AND queue = $6
				AND run_at <= $7
			ORDER BY priority DESC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, queue, type, payload, status, priority, attempts, max_attempts,
		          error, created_at, run_at, started_at, completed_at, locked_by, locked_at
	`

	now := time.Now()
	var job Job
	var payloadJSON []byte

	err := q.db.QueryRowContext(ctx, query,
		StatusRunning, workerID, now, now,
		StatusPending, queueName, now,
	).Scan(
		&job.ID, &job.Queue, &job.Type, &payloadJSON, &job.Status, &job.Priority,
		&job.Attempts, &job.MaxAttempts, &job.Error, &job.CreatedAt, &job.RunAt,
		&job.StartedAt, &job.CompletedAt, &job.LockedBy, &job.LockedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoJobs
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}

	if err := json.Unmarshal(payloadJSON, &job.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	return &job, nil
}

// Complete marks a job as successfully completed
func (q *Queue) Complete(ctx context.Context, jobID uuid.UUID) error {
	query := `
		UPDATE jobs
		SET status = $1, completed_at = $2, locked_by = NULL, locked_at = NULL
		WHERE id = $3
	`
	return q.execExisting(ctx, jobID, query, StatusCompleted, time.Now(), jobID)
}

// Fail marks a job as failed with an error message
func (q *Queue) Fail(ctx context.Context, jobID uuid.UUID, errMsg string) error {
	query := `
		UPDATE jobs
		SET status = $1, error = $2, completed_at = $3, locked_by = NULL, locked_at = NULL
		WHERE id = $4
	`
	return q.execExisting(ctx, jobID, query, StatusFailed, errMsg, time.Now(), jobID)
}

// Retry reschedules a job with exponential backoff. The attempts check is
// part of the UPDATE so that concurrent state changes cannot race it.
func (q *Queue) Retry(ctx context.Context, jobID uuid.UUID) error {
	query := `
		WITH job_data AS (
			SELECT attempts, max_attempts FROM jobs WHERE id = $1
		)
		UPDATE jobs
		SET status = $2,
			run_at = $3 + (INTERVAL '1 minute' * (1 << LEAST(attempts - 1, 10))),
			locked_by = NULL,
			locked_at = NULL,
			error = NULL
		FROM job_data
		WHERE jobs.id = $1
		  AND job_data.attempts < job_data.max_attempts
		RETURNING attempts, max_attempts
	`

	var attempts, maxAttempts int
	err := q.db.QueryRowContext(ctx, query, jobID, StatusPending, time.Now()).Scan(&attempts, &maxAttempts)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("job not found or exceeded max attempts")
	}
	return err
}

// Stats holds per-queue counters
type Stats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Running   int    `json:"running"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
}

// GetStats returns counters for a queue
func (q *Queue) GetStats(ctx context.Context, queueName string) (*Stats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending') as pending,
			COUNT(*) FILTER (WHERE status = 'running') as running,
			COUNT(*) FILTER (WHERE status = 'completed') as completed,
			COUNT(*) FILTER (WHERE status = 'failed') as failed
		FROM jobs
		WHERE queue = $1
	`

	stats := Stats{Queue: queueName}
	err := q.db.QueryRowContext(ctx, query, queueName).Scan(
		&stats.Pending, &stats.Running, &stats.Completed, &stats.Failed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue stats: %w", err)
	}
	return &stats, nil
}

// PurgeCompleted removes completed jobs older than the given duration
func (q *Queue) PurgeCompleted(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result, err := q.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE status = $1 AND completed_at < $2`,
		StatusCompleted, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge jobs: %w", err)
	}
	return result.RowsAffected()
}

func (q *Queue) execExisting(ctx context.Context, jobID uuid.UUID, query string, args ...interface{}) error {
	result, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("job not found: %s", jobID)
	}
	return nil
}
