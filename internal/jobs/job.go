// Package jobs provides a PostgreSQL-backed background job queue with a
// worker pool. It carries the asynchronous work the RPC layer delegates,
// such as posting link-back comments to external issue trackers.
package jobs

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a job
type Status string

const (
	// StatusPending indicates the job is waiting to be processed
	StatusPending Status = "pending"
	// StatusRunning indicates the job is currently being processed
	StatusRunning Status = "running"
	// StatusCompleted indicates the job finished successfully
	StatusCompleted Status = "completed"
	// StatusFailed indicates the job failed after all retries
	StatusFailed Status = "failed"
	// StatusCancelled indicates the job was cancelled
	StatusCancelled Status = "cancelled"
)

// Priority represents the priority level of a job
type Priority int

const (
	// PriorityLow is for non-urgent background tasks
	PriorityLow Priority = 0
	// PriorityNormal is the default priority
	PriorityNormal Priority = 50
	// PriorityHigh is for important tasks
	PriorityHigh Priority = 75
)

// Job represents a background job with all its metadata
type Job struct {
	ID          uuid.UUID              `json:"id"`
	Queue       string                 `json:"queue"`
	Type        string                 `json:"type"`
	Payload     map[string]interface{} `json:"payload"`
	Status      Status                 `json:"status"`
	Priority    Priority               `json:"priority"`
	Attempts    int                    `json:"attempts"`
	MaxAttempts int                    `json:"max_attempts"`
	Error       *string                `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	RunAt       time.Time              `json:"run_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	LockedBy    *string                `json:"locked_by,omitempty"`
	LockedAt    *time.Time             `json:"locked_at,omitempty"`
}

// New creates a pending job with default values
func New(queue, jobType string, payload map[string]interface{}) *Job {
	now := time.Now()
	return &Job{
		ID:          uuid.New(),
		Queue:       queue,
		Type:        jobType,
		Payload:     payload,
		Status:      StatusPending,
		Priority:    PriorityNormal,
		MaxAttempts: 3,
		CreatedAt:   now,
		RunAt:       now,
	}
}

// IsRetryable returns true if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Attempts < j.MaxAttempts
}
