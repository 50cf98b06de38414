package tracker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/caseflow/caseflow/internal/jobs"
	"github.com/caseflow/caseflow/internal/store"
)

// JobTypePostComment is the queue job type for link-back comments
const JobTypePostComment = "tracker.post_comment"

// CommentPoster schedules and executes the link-back comments posted on
// tracker issues when a defect link is attached to a test execution.
// Scheduling enqueues one background job per execution; the handler runs
// inside the worker pool.
type CommentPoster struct {
	store     *store.Store
	queue     *jobs.Queue
	queueName string
	opts      Options
	logger    *zap.Logger
}

// NewCommentPoster wires the poster to the store and job queue
func NewCommentPoster(st *store.Store, queue *jobs.Queue, queueName string, opts Options, logger *zap.Logger) *CommentPoster {
	return &CommentPoster{
		store:     st,
		queue:     queue,
		queueName: queueName,
		opts:      opts,
		logger:    logger,
	}
}

// Schedule enqueues a link-back comment job for each execution. The job
// queue dequeues with SKIP LOCKED, so scheduling is refused on drivers
// other than postgres where the jobs would never be picked up.
func (p *CommentPoster) Schedule(ctx context.Context, trackerID int64, executionIDs []int64, issueURL string) error {
	if p.store.Driver() != "postgres" {
		return fmt.Errorf("tracker comment jobs require the postgres job queue, store driver is %s", p.store.Driver())
	}
	for _, executionID := range executionIDs {
		job := jobs.New(p.queueName, JobTypePostComment, map[string]interface{}{
			"tracker_id":   trackerID,
			"execution_id": executionID,
			"issue_url":    issueURL,
		})
		if err := p.queue.Enqueue(ctx, job); err != nil {
			return fmt.Errorf("failed to schedule comment for execution %d: %w", executionID, err)
		}
		p.logger.Info("scheduled link-back comment",
			zap.Int64("tracker_id", trackerID),
			zap.Int64("execution_id", executionID),
			zap.String("issue_url", issueURL))
	}
	return nil
}

// Handle is the worker-pool handler for JobTypePostComment
func (p *CommentPoster) Handle(ctx context.Context, payload map[string]interface{}) error {
	trackerID, err := payloadInt64(payload, "tracker_id")
	if err != nil {
		return err
	}
	executionID, err := payloadInt64(payload, "execution_id")
	if err != nil {
		return err
	}
	issueURL, ok := payload["issue_url"].(string)
	if !ok || issueURL == "" {
		return fmt.Errorf("payload field issue_url missing")
	}

	trk, err := p.store.GetTracker(ctx, trackerID)
	if err != nil {
		return fmt.Errorf("tracker %d: %w", trackerID, err)
	}

	adapter, err := New(trk, p.opts)
	if err != nil {
		return err
	}
	if adapter.LinkCommentDisabled() {
		return fmt.Errorf("%s: tracker %q is missing comment credentials", adapter.Name(), trk.Name)
	}

	execution, err := p.store.GetExecutionDetail(ctx, executionID)
	if err != nil {
		return fmt.Errorf("execution %d: %w", executionID, err)
	}

	comment := linkComment(execution, p.opts.executionURL(execution.ID))
	if err := adapter.PostComment(ctx, issueURL, comment); err != nil {
		return err
	}

	p.logger.Info("posted link-back comment",
		zap.String("tracker", trk.Name),
		zap.Int64("execution_id", executionID),
		zap.String("issue_url", issueURL))
	return nil
}

// payloadInt64 reads a numeric payload field. JSON round-tripping turns
// int64 values into float64.
func payloadInt64(payload map[string]interface{}, key string) (int64, error) {
	switch v := payload[key].(type) {
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("payload field %s missing or not numeric", key)
	}
}
