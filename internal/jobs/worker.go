package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handler is a function that processes a job's payload
type Handler func(ctx context.Context, payload map[string]interface{}) error

// WorkerPool manages worker goroutines that process jobs concurrently
type WorkerPool struct {
	queue      *Queue
	handlers   map[string]Handler
	handlersMu sync.RWMutex
	queueName  string
	numWorkers int
	pollDelay  time.Duration
	logger     *zap.Logger

	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewWorkerPool creates a worker pool for the given queue
func NewWorkerPool(queue *Queue, queueName string, numWorkers int, logger *zap.Logger) *WorkerPool {
	return &WorkerPool{
		queue:      queue,
		handlers:   make(map[string]Handler),
		queueName:  queueName,
		numWorkers: numWorkers,
		pollDelay:  100 * time.Millisecond,
		logger:     logger,
		stopChan:   make(chan struct{}),
	}
}

// RegisterHandler registers a job handler for a specific job type
func (p *WorkerPool) RegisterHandler(jobType string, handler Handler) {
	p.handlersMu.Lock()
	defer p.handlersMu.Unlock()
	p.handlers[jobType] = handler
}

// Start launches the workers. They run until Stop is called or the context
// is cancelled.
func (p *WorkerPool) Start(ctx context.Context) {
	p.logger.Info("starting worker pool",
		zap.String("queue", p.queueName),
		zap.Int("workers", p.numWorkers))

	for i := 0; i < p.numWorkers; i++ {
		workerID := fmt.Sprintf("worker-%s-%d", p.queueName, i)
		p.wg.Add(1)
		go p.run(ctx, workerID)
	}
}

// Stop gracefully stops all workers and waits for in-flight jobs
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
	})
	p.wg.Wait()
	p.logger.Info("worker pool stopped", zap.String("queue", p.queueName))
}

func (p *WorkerPool) run(ctx context.Context, workerID string) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, workerID, p.queueName)
		if err != nil {
			if !errors.Is(err, ErrNoJobs) && ctx.Err() == nil {
				p.logger.Warn("dequeue failed",
					zap.String("worker", workerID), zap.Error(err))
			}
			select {
			case <-p.stopChan:
				return
			case <-ctx.Done():
				return
			case <-time.After(p.pollDelay):
			}
			continue
		}

		p.process(ctx, workerID, job)
	}
}

func (p *WorkerPool) process(ctx context.Context, workerID string, job *Job) {
	start := time.Now()
	logger := p.logger.With(
		zap.String("worker", workerID),
		zap.Stringer("job_id", job.ID),
		zap.String("type", job.Type),
		zap.Int("attempt", job.Attempts),
	)

	handler := p.handler(job.Type)
	if handler == nil {
		errMsg := fmt.Sprintf("no handler registered for job type: %s", job.Type)
		logger.Error("job rejected", zap.String("reason", errMsg))
		if err := p.queue.Fail(ctx, job.ID, errMsg); err != nil {
			logger.Error("failed to mark job failed", zap.Error(err))
		}
		return
	}

	err := handler(ctx, job.Payload)
	duration := time.Since(start)

	if err == nil {
		if err := p.queue.Complete(ctx, job.ID); err != nil {
			logger.Error("failed to mark job complete", zap.Error(err))
			return
		}
		logger.Info("job completed", zap.Duration("duration", duration))
		return
	}

	logger.Warn("job failed", zap.Error(err), zap.Duration("duration", duration))

	if job.IsRetryable() {
		if retryErr := p.queue.Retry(ctx, job.ID); retryErr != nil {
			logger.Error("failed to schedule retry", zap.Error(retryErr))
			if failErr := p.queue.Fail(ctx, job.ID, err.Error()); failErr != nil {
				logger.Error("failed to mark job failed", zap.Error(failErr))
			}
		}
		return
	}

	if failErr := p.queue.Fail(ctx, job.ID, err.Error()); failErr != nil {
		logger.Error("failed to mark job failed", zap.Error(failErr))
	}
	logger.Error("job exceeded max attempts")
}

func (p *WorkerPool) handler(jobType string) Handler {
	p.handlersMu.RLock()
	defer p.handlersMu.RUnlock()
	return p.handlers[jobType]
}
