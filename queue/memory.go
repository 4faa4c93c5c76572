package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/observekit/api-monitor-service/logging"
)

// maxRetainedFailedJobs bounds the list of exhausted jobs kept
// for operational inspection
const maxRetainedFailedJobs = 1000

// MemoryQueueConfig wraps values used for creating a new MemoryQueue
type MemoryQueueConfig struct {
	BufferSize    int
	ConsumerCount int
	Logger        *logging.ServiceLogger
}

// MemoryQueue is an in-process channel backed Queue implementation.
// Jobs accumulate in a bounded buffer when consumers fall behind so
// producers never block; a full buffer surfaces as ErrQueueFull.
type MemoryQueue struct {
	jobs          chan Job
	subscriptions map[string]subscription
	consumerCount int
	errors        chan error

	failed   []Job
	failedMu sync.Mutex

	mu       sync.RWMutex
	shutdown chan struct{}
	wg       sync.WaitGroup

	*logging.ServiceLogger
}

var _ Queue = (*MemoryQueue)(nil)

// NewMemoryQueue creates a new MemoryQueue using the provided config
func NewMemoryQueue(config MemoryQueueConfig) *MemoryQueue {
	return &MemoryQueue{
		jobs:          make(chan Job, config.BufferSize),
		subscriptions: make(map[string]subscription),
		consumerCount: config.ConsumerCount,
		shutdown:      make(chan struct{}),
		ServiceLogger: config.Logger,
	}
}

// Enqueue adds a job to the buffer without blocking,
// returning ErrQueueFull when the buffer has no capacity
func (q *MemoryQueue) Enqueue(ctx context.Context, jobType string, payload []byte) error {
	job := Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}

	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Subscribe registers the handler and retry policy for a job type,
// replacing any previous subscription for that type
func (q *MemoryQueue) Subscribe(jobType string, policy RetryPolicy, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.subscriptions[jobType] = subscription{policy: policy, handler: handler}
}

// Run starts the configured number of consumers, returning error
// (if any) from starting and an error channel which any errors
// encountered during running will be sent on
func (q *MemoryQueue) Run() (<-chan error, error) {
	errorChannel := make(chan error, q.consumerCount)
	q.errors = errorChannel

	for i := 0; i < q.consumerCount; i++ {
		q.wg.Add(1)

		go func() {
			defer q.wg.Done()

			for {
				select {
				case job := <-q.jobs:
					q.process(job)
				case <-q.shutdown:
					// drain whatever is already buffered before exiting
					for {
						select {
						case job := <-q.jobs:
							q.process(job)
						default:
							return
						}
					}
				}
			}
		}()
	}

	return errorChannel, nil
}

// Shutdown stops the consumers after draining buffered jobs,
// honoring the provided context's deadline
func (q *MemoryQueue) Shutdown(ctx context.Context) error {
	close(q.shutdown)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FailedJobs returns a copy of the jobs that exhausted their retry
// policy, retained for operational inspection
func (q *MemoryQueue) FailedJobs() []Job {
	q.failedMu.Lock()
	defer q.failedMu.Unlock()

	failed := make([]Job, len(q.failed))
	copy(failed, q.failed)

	return failed
}

func (q *MemoryQueue) process(job Job) {
	q.mu.RLock()
	sub, ok := q.subscriptions[job.Type]
	q.mu.RUnlock()

	if !ok {
		q.Error().
			Str("jobId", job.ID).
			Str("jobType", job.Type).
			Msg("dropping job with no subscribed handler")
		return
	}

	err := runWithRetry(context.Background(), sub, job, q.ServiceLogger)
	if err != nil {
		q.Error().
			Str("jobId", job.ID).
			Str("jobType", job.Type).
			Int("maxAttempts", sub.policy.MaxAttempts).
			Err(err).
			Msg("retaining job after exhausting queue retries")

		q.retainFailed(job)

		// never block a consumer on a slow error channel reader
		select {
		case q.errors <- err:
		default:
		}
	}
}

func (q *MemoryQueue) retainFailed(job Job) {
	q.failedMu.Lock()
	defer q.failedMu.Unlock()

	q.failed = append(q.failed, job)
	if len(q.failed) > maxRetainedFailedJobs {
		q.failed = q.failed[len(q.failed)-maxRetainedFailedJobs:]
	}
}
