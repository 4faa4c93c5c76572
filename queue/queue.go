// package queue provides a durable job queue decoupling telemetry
// ingestion from the write contention prone durable store, with
// per job type handlers and retry policies
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/observekit/api-monitor-service/logging"
)

const (
	// JobTypeRecordRollup increments a daily endpoint rollup bucket
	JobTypeRecordRollup = "record-rollup"
	// JobTypeRecordDetail appends a sampled request detail record
	JobTypeRecordDetail = "record-detail"
)

var (
	// ErrQueueFull is returned by Enqueue when the queue can not accept
	// more jobs; ingestion callers log and drop rather than block
	ErrQueueFull = errors.New("queue buffer is full")
	// ErrUnknownJobType is returned when no handler is subscribed
	// for a job's type
	ErrUnknownJobType = errors.New("no handler subscribed for job type")
)

// Job is a unit of asynchronous work
type Job struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Payload    []byte    `json:"payload"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Handler processes a single job, returning an error to request a
// queue level retry. Handlers own any job specific retry discipline
// and must return nil for jobs they choose to drop.
type Handler func(ctx context.Context, job Job) error

// RetryPolicy controls queue level retry for transient infrastructure
// failures, distinct from any retries a handler performs internally
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
}

// Queue decouples job producers from consumers. Implementations provide
// at-least-once delivery to the subscribed handler for each job type.
type Queue interface {
	Enqueue(ctx context.Context, jobType string, payload []byte) error
	Subscribe(jobType string, policy RetryPolicy, handler Handler)
	// Run starts the queue consumers, returning error (if any) from
	// starting and an error channel which any errors encountered
	// during running will be sent on
	Run() (<-chan error, error)
	Shutdown(ctx context.Context) error
}

type subscription struct {
	policy  RetryPolicy
	handler Handler
}

// runWithRetry executes a job's handler under its subscription's retry
// policy, using exponential backoff between attempts, and returns the
// final error after the policy's attempts are exhausted
func runWithRetry(ctx context.Context, sub subscription, job Job, logger *logging.ServiceLogger) error {
	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = sub.policy.InitialInterval
	// attempt ceilings are enforced by WithMaxRetries, not elapsed time
	exponential.MaxElapsedTime = 0

	attempt := job
	operation := func() error {
		attempt.Attempts++

		err := sub.handler(ctx, attempt)
		if err != nil {
			logger.Debug().
				Str("jobId", attempt.ID).
				Str("jobType", attempt.Type).
				Int("attempt", attempt.Attempts).
				Err(err).
				Msg("job handler failed")
		}

		return err
	}

	return backoff.Retry(operation, backoff.WithMaxRetries(exponential, uint64(sub.policy.MaxAttempts-1)))
}
