package service

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	"github.com/observekit/api-monitor-service/clients/database"
	"github.com/observekit/api-monitor-service/queue"
)

// registerProcessors subscribes the aggregation handlers to their job
// types. The queue retry policy covers transient infrastructure
// failures; write conflict retries are handled inside the rollup
// handler with jittered backoff.
func (s *MonitorService) registerProcessors() {
	queuePolicy := queue.RetryPolicy{
		MaxAttempts:     int(s.config.QueueMaxAttempts),
		InitialInterval: s.config.QueueRetryInitialDelay,
	}

	detailPolicy := queue.RetryPolicy{
		MaxAttempts:     int(s.config.DetailMaxAttempts),
		InitialInterval: s.config.QueueRetryInitialDelay,
	}

	s.Queue.Subscribe(queue.JobTypeRecordRollup, queuePolicy, s.handleRollupJob)
	s.Queue.Subscribe(queue.JobTypeRecordDetail, detailPolicy, s.handleDetailJob)
}

// handleRollupJob applies one event to its daily rollup bucket. The
// serializable read-modify-write can collide with concurrent
// processors racing on the same bucket; on a write conflict the whole
// transaction is retried with jittered backoff to de-correlate the
// colliding processors. Exhausting the conflict retries drops the job
// so one contested bucket can never stall the queue.
func (s *MonitorService) handleRollupJob(ctx context.Context, job queue.Job) error {
	var rollup RollupJob
	if err := json.Unmarshal(job.Payload, &rollup); err != nil {
		s.Error().
			Str("jobId", job.ID).
			Err(err).
			Msg("dropping rollup job with undecodable payload")
		return nil
	}

	incr := database.DailyStatIncrement{
		Path:           rollup.Event.Path,
		Method:         rollup.Event.Method,
		StatDate:       rollup.BucketDate,
		IsError:        rollup.IsError,
		ResponseTimeMs: rollup.Event.ResponseTimeMs,
		StatusCode:     rollup.Event.StatusCode,
		ContentLength:  rollup.Event.ContentLength,
		ResponseSize:   rollup.Event.ResponseSize,
		UserAgent:      rollup.Event.UserAgent,
		IP:             rollup.Event.IP,
	}

	maxAttempts := int(s.config.RollupMaxAttempts)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := s.Database.IncrementDailyStat(ctx, incr)
		if err == nil {
			return nil
		}

		if !errors.Is(err, database.ErrWriteConflict) {
			// infrastructure failure, let the queue retry the job
			return err
		}

		s.Debug().
			Str("jobId", job.ID).
			Str("path", incr.Path).
			Str("method", incr.Method).
			Int("attempt", attempt).
			Err(err).
			Msg("daily stat write conflict")

		if attempt < maxAttempts {
			time.Sleep(conflictBackoff(s.config.RollupRetryMinBackoff, s.config.RollupRetryMaxBackoff))
		}
	}

	s.Error().
		Str("jobId", job.ID).
		Str("path", incr.Path).
		Str("method", incr.Method).
		Int("maxAttempts", maxAttempts).
		Msg("dropping rollup job after exhausting write conflict retries")

	return nil
}

// handleDetailJob appends the sampled detail record for one event.
// Pure append with no read-modify-write race, so any failure is an
// infrastructure failure left to the queue's retry policy.
func (s *MonitorService) handleDetailJob(ctx context.Context, job queue.Job) error {
	var detail DetailJob
	if err := json.Unmarshal(job.Payload, &detail); err != nil {
		s.Error().
			Str("jobId", job.ID).
			Err(err).
			Msg("dropping detail job with undecodable payload")
		return nil
	}

	record := database.RequestDetailRecord{
		Path:           detail.Event.Path,
		Method:         detail.Event.Method,
		StatusCode:     detail.Event.StatusCode,
		ResponseTimeMs: detail.Event.ResponseTimeMs,
		ContentLength:  detail.Event.ContentLength,
		ResponseSize:   detail.Event.ResponseSize,
		UserID:         detail.Event.UserID,
		UserAgent:      detail.Event.UserAgent,
		IP:             detail.Event.IP,
		ErrorMessage:   database.TruncateErrorMessage(detail.Event.ErrorMessage),
		RequestTime:    detail.Event.Time,
	}

	return s.Database.SaveRequestDetailRecord(ctx, &record)
}

// conflictBackoff returns a uniformly random delay between min and max
// so colliding processors retry at de-correlated times
func conflictBackoff(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
