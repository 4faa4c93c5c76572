package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/observekit/api-monitor-service/clients/cache"
	"github.com/observekit/api-monitor-service/queue"
)

// recordingQueue captures enqueued jobs so middleware tests can observe
// the asynchronous dispatch path
type recordingQueue struct {
	mu       sync.Mutex
	enqueued []queue.Job
	notify   chan struct{}
}

var _ queue.Queue = (*recordingQueue)(nil)

func newRecordingQueue() *recordingQueue {
	return &recordingQueue{notify: make(chan struct{}, 100)}
}

func (q *recordingQueue) Enqueue(ctx context.Context, jobType string, payload []byte) error {
	q.mu.Lock()
	q.enqueued = append(q.enqueued, queue.Job{Type: jobType, Payload: payload})
	q.mu.Unlock()

	q.notify <- struct{}{}

	return nil
}

func (q *recordingQueue) Subscribe(jobType string, policy queue.RetryPolicy, handler queue.Handler) {
}

func (q *recordingQueue) Run() (<-chan error, error) {
	return make(chan error), nil
}

func (q *recordingQueue) Shutdown(ctx context.Context) error {
	return nil
}

func (q *recordingQueue) jobs() []queue.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs := make([]queue.Job, len(q.enqueued))
	copy(jobs, q.enqueued)

	return jobs
}

func (q *recordingQueue) waitForJobs(t *testing.T, count int, timeout time.Duration) {
	t.Helper()

	deadline := time.After(timeout)
	for i := 0; i < count; i++ {
		select {
		case <-q.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %d enqueued jobs, got %d", count, len(q.jobs()))
		}
	}
}

func newMiddlewareTestService(t *testing.T) (*MonitorService, *recordingQueue) {
	t.Helper()

	db := newFakeMonitorDatabase()
	service := newTestMonitorService(t, db)

	service.Cache = cache.NewInMemoryCache()
	service.Realtime = NewRealtimeView(service.Cache, RealtimeViewConfig{}, service.ServiceLogger)
	service.Evaluator = NewAlertEvaluator(db, service.ServiceLogger)

	recording := newRecordingQueue()
	service.Queue = recording

	return service, recording
}

func TestUnitTestMiddlewareCapturesMetricsForServedRequests(t *testing.T) {
	service, recording := newMiddlewareTestService(t)

	handler := service.RequestMetricMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	request := httptest.NewRequest(http.MethodGet, "/api/users?active=true", nil)
	request.Header.Set("User-Agent", "test-agent")
	recorder := httptest.NewRecorder()

	handler.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusTeapot, recorder.Code)

	// a 418 is an error status, so both a rollup and a detail job
	// are enqueued
	recording.waitForJobs(t, 2, time.Second)

	jobs := recording.jobs()
	require.Len(t, jobs, 2)

	jobTypes := []string{jobs[0].Type, jobs[1].Type}
	assert.Contains(t, jobTypes, queue.JobTypeRecordRollup)
	assert.Contains(t, jobTypes, queue.JobTypeRecordDetail)
}

func TestUnitTestMiddlewareSkipsMonitorNamespace(t *testing.T) {
	service, recording := newMiddlewareTestService(t)

	handler := service.RequestMetricMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	request := httptest.NewRequest(http.MethodGet, "/monitor/statistics", nil)
	recorder := httptest.NewRecorder()

	handler.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusOK, recorder.Code)

	// give any stray dispatch goroutine time to run
	time.Sleep(50 * time.Millisecond)

	assert.Empty(t, recording.jobs())
}

func TestUnitTestBuildEventCapturesRequestFields(t *testing.T) {
	request := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
	request.Header.Set("User-Agent", "test-agent")
	request.Header.Set("X-User-Id", "user-42")
	request.ContentLength = 256
	request.RemoteAddr = "203.0.113.9:51234"

	event := buildEvent(request, http.StatusBadGateway, 512, 1500*time.Millisecond)

	assert.Equal(t, "/api/orders", event.Path)
	assert.Equal(t, http.MethodPost, event.Method)
	assert.Equal(t, http.StatusBadGateway, event.StatusCode)
	assert.Equal(t, int64(1500), event.ResponseTimeMs)

	require.NotNil(t, event.ContentLength)
	assert.Equal(t, int64(256), *event.ContentLength)

	require.NotNil(t, event.ResponseSize)
	assert.Equal(t, int64(512), *event.ResponseSize)

	require.NotNil(t, event.UserAgent)
	assert.Equal(t, "test-agent", *event.UserAgent)

	require.NotNil(t, event.UserID)
	assert.Equal(t, "user-42", *event.UserID)

	require.NotNil(t, event.IP)
	assert.Equal(t, "203.0.113.9", *event.IP)

	require.NotNil(t, event.ErrorMessage)
	assert.Equal(t, http.StatusText(http.StatusBadGateway), *event.ErrorMessage)
}

func TestUnitTestBuildEventTreatsUnwrittenStatusAsOK(t *testing.T) {
	request := httptest.NewRequest(http.MethodGet, "/api/users", nil)

	// a handler that never writes leaves the response writer's status
	// at zero
	event := buildEvent(request, 0, 0, 10*time.Millisecond)

	assert.Equal(t, http.StatusOK, event.StatusCode)
	assert.False(t, event.IsError())
	assert.Nil(t, event.ErrorMessage)
}

func TestUnitTestClientIPPrefersForwardingHeaders(t *testing.T) {
	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.RemoteAddr = "10.0.0.1:9999"

	assert.Equal(t, "10.0.0.1", clientIP(request))

	request.Header.Set("X-Real-Ip", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", clientIP(request))

	request.Header.Set("X-Forwarded-For", "203.0.113.9, 198.51.100.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(request))
}

func TestUnitTestShouldRecordDetailAlwaysRecordsErrors(t *testing.T) {
	for i := 0; i < 100; i++ {
		assert.True(t, shouldRecordDetail(500, 0))
		assert.True(t, shouldRecordDetail(404, 0))
	}
}

func TestUnitTestShouldRecordDetailSamplesSuccesses(t *testing.T) {
	const trials = 10000
	const sampleRate = 0.1

	recorded := 0
	for i := 0; i < trials; i++ {
		if shouldRecordDetail(200, sampleRate) {
			recorded++
		}
	}

	observedRate := float64(recorded) / float64(trials)

	assert.InDelta(t, sampleRate, observedRate, 0.05)
}
