package service

import (
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/urfave/negroni"
)

const (
	// MonitorPathPrefix is the namespace served by the monitor's own
	// read API; requests under it are never measured so that telemetry
	// about telemetry can not recurse
	MonitorPathPrefix = "/monitor"
)

// RequestMetricMiddleware wraps a handler with telemetry capture for
// every request it serves. Latency and status are read after the
// response is written and dispatched out of band of the
// request/response cycle; no side effect failure ever surfaces to the
// measured request.
func (s *MonitorService) RequestMetricMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, MonitorPathPrefix) {
			next.ServeHTTP(w, r)
			return
		}

		requestAt := time.Now()

		// set up response writer for reading the status code and size
		// of the response after it has been written
		lrw := negroni.NewResponseWriter(w)

		next.ServeHTTP(lrw, r)

		latency := time.Since(requestAt)

		event := buildEvent(r, lrw.Status(), lrw.Size(), latency)

		go s.recordEvent(event)
	})
}

// buildEvent assembles an Event from a request and its finalized
// response status, size and latency
func buildEvent(r *http.Request, status int, responseSize int, latency time.Duration) Event {
	// a handler that returns without writing a header is an implicit 200
	if status == 0 {
		status = http.StatusOK
	}

	event := Event{
		Path:           r.URL.Path,
		Method:         r.Method,
		StatusCode:     status,
		ResponseTimeMs: latency.Milliseconds(),
		Time:           time.Now().UTC(),
	}

	if r.ContentLength > 0 {
		contentLength := r.ContentLength
		event.ContentLength = &contentLength
	}

	if responseSize > 0 {
		size := int64(responseSize)
		event.ResponseSize = &size
	}

	if userAgent := r.UserAgent(); userAgent != "" {
		event.UserAgent = &userAgent
	}

	if ip := clientIP(r); ip != "" {
		event.IP = &ip
	}

	if userID := r.Header.Get("X-User-Id"); userID != "" {
		event.UserID = &userID
	}

	if status >= 400 {
		message := http.StatusText(status)
		event.ErrorMessage = &message
	}

	return event
}

// clientIP returns the originating client address, preferring
// forwarding headers set by upstream load balancers
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		// first address is the originating client
		if idx := strings.Index(forwarded, ","); idx > 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return strings.TrimSpace(forwarded)
	}

	if realIP := r.Header.Get("X-Real-Ip"); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

// shouldRecordDetail decides whether an event gets a detail record:
// always for errors, with probability sampleRate otherwise
func shouldRecordDetail(statusCode int, sampleRate float64) bool {
	if statusCode >= 400 {
		return true
	}

	return rand.Float64() < sampleRate
}
