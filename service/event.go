package service

import (
	"time"
)

// Event contains the telemetry captured for a single finalized
// request/response pair
type Event struct {
	Path           string    `json:"path"`
	Method         string    `json:"method"`
	StatusCode     int       `json:"status_code"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	ContentLength  *int64    `json:"content_length,omitempty"`
	ResponseSize   *int64    `json:"response_size,omitempty"`
	UserID         *string   `json:"user_id,omitempty"`
	UserAgent      *string   `json:"user_agent,omitempty"`
	IP             *string   `json:"ip,omitempty"`
	ErrorMessage   *string   `json:"error_message,omitempty"`
	Time           time.Time `json:"time"`
}

// IsError reports whether the event represents a failed request
func (e *Event) IsError() bool {
	return e.StatusCode >= 400
}

// BucketDate returns the event's daily rollup bucket date in UTC
func (e *Event) BucketDate() time.Time {
	return e.Time.UTC().Truncate(24 * time.Hour)
}

// RollupJob is the payload of a record-rollup queue job
type RollupJob struct {
	Event      Event     `json:"event"`
	IsError    bool      `json:"is_error"`
	BucketDate time.Time `json:"bucket_date"`
}

// DetailJob is the payload of a record-detail queue job
type DetailJob struct {
	Event Event `json:"event"`
}
