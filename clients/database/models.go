package database

import (
	"time"
)

// MaxErrorMessageLength bounds the length of error messages persisted
// with request detail records
const MaxErrorMessageLength = 2000

// DailyEndpointStat contains the aggregated request metrics for a single
// endpoint on a single day. A row is uniquely identified by
// (path, method, stat date) and is mutated in place by every event
// processed for that bucket.
type DailyEndpointStat struct {
	ID           int64
	Path         string
	Method       string
	StatDate     time.Time
	RequestCount int64
	ErrorCount   int64
	// ResponseTimeMs holds the latency of the most recently processed
	// request for the bucket, not a running average
	ResponseTimeMs int64
	ContentLength  *int64
	ResponseSize   *int64
	StatusCode     int
	UserAgent      *string
	IP             *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ErrorRate returns the percentage of requests in the bucket that
// resulted in an error, or 0 for an empty bucket
func (s *DailyEndpointStat) ErrorRate() float64 {
	if s.RequestCount == 0 {
		return 0
	}
	return float64(s.ErrorCount) / float64(s.RequestCount) * 100
}

// RequestDetailRecord contains the full details of a single sampled
// request. Records are append only and removed only by retention pruning.
type RequestDetailRecord struct {
	ID             int64
	Path           string
	Method         string
	StatusCode     int
	ResponseTimeMs int64
	ContentLength  *int64
	ResponseSize   *int64
	UserID         *string
	UserAgent      *string
	IP             *string
	ErrorMessage   *string
	RequestTime    time.Time
}

// AlertConfig is an operator managed alerting rule. A nil Path makes the
// rule apply to every endpoint.
type AlertConfig struct {
	ID                      int64
	Path                    *string
	ResponseTimeThresholdMs int64
	ErrorRateThresholdPct   float64
	Enabled                 bool
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// DailyStatIncrement carries one event's contribution to a daily rollup
// bucket. Point in time fields overwrite whatever the bucket held before.
type DailyStatIncrement struct {
	Path           string
	Method         string
	StatDate       time.Time
	IsError        bool
	ResponseTimeMs int64
	StatusCode     int
	ContentLength  *int64
	ResponseSize   *int64
	UserAgent      *string
	IP             *string
}

// StatFilters restricts and orders daily stat listings. A zero Limit
// disables pagination.
type StatFilters struct {
	StartDate         time.Time
	EndDate           time.Time
	Path              string
	Method            string
	MinResponseTimeMs int64
	OnlyErrors        bool
	UserAgent         string
	IP                string
	SortBy            string
	SortOrder         string
	Page              int
	Limit             int
}

// DetailFilters restricts request detail record listings.
type DetailFilters struct {
	StartDate         time.Time
	EndDate           time.Time
	Path              string
	Method            string
	MinResponseTimeMs int64
	OnlyErrors        bool
	UserAgent         string
	IP                string
	Paths             []string
	Page              int
	Limit             int
}

// TruncateErrorMessage bounds an error message to the persisted maximum
func TruncateErrorMessage(message *string) *string {
	if message == nil || len(*message) <= MaxErrorMessageLength {
		return message
	}
	truncated := (*message)[:MaxErrorMessageLength]
	return &truncated
}
