package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/observekit/api-monitor-service/clients/database"
)

// DailyEndpointStat is the postgres representation of a daily rollup bucket
type DailyEndpointStat struct {
	bun.BaseModel `bun:"table:daily_endpoint_stats,alias:des"`

	ID             int64     `bun:",pk,autoincrement"`
	Path           string    `bun:"path"`
	Method         string    `bun:"method"`
	StatDate       time.Time `bun:"stat_date"`
	RequestCount   int64     `bun:"request_count"`
	ErrorCount     int64     `bun:"error_count"`
	ResponseTimeMs int64     `bun:"response_time_ms"`
	ContentLength  *int64    `bun:"content_length"`
	ResponseSize   *int64    `bun:"response_size"`
	StatusCode     int       `bun:"status_code"`
	UserAgent      *string   `bun:"user_agent"`
	IP             *string   `bun:"ip"`
	CreatedAt      time.Time `bun:"created_at"`
	UpdatedAt      time.Time `bun:"updated_at"`
}

func (s *DailyEndpointStat) ToDailyEndpointStat() database.DailyEndpointStat {
	return database.DailyEndpointStat{
		ID:             s.ID,
		Path:           s.Path,
		Method:         s.Method,
		StatDate:       s.StatDate,
		RequestCount:   s.RequestCount,
		ErrorCount:     s.ErrorCount,
		ResponseTimeMs: s.ResponseTimeMs,
		ContentLength:  s.ContentLength,
		ResponseSize:   s.ResponseSize,
		StatusCode:     s.StatusCode,
		UserAgent:      s.UserAgent,
		IP:             s.IP,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

// RequestDetailRecord is the postgres representation of a sampled request
type RequestDetailRecord struct {
	bun.BaseModel `bun:"table:request_detail_records,alias:rdr"`

	ID             int64     `bun:",pk,autoincrement"`
	Path           string    `bun:"path"`
	Method         string    `bun:"method"`
	StatusCode     int       `bun:"status_code"`
	ResponseTimeMs int64     `bun:"response_time_ms"`
	ContentLength  *int64    `bun:"content_length"`
	ResponseSize   *int64    `bun:"response_size"`
	UserID         *string   `bun:"user_id"`
	UserAgent      *string   `bun:"user_agent"`
	IP             *string   `bun:"ip"`
	ErrorMessage   *string   `bun:"error_message"`
	RequestTime    time.Time `bun:"request_time"`
}

func (r *RequestDetailRecord) ToRequestDetailRecord() database.RequestDetailRecord {
	return database.RequestDetailRecord{
		ID:             r.ID,
		Path:           r.Path,
		Method:         r.Method,
		StatusCode:     r.StatusCode,
		ResponseTimeMs: r.ResponseTimeMs,
		ContentLength:  r.ContentLength,
		ResponseSize:   r.ResponseSize,
		UserID:         r.UserID,
		UserAgent:      r.UserAgent,
		IP:             r.IP,
		ErrorMessage:   r.ErrorMessage,
		RequestTime:    r.RequestTime,
	}
}

func convertRequestDetailRecord(record *database.RequestDetailRecord) *RequestDetailRecord {
	return &RequestDetailRecord{
		ID:             record.ID,
		Path:           record.Path,
		Method:         record.Method,
		StatusCode:     record.StatusCode,
		ResponseTimeMs: record.ResponseTimeMs,
		ContentLength:  record.ContentLength,
		ResponseSize:   record.ResponseSize,
		UserID:         record.UserID,
		UserAgent:      record.UserAgent,
		IP:             record.IP,
		ErrorMessage:   database.TruncateErrorMessage(record.ErrorMessage),
		RequestTime:    record.RequestTime,
	}
}

// AlertConfig is the postgres representation of an alerting rule
type AlertConfig struct {
	bun.BaseModel `bun:"table:alert_configs,alias:ac"`

	ID                      int64     `bun:",pk,autoincrement"`
	Path                    *string   `bun:"path"`
	ResponseTimeThresholdMs int64     `bun:"response_time_threshold_ms"`
	ErrorRateThresholdPct   float64   `bun:"error_rate_threshold_pct"`
	Enabled                 bool      `bun:"enabled"`
	CreatedAt               time.Time `bun:"created_at"`
	UpdatedAt               time.Time `bun:"updated_at"`
}

func (a *AlertConfig) ToAlertConfig() database.AlertConfig {
	return database.AlertConfig{
		ID:                      a.ID,
		Path:                    a.Path,
		ResponseTimeThresholdMs: a.ResponseTimeThresholdMs,
		ErrorRateThresholdPct:   a.ErrorRateThresholdPct,
		Enabled:                 a.Enabled,
		CreatedAt:               a.CreatedAt,
		UpdatedAt:               a.UpdatedAt,
	}
}

func convertAlertConfig(config *database.AlertConfig) *AlertConfig {
	return &AlertConfig{
		ID:                      config.ID,
		Path:                    config.Path,
		ResponseTimeThresholdMs: config.ResponseTimeThresholdMs,
		ErrorRateThresholdPct:   config.ErrorRateThresholdPct,
		Enabled:                 config.Enabled,
		CreatedAt:               config.CreatedAt,
		UpdatedAt:               config.UpdatedAt,
	}
}
