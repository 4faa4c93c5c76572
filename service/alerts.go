package service

import (
	"context"

	"github.com/observekit/api-monitor-service/clients/database"
	"github.com/observekit/api-monitor-service/logging"
)

// AlertEvaluator checks telemetry events against operator configured
// alert thresholds. Response time thresholds are evaluated per event;
// error rate thresholds need a window aggregate and are evaluated by
// the statistics read service instead.
type AlertEvaluator struct {
	db database.MonitorDatabase
	*logging.ServiceLogger
}

// AlertBreach describes one alert rule exceeded by an event
type AlertBreach struct {
	Config         database.AlertConfig
	Path           string
	Method         string
	ResponseTimeMs int64
}

// NewAlertEvaluator creates a new AlertEvaluator backed by the
// provided database
func NewAlertEvaluator(db database.MonitorDatabase, logger *logging.ServiceLogger) *AlertEvaluator {
	return &AlertEvaluator{
		db:            db,
		ServiceLogger: logger,
	}
}

// CheckAlerts evaluates every enabled alert config matching path
// (path specific rules plus global rules) against the event's response
// time, logging a warning for each exceeded threshold and returning
// the breached rules. Lookup failures are logged and swallowed so the
// ingestion hot path is never disturbed.
func (e *AlertEvaluator) CheckAlerts(ctx context.Context, path string, method string, responseTimeMs int64, isError bool) []AlertBreach {
	configs, err := e.db.ListMatchingAlertConfigs(ctx, path)
	if err != nil {
		e.Error().
			Str("path", path).
			Err(err).
			Msg("unable to load alert configs for request")
		return nil
	}

	var breaches []AlertBreach

	for _, config := range configs {
		if responseTimeMs > config.ResponseTimeThresholdMs {
			e.Warn().
				Str("path", path).
				Str("method", method).
				Int64("responseTimeMs", responseTimeMs).
				Int64("thresholdMs", config.ResponseTimeThresholdMs).
				Bool("isError", isError).
				Int64("alertConfigId", config.ID).
				Msg("api response time exceeded alert threshold")

			breaches = append(breaches, AlertBreach{
				Config:         config,
				Path:           path,
				Method:         method,
				ResponseTimeMs: responseTimeMs,
			})
		}
	}

	return breaches
}
