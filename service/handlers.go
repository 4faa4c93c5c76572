package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/observekit/api-monitor-service/clients/database"
)

const dateParamLayout = "2006-01-02"

// ErrorResponse is the json body returned for failed API requests
type ErrorResponse struct {
	Error string `json:"error"`
}

// MonitorDataResponse is the paginated daily stat listing response
type MonitorDataResponse struct {
	Data  []database.DailyEndpointStat `json:"data"`
	Total int                          `json:"total"`
	Page  int                          `json:"page"`
	Limit int                          `json:"limit"`
}

// RealtimeSnapshot is the realtime read service response
type RealtimeSnapshot struct {
	RecentCalls        []Event          `json:"recent_calls"`
	SlowestApis        []SlowCall       `json:"slowest_apis"`
	StatusDistribution map[string]int64 `json:"status_distribution"`
	CallTrend          []TrendPoint     `json:"call_trend"`
	PathCounts         []PathCount      `json:"path_counts"`
}

// AlertConfigRequest is the alert config create/update request body
type AlertConfigRequest struct {
	ID                    int64   `json:"id,omitempty"`
	Path                  *string `json:"path,omitempty"`
	ResponseTimeThreshold int64   `json:"responseTimeThreshold"`
	ErrorRateThreshold    float64 `json:"errorRateThreshold"`
	Enabled               *bool   `json:"enabled,omitempty"`
}

// createMonitorDataHandler creates a handler function responding to
// requests for filtered, sorted and paginated daily stat listings
func createMonitorDataHandler(service *MonitorService) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		service.Debug().Msg("/monitor/data called")

		filters := service.parseStatFilters(r)

		stats, total, err := service.Database.ListDailyStats(r.Context(), filters)
		if err != nil {
			service.Error().Err(err).Msg("error listing daily stats")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		response := MonitorDataResponse{
			Data:  stats,
			Total: total,
			Page:  filters.Page,
			Limit: filters.Limit,
		}

		if err := MarshalJSONResponse(&response, w); err != nil {
			service.Error().Msg(fmt.Sprintf("error %s encoding %+v to json", err, response))
		}
	}
}

// createStatisticsHandler creates a handler function responding to
// requests for the statistics summary over a day window
func createStatisticsHandler(service *MonitorService) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		service.Debug().Msg("/monitor/statistics called")

		days := parseIntParam(r, "days", 0)

		summary, err := service.GetStatistics(r.Context(), days)
		if err != nil {
			service.Error().Err(err).Msg("error computing statistics summary")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		if err := MarshalJSONResponse(&summary, w); err != nil {
			service.Error().Msg(fmt.Sprintf("error %s encoding %+v to json", err, summary))
		}
	}
}

// createPerformanceHandler creates a handler function responding to
// requests for the performance trend over a day window
func createPerformanceHandler(service *MonitorService) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		service.Debug().Msg("/monitor/performance called")

		query := PerformanceQuery{
			Days:     parseIntParam(r, "days", 0),
			Format:   r.URL.Query().Get("format"),
			Detailed: parseBoolParam(r, "detailed"),
		}

		if paths := r.URL.Query().Get("paths"); paths != "" {
			for _, path := range strings.Split(paths, ",") {
				if trimmed := strings.TrimSpace(path); trimmed != "" {
					query.Paths = append(query.Paths, trimmed)
				}
			}
		}

		trend, err := service.GetPerformanceTrend(r.Context(), query)
		if err != nil {
			service.Error().Err(err).Msg("error computing performance trend")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		if err := MarshalJSONResponse(&trend, w); err != nil {
			service.Error().Msg(fmt.Sprintf("error %s encoding %+v to json", err, trend))
		}
	}
}

// createRealtimeHandler creates a handler function responding with a
// memoized snapshot of the realtime traffic view. Any unavailable
// structure degrades to its empty value rather than failing the
// dashboard request.
func createRealtimeHandler(service *MonitorService) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		service.Debug().Msg("/monitor/realtime called")

		snapshot := service.realtimeSnapshot(r.Context())

		if err := MarshalJSONResponse(&snapshot, w); err != nil {
			service.Error().Msg(fmt.Sprintf("error %s encoding %+v to json", err, snapshot))
		}
	}
}

func (s *MonitorService) realtimeSnapshot(ctx context.Context) RealtimeSnapshot {
	cacheKey, keyErr := QueryCacheKey(CacheNamespaceRealtime, "snapshot")
	if keyErr == nil {
		var cached RealtimeSnapshot
		if s.getCachedQueryResult(ctx, cacheKey, &cached) {
			return cached
		}
	}

	snapshot := RealtimeSnapshot{
		RecentCalls:        []Event{},
		SlowestApis:        []SlowCall{},
		StatusDistribution: map[string]int64{},
		CallTrend:          []TrendPoint{},
		PathCounts:         []PathCount{},
	}

	if recentCalls, err := s.Realtime.GetRecentCalls(ctx, RecentCallsCap); err != nil {
		s.Debug().Err(err).Msg("recent calls unavailable for realtime snapshot")
	} else {
		snapshot.RecentCalls = recentCalls
	}

	if slowestApis, err := s.Realtime.GetSlowestApis(ctx, SlowestApisCap); err != nil {
		s.Debug().Err(err).Msg("slowest apis unavailable for realtime snapshot")
	} else {
		snapshot.SlowestApis = slowestApis
	}

	if distribution, err := s.Realtime.GetStatusDistribution(ctx); err != nil {
		s.Debug().Err(err).Msg("status distribution unavailable for realtime snapshot")
	} else {
		snapshot.StatusDistribution = distribution
	}

	if trend, err := s.Realtime.GetCallTrend(ctx); err != nil {
		s.Debug().Err(err).Msg("call trend unavailable for realtime snapshot")
	} else {
		snapshot.CallTrend = trend
	}

	if pathCounts, err := s.Realtime.GetPathCounts(ctx); err != nil {
		s.Debug().Err(err).Msg("path counts unavailable for realtime snapshot")
	} else {
		snapshot.PathCounts = pathCounts
	}

	if keyErr == nil {
		s.setCachedQueryResult(ctx, cacheKey, snapshot, s.config.RealtimeCacheTTL)
	}

	return snapshot
}

// createAlertConfigsHandler creates a handler function for alert
// config management: list, create, update and delete
func createAlertConfigsHandler(service *MonitorService) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		service.Debug().Msg(fmt.Sprintf("/monitor/alerts called with method %s", r.Method))

		switch r.Method {
		case http.MethodGet:
			configs, err := service.Database.ListAlertConfigs(r.Context())
			if err != nil {
				service.Error().Err(err).Msg("error listing alert configs")
				w.WriteHeader(http.StatusInternalServerError)
				return
			}

			if err := MarshalJSONResponse(&configs, w); err != nil {
				service.Error().Msg(fmt.Sprintf("error %s encoding %+v to json", err, configs))
			}

		case http.MethodPost:
			service.createAlertConfig(w, r)

		case http.MethodPut:
			service.updateAlertConfig(w, r)

		case http.MethodDelete:
			service.deleteAlertConfig(w, r)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

func (s *MonitorService) createAlertConfig(w http.ResponseWriter, r *http.Request) {
	var request AlertConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid alert config request body")
		return
	}

	if message := validateAlertConfigRequest(request); message != "" {
		writeErrorResponse(w, http.StatusBadRequest, message)
		return
	}

	enabled := true
	if request.Enabled != nil {
		enabled = *request.Enabled
	}

	config := database.AlertConfig{
		Path:                    request.Path,
		ResponseTimeThresholdMs: request.ResponseTimeThreshold,
		ErrorRateThresholdPct:   request.ErrorRateThreshold,
		Enabled:                 enabled,
	}

	if err := s.Database.CreateAlertConfig(r.Context(), &config); err != nil {
		s.Error().Err(err).Msg("error creating alert config")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	s.invalidateQueryCaches(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(&config); err != nil {
		s.Error().Msg(fmt.Sprintf("error %s encoding %+v to json", err, config))
	}
}

func (s *MonitorService) updateAlertConfig(w http.ResponseWriter, r *http.Request) {
	var request AlertConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid alert config request body")
		return
	}

	if request.ID == 0 {
		request.ID = int64(parseIntParam(r, "id", 0))
	}
	if request.ID == 0 {
		writeErrorResponse(w, http.StatusBadRequest, "alert config id is required")
		return
	}

	if message := validateAlertConfigRequest(request); message != "" {
		writeErrorResponse(w, http.StatusBadRequest, message)
		return
	}

	config, err := s.Database.GetAlertConfig(r.Context(), request.ID)
	if errors.Is(err, database.ErrNotFound) {
		writeErrorResponse(w, http.StatusNotFound, fmt.Sprintf("alert config %d not found", request.ID))
		return
	}
	if err != nil {
		s.Error().Err(err).Msg("error loading alert config")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	config.Path = request.Path
	config.ResponseTimeThresholdMs = request.ResponseTimeThreshold
	config.ErrorRateThresholdPct = request.ErrorRateThreshold
	if request.Enabled != nil {
		config.Enabled = *request.Enabled
	}

	if err := s.Database.UpdateAlertConfig(r.Context(), config); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeErrorResponse(w, http.StatusNotFound, fmt.Sprintf("alert config %d not found", request.ID))
			return
		}
		s.Error().Err(err).Msg("error updating alert config")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	s.invalidateQueryCaches(r.Context())

	if err := MarshalJSONResponse(config, w); err != nil {
		s.Error().Msg(fmt.Sprintf("error %s encoding %+v to json", err, config))
	}
}

func (s *MonitorService) deleteAlertConfig(w http.ResponseWriter, r *http.Request) {
	id := int64(parseIntParam(r, "id", 0))
	if id == 0 {
		writeErrorResponse(w, http.StatusBadRequest, "alert config id is required")
		return
	}

	err := s.Database.DeleteAlertConfig(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		writeErrorResponse(w, http.StatusNotFound, fmt.Sprintf("alert config %d not found", id))
		return
	}
	if err != nil {
		s.Error().Err(err).Msg("error deleting alert config")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	s.invalidateQueryCaches(r.Context())

	w.WriteHeader(http.StatusNoContent)
}

// validateAlertConfigRequest returns a descriptive message for invalid
// threshold values, or empty when the request is valid
func validateAlertConfigRequest(request AlertConfigRequest) string {
	if request.ResponseTimeThreshold <= 0 {
		return "responseTimeThreshold must be greater than zero"
	}
	if request.ErrorRateThreshold < 0 || request.ErrorRateThreshold > 100 {
		return "errorRateThreshold must be between 0 and 100"
	}
	return ""
}

// createExportHandler creates a handler function responding with a
// downloadable export of the requested window
func createExportHandler(service *MonitorService) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		service.Debug().Msg("/monitor/export called")

		query := ExportQuery{
			StartDate:      parseDateParam(r, "startDate"),
			EndDate:        parseDateParam(r, "endDate"),
			Format:         r.URL.Query().Get("format"),
			IncludeDetails: parseBoolParam(r, "includeDetails"),
		}

		result, err := service.Export(r.Context(), query)
		if err != nil {
			service.Error().Err(err).Msg("error assembling export")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", result.ContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.WriteHeader(http.StatusOK)
		w.Write(result.Body)
	}
}

// createHealthcheckHandler creates a health check handler function that
// will respond 200 ok if the monitor service is able to connect to
// its dependencies and functioning as expected
func createHealthcheckHandler(service *MonitorService) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var combinedErrors error

		service.Debug().Msg("/healthcheck called")

		// check that the database is reachable
		err := service.Database.HealthCheck()
		if err != nil {
			errMsg := fmt.Errorf("monitor service unable to connect to database")
			combinedErrors = errors.Join(combinedErrors, errMsg)
		}

		// check that the cache is reachable
		err = service.Cache.Healthcheck(r.Context())
		if err != nil {
			service.Error().
				Err(err).
				Msg("cache healthcheck failed")

			errMsg := fmt.Errorf("monitor service unable to connect to cache: %v", err)
			combinedErrors = errors.Join(combinedErrors, errMsg)
		}

		if combinedErrors != nil {
			w.WriteHeader(http.StatusInternalServerError)

			w.Write([]byte(combinedErrors.Error()))

			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("monitor service is healthy"))
	}
}

// createServicecheckHandler creates a service check handler function that
// will respond 200 ok if the monitor service is running
func createServicecheckHandler(service *MonitorService) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		service.Debug().Msg("/servicecheck called")

		w.WriteHeader(http.StatusOK)

		w.Write([]byte("monitor service is in service"))
	}
}

// parseStatFilters parses listing filters from query parameters,
// substituting safe defaults for anything missing or malformed
func (s *MonitorService) parseStatFilters(r *http.Request) database.StatFilters {
	query := r.URL.Query()

	filters := database.StatFilters{
		StartDate:         parseDateParam(r, "startDate"),
		EndDate:           parseDateParam(r, "endDate"),
		Path:              query.Get("path"),
		Method:            query.Get("method"),
		MinResponseTimeMs: int64(parseIntParam(r, "minResponseTime", 0)),
		OnlyErrors:        parseBoolParam(r, "onlyErrors"),
		UserAgent:         query.Get("userAgent"),
		IP:                query.Get("ip"),
		SortBy:            query.Get("sortBy"),
		SortOrder:         query.Get("sortOrder"),
		Page:              parseIntParam(r, "page", 1),
		Limit:             parseIntParam(r, "limit", 20),
	}

	now := time.Now().UTC()
	if filters.EndDate.IsZero() {
		filters.EndDate = now
	}
	if filters.StartDate.IsZero() || filters.StartDate.After(filters.EndDate) {
		filters.StartDate = filters.EndDate.AddDate(0, 0, -DefaultWindowDays)
	}

	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.Limit < 1 || filters.Limit > 500 {
		s.Warn().
			Int("limit", filters.Limit).
			Msg("invalid page limit substituted with default")
		filters.Limit = 20
	}

	return filters
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return value
}

func parseBoolParam(r *http.Request, name string) bool {
	value, err := strconv.ParseBool(r.URL.Query().Get(name))
	if err != nil {
		return false
	}
	return value
}

func parseDateParam(r *http.Request, name string) time.Time {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}
	}

	value, err := time.Parse(dateParamLayout, raw)
	if err != nil {
		return time.Time{}
	}

	return value.UTC()
}

func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// MarshalJSONResponse marshals an interface into the response body and sets JSON content type headers
func MarshalJSONResponse(obj interface{}, w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(obj); err != nil {
		return err
	}
	return nil
}
