package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/observekit/api-monitor-service/clients/database"
)

const (
	DailyEndpointStatsTableName = "daily_endpoint_stats"
)

// column whitelist for caller supplied sort fields
var dailyStatSortColumns = map[string]string{
	"date":          "stat_date",
	"path":          "path",
	"method":        "method",
	"requestCount":  "request_count",
	"errorCount":    "error_count",
	"responseTime":  "response_time_ms",
	"contentLength": "content_length",
	"responseSize":  "response_size",
}

// IncrementDailyStat applies one event to its (path, method, stat date)
// bucket inside a serializable transaction. The select-then-write spans
// the transaction so two processors racing on a missing bucket can
// collide on the insert; those collisions surface as an error wrapping
// database.ErrWriteConflict for the caller to retry.
func (c *Client) IncrementDailyStat(ctx context.Context, incr database.DailyStatIncrement) error {
	statDate := incr.StatDate.UTC().Truncate(24 * time.Hour)

	err := c.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(ctx context.Context, tx bun.Tx) error {
		var stat DailyEndpointStat

		err := tx.NewSelect().
			Model(&stat).
			Where("path = ?", incr.Path).
			Where("method = ?", incr.Method).
			Where("stat_date = ?", statDate).
			Scan(ctx)

		now := time.Now().UTC()

		if errors.Is(err, sql.ErrNoRows) {
			stat = DailyEndpointStat{
				Path:           incr.Path,
				Method:         incr.Method,
				StatDate:       statDate,
				RequestCount:   1,
				ResponseTimeMs: incr.ResponseTimeMs,
				ContentLength:  incr.ContentLength,
				ResponseSize:   incr.ResponseSize,
				StatusCode:     incr.StatusCode,
				UserAgent:      incr.UserAgent,
				IP:             incr.IP,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if incr.IsError {
				stat.ErrorCount = 1
			}

			_, err := tx.NewInsert().Model(&stat).Exec(ctx)
			return err
		}

		if err != nil {
			return err
		}

		stat.RequestCount++
		if incr.IsError {
			stat.ErrorCount++
		}
		stat.ResponseTimeMs = incr.ResponseTimeMs
		stat.StatusCode = incr.StatusCode
		if incr.ContentLength != nil {
			stat.ContentLength = incr.ContentLength
		}
		if incr.ResponseSize != nil {
			stat.ResponseSize = incr.ResponseSize
		}
		if incr.UserAgent != nil {
			stat.UserAgent = incr.UserAgent
		}
		if incr.IP != nil {
			stat.IP = incr.IP
		}
		stat.UpdatedAt = now

		_, err = tx.NewUpdate().Model(&stat).WherePK().Exec(ctx)
		return err
	})

	if err != nil && isWriteConflict(err) {
		return fmt.Errorf("%w: %v", database.ErrWriteConflict, err)
	}

	return err
}

// ListDailyStats returns the daily stats matching the provided filters
// along with the total number of matching rows
func (c *Client) ListDailyStats(ctx context.Context, filters database.StatFilters) ([]database.DailyEndpointStat, int, error) {
	var stats []DailyEndpointStat

	query := c.db.NewSelect().Model(&stats)

	if !filters.StartDate.IsZero() {
		query = query.Where("stat_date >= ?", filters.StartDate.UTC().Truncate(24*time.Hour))
	}
	if !filters.EndDate.IsZero() {
		query = query.Where("stat_date <= ?", filters.EndDate.UTC().Truncate(24*time.Hour))
	}
	if filters.Path != "" {
		query = query.Where("path = ?", filters.Path)
	}
	if filters.Method != "" {
		query = query.Where("method = ?", strings.ToUpper(filters.Method))
	}
	if filters.MinResponseTimeMs > 0 {
		query = query.Where("response_time_ms >= ?", filters.MinResponseTimeMs)
	}
	if filters.OnlyErrors {
		query = query.Where("error_count > 0")
	}
	if filters.UserAgent != "" {
		query = query.Where("user_agent = ?", filters.UserAgent)
	}
	if filters.IP != "" {
		query = query.Where("ip = ?", filters.IP)
	}

	sortColumn, ok := dailyStatSortColumns[filters.SortBy]
	if !ok {
		sortColumn = "stat_date"
	}
	sortOrder := "DESC"
	if strings.EqualFold(filters.SortOrder, "asc") {
		sortOrder = "ASC"
	}
	query = query.Order(fmt.Sprintf("%s %s", sortColumn, sortOrder))

	if filters.Limit > 0 {
		offset := 0
		if filters.Page > 1 {
			offset = (filters.Page - 1) * filters.Limit
		}
		query = query.Limit(filters.Limit).Offset(offset)
	}

	count, err := query.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}

	converted := make([]database.DailyEndpointStat, 0, len(stats))
	for _, stat := range stats {
		converted = append(converted, stat.ToDailyEndpointStat())
	}

	return converted, count, nil
}

// DeleteDailyStatsOlderThanNDays deletes all daily stats older than the
// specified days, returning error (if any). Used during retention pruning.
func (c *Client) DeleteDailyStatsOlderThanNDays(ctx context.Context, days int64) error {
	_, err := c.db.NewDelete().Model((*DailyEndpointStat)(nil)).Where(fmt.Sprintf("stat_date < now() - interval '%d' day", days)).Exec(ctx)

	return err
}
