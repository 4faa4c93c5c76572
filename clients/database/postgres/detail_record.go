package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/uptrace/bun"

	"github.com/observekit/api-monitor-service/clients/database"
)

const (
	RequestDetailRecordsTableName = "request_detail_records"
)

// SaveRequestDetailRecord appends a sampled request record, returning
// error (if any). Error messages are truncated to the persisted maximum.
func (c *Client) SaveRequestDetailRecord(ctx context.Context, record *database.RequestDetailRecord) error {
	rdr := convertRequestDetailRecord(record)
	_, err := c.db.NewInsert().Model(rdr).Exec(ctx)

	return err
}

// ListRequestDetailRecords returns the detail records matching the
// provided filters along with the total number of matching rows
func (c *Client) ListRequestDetailRecords(ctx context.Context, filters database.DetailFilters) ([]database.RequestDetailRecord, int, error) {
	var records []RequestDetailRecord

	query := c.db.NewSelect().Model(&records)

	if !filters.StartDate.IsZero() {
		query = query.Where("request_time >= ?", filters.StartDate.UTC())
	}
	if !filters.EndDate.IsZero() {
		query = query.Where("request_time <= ?", filters.EndDate.UTC())
	}
	if filters.Path != "" {
		query = query.Where("path = ?", filters.Path)
	}
	if len(filters.Paths) > 0 {
		query = query.Where("path IN (?)", bun.In(filters.Paths))
	}
	if filters.Method != "" {
		query = query.Where("method = ?", strings.ToUpper(filters.Method))
	}
	if filters.MinResponseTimeMs > 0 {
		query = query.Where("response_time_ms >= ?", filters.MinResponseTimeMs)
	}
	if filters.OnlyErrors {
		query = query.Where("status_code >= 400")
	}
	if filters.UserAgent != "" {
		query = query.Where("user_agent = ?", filters.UserAgent)
	}
	if filters.IP != "" {
		query = query.Where("ip = ?", filters.IP)
	}

	query = query.Order("request_time DESC")

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

	converted := make([]database.RequestDetailRecord, 0, len(records))
	for _, record := range records {
		converted = append(converted, record.ToRequestDetailRecord())
	}

	return converted, count, nil
}

// DeleteRequestDetailRecordsOlderThanNDays deletes all detail records
// older than the specified days, returning error (if any).
// Used during retention pruning.
func (c *Client) DeleteRequestDetailRecordsOlderThanNDays(ctx context.Context, days int64) error {
	_, err := c.db.NewDelete().Model((*RequestDetailRecord)(nil)).Where(fmt.Sprintf("request_time < now() - interval '%d' day", days)).Exec(ctx)

	return err
}
