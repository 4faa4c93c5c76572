package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/observekit/api-monitor-service/clients/database"
)

const (
	// ExportFormatJSON exports the window as a json document
	ExportFormatJSON = "json"
	// ExportFormatCSV exports the window as csv rows
	ExportFormatCSV = "csv"
)

// ExportQuery selects the window, format and scope of an export
type ExportQuery struct {
	StartDate      time.Time
	EndDate        time.Time
	Format         string
	IncludeDetails bool
}

// ExportResult carries an assembled export document
type ExportResult struct {
	ContentType string
	Filename    string
	Body        []byte
}

type exportDocument struct {
	GeneratedAt time.Time                      `json:"generated_at"`
	StartDate   time.Time                      `json:"start_date"`
	EndDate     time.Time                      `json:"end_date"`
	Stats       []database.DailyEndpointStat   `json:"stats"`
	Details     []database.RequestDetailRecord `json:"details,omitempty"`
}

// Export assembles the daily stats (and optionally detail records) for
// the query's window into a downloadable document
func (s *MonitorService) Export(ctx context.Context, query ExportQuery) (ExportResult, error) {
	now := time.Now().UTC()

	if query.EndDate.IsZero() {
		query.EndDate = now
	}
	if query.StartDate.IsZero() || query.StartDate.After(query.EndDate) {
		query.StartDate = query.EndDate.AddDate(0, 0, -DefaultWindowDays)
	}

	if query.Format != ExportFormatJSON && query.Format != ExportFormatCSV {
		if query.Format != "" {
			s.Warn().
				Str("format", query.Format).
				Str("default", ExportFormatJSON).
				Msg("invalid export format substituted with default")
		}
		query.Format = ExportFormatJSON
	}

	stats, _, err := s.Database.ListDailyStats(ctx, database.StatFilters{
		StartDate: query.StartDate,
		EndDate:   query.EndDate,
	})
	if err != nil {
		return ExportResult{}, err
	}

	document := exportDocument{
		GeneratedAt: now,
		StartDate:   query.StartDate,
		EndDate:     query.EndDate,
		Stats:       stats,
	}

	if query.IncludeDetails {
		details, _, err := s.Database.ListRequestDetailRecords(ctx, database.DetailFilters{
			StartDate: query.StartDate,
			EndDate:   query.EndDate,
		})
		if err != nil {
			return ExportResult{}, err
		}
		document.Details = details
	}

	timestamp := now.Format("20060102150405")

	if query.Format == ExportFormatCSV {
		body, err := exportCSV(document)
		if err != nil {
			return ExportResult{}, err
		}

		return ExportResult{
			ContentType: "text/csv",
			Filename:    fmt.Sprintf("api-monitor-export-%s.csv", timestamp),
			Body:        body,
		}, nil
	}

	body, err := json.Marshal(document)
	if err != nil {
		return ExportResult{}, err
	}

	return ExportResult{
		ContentType: "application/json",
		Filename:    fmt.Sprintf("api-monitor-export-%s.json", timestamp),
		Body:        body,
	}, nil
}

func exportCSV(document exportDocument) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	statHeader := []string{"stat_date", "path", "method", "request_count", "error_count", "error_rate", "response_time_ms", "status_code", "user_agent", "ip"}
	if err := writer.Write(statHeader); err != nil {
		return nil, err
	}

	for _, stat := range document.Stats {
		row := []string{
			stat.StatDate.Format("2006-01-02"),
			stat.Path,
			stat.Method,
			strconv.FormatInt(stat.RequestCount, 10),
			strconv.FormatInt(stat.ErrorCount, 10),
			strconv.FormatFloat(stat.ErrorRate(), 'f', 2, 64),
			strconv.FormatInt(stat.ResponseTimeMs, 10),
			strconv.Itoa(stat.StatusCode),
			stringOrEmpty(stat.UserAgent),
			stringOrEmpty(stat.IP),
		}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}

	if len(document.Details) > 0 {
		// blank row separates the detail section
		if err := writer.Write([]string{""}); err != nil {
			return nil, err
		}

		detailHeader := []string{"request_time", "path", "method", "status_code", "response_time_ms", "user_id", "user_agent", "ip", "error_message"}
		if err := writer.Write(detailHeader); err != nil {
			return nil, err
		}

		for _, detail := range document.Details {
			row := []string{
				detail.RequestTime.Format(time.RFC3339),
				detail.Path,
				detail.Method,
				strconv.Itoa(detail.StatusCode),
				strconv.FormatInt(detail.ResponseTimeMs, 10),
				stringOrEmpty(detail.UserID),
				stringOrEmpty(detail.UserAgent),
				stringOrEmpty(detail.IP),
				stringOrEmpty(detail.ErrorMessage),
			}
			if err := writer.Write(row); err != nil {
				return nil, err
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func stringOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
