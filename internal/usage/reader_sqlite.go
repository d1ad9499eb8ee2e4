package usage

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLiteReader implements Reader for SQLite databases.
type SQLiteReader struct {
	db *sql.DB
}

// NewSQLiteReader creates a new SQLite usage reader.
func NewSQLiteReader(db *sql.DB) (*SQLiteReader, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &SQLiteReader{db: db}, nil
}

// sqliteRange builds the WHERE clause and args for a date range. The end date
// is inclusive at day precision, so the upper bound is the following midnight.
func sqliteRange(params QueryParams) (string, []interface{}) {
	startZero := params.StartDate.IsZero()
	endZero := params.EndDate.IsZero()

	switch {
	case !startZero && !endZero:
		return " WHERE timestamp >= ? AND timestamp < ?", []interface{}{
			params.StartDate.UTC().Format("2006-01-02"),
			params.EndDate.AddDate(0, 0, 1).UTC().Format("2006-01-02"),
		}
	case !startZero:
		return " WHERE timestamp >= ?", []interface{}{
			params.StartDate.UTC().Format("2006-01-02"),
		}
	default:
		return "", nil
	}
}

func (r *SQLiteReader) GetSummary(ctx context.Context, params QueryParams) (*Summary, error) {
	where, args := sqliteRange(params)

	query := `SELECT COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0),
		COALESCE(SUM(total_tokens), 0), COALESCE(SUM(cost), 0)
		FROM usage` + where

	summary := &Summary{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&summary.TotalRequests, &summary.TotalInput, &summary.TotalOutput,
		&summary.TotalTokens, &summary.TotalCost,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage summary: %w", err)
	}

	return summary, nil
}

func sqliteGroupExpr(interval string) string {
	switch interval {
	case "weekly":
		return `strftime('%G-W%V', timestamp)`
	case "monthly":
		return `strftime('%Y-%m', timestamp)`
	case "yearly":
		return `strftime('%Y', timestamp)`
	default:
		return `DATE(timestamp)`
	}
}

func (r *SQLiteReader) GetPeriodUsage(ctx context.Context, params QueryParams) ([]PeriodUsage, error) {
	interval := params.Interval
	if interval == "" {
		interval = "daily"
	}
	groupExpr := sqliteGroupExpr(interval)
	where, args := sqliteRange(params)

	query := fmt.Sprintf(`SELECT %s as period, COUNT(*), COALESCE(SUM(input_tokens), 0),
		COALESCE(SUM(output_tokens), 0), COALESCE(SUM(total_tokens), 0), COALESCE(SUM(cost), 0)
		FROM usage%s GROUP BY %s ORDER BY period`, groupExpr, where, groupExpr)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query period usage: %w", err)
	}
	defer rows.Close()

	result := make([]PeriodUsage, 0)
	for rows.Next() {
		var p PeriodUsage
		if err := rows.Scan(&p.Date, &p.Requests, &p.InputTokens, &p.OutputTokens, &p.TotalTokens, &p.Cost); err != nil {
			return nil, fmt.Errorf("failed to scan period usage row: %w", err)
		}
		result = append(result, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating period usage rows: %w", err)
	}

	return result, nil
}

func (r *SQLiteReader) GetBackendUsage(ctx context.Context, params QueryParams) ([]BackendUsage, error) {
	where, args := sqliteRange(params)

	query := `SELECT backend_id, COUNT(*), COALESCE(SUM(total_tokens), 0), COALESCE(SUM(cost), 0)
		FROM usage` + where + ` GROUP BY backend_id ORDER BY backend_id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query backend usage: %w", err)
	}
	defer rows.Close()

	result := make([]BackendUsage, 0)
	for rows.Next() {
		var b BackendUsage
		if err := rows.Scan(&b.BackendID, &b.Requests, &b.TotalTokens, &b.Cost); err != nil {
			return nil, fmt.Errorf("failed to scan backend usage row: %w", err)
		}
		result = append(result, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backend usage rows: %w", err)
	}

	return result, nil
}
