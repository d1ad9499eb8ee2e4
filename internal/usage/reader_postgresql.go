package usage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQLReader implements Reader for PostgreSQL databases.
type PostgreSQLReader struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLReader creates a new PostgreSQL usage reader.
func NewPostgreSQLReader(pool *pgxpool.Pool) (*PostgreSQLReader, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}
	return &PostgreSQLReader{pool: pool}, nil
}

func pgRange(params QueryParams) (string, []interface{}) {
	startZero := params.StartDate.IsZero()
	endZero := params.EndDate.IsZero()

	switch {
	case !startZero && !endZero:
		return " WHERE timestamp >= $1 AND timestamp < $2", []interface{}{
			params.StartDate.UTC(),
			params.EndDate.AddDate(0, 0, 1).UTC(),
		}
	case !startZero:
		return " WHERE timestamp >= $1", []interface{}{params.StartDate.UTC()}
	default:
		return "", nil
	}
}

func (r *PostgreSQLReader) GetSummary(ctx context.Context, params QueryParams) (*Summary, error) {
	where, args := pgRange(params)

	query := `SELECT COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0),
		COALESCE(SUM(total_tokens), 0), COALESCE(SUM(cost), 0)
		FROM "usage"` + where

	summary := &Summary{}
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&summary.TotalRequests, &summary.TotalInput, &summary.TotalOutput,
		&summary.TotalTokens, &summary.TotalCost,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage summary: %w", err)
	}

	return summary, nil
}

func pgGroupExpr(interval string) string {
	switch interval {
	case "weekly":
		return `to_char(timestamp AT TIME ZONE 'UTC', 'IYYY-"W"IW')`
	case "monthly":
		return `to_char(timestamp AT TIME ZONE 'UTC', 'YYYY-MM')`
	case "yearly":
		return `to_char(timestamp AT TIME ZONE 'UTC', 'YYYY')`
	default:
		return `to_char(timestamp AT TIME ZONE 'UTC', 'YYYY-MM-DD')`
	}
}

func (r *PostgreSQLReader) GetPeriodUsage(ctx context.Context, params QueryParams) ([]PeriodUsage, error) {
	interval := params.Interval
	if interval == "" {
		interval = "daily"
	}
	groupExpr := pgGroupExpr(interval)
	where, args := pgRange(params)

	query := fmt.Sprintf(`SELECT %s as period, COUNT(*), COALESCE(SUM(input_tokens), 0),
		COALESCE(SUM(output_tokens), 0), COALESCE(SUM(total_tokens), 0), COALESCE(SUM(cost), 0)
		FROM "usage"%s GROUP BY %s ORDER BY period`, groupExpr, where, groupExpr)

	rows, err := r.pool.Query(ctx, query, args...)
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

func (r *PostgreSQLReader) GetBackendUsage(ctx context.Context, params QueryParams) ([]BackendUsage, error) {
	where, args := pgRange(params)

	query := `SELECT backend_id, COUNT(*), COALESCE(SUM(total_tokens), 0), COALESCE(SUM(cost), 0)
		FROM "usage"` + where + ` GROUP BY backend_id ORDER BY backend_id`

	rows, err := r.pool.Query(ctx, query, args...)
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
