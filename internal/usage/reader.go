package usage

import (
	"context"
	"time"
)

// QueryParams specifies the query parameters for usage data retrieval.
type QueryParams struct {
	StartDate time.Time // Inclusive start (day precision)
	EndDate   time.Time // Inclusive end (day precision)
	Interval  string    // "daily", "weekly", "monthly", "yearly"
}

// Summary holds aggregated usage statistics over a time period.
type Summary struct {
	TotalRequests int     `json:"total_requests"`
	TotalInput    int64   `json:"total_input_tokens"`
	TotalOutput   int64   `json:"total_output_tokens"`
	TotalTokens   int64   `json:"total_tokens"`
	TotalCost     float64 `json:"total_cost"`
}

// PeriodUsage holds usage statistics for a single period.
// Date holds the period label: YYYY-MM-DD for daily, YYYY-Www for weekly,
// YYYY-MM for monthly, or YYYY for yearly intervals.
type PeriodUsage struct {
	Date         string  `json:"date"`
	Requests     int     `json:"requests"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	TotalTokens  int64   `json:"total_tokens"`
	Cost         float64 `json:"cost"`
}

// BackendUsage holds aggregated usage for one backend instance.
type BackendUsage struct {
	BackendID   string  `json:"backend_id"`
	Requests    int     `json:"requests"`
	TotalTokens int64   `json:"total_tokens"`
	Cost        float64 `json:"cost"`
}

// Reader provides read access to the journal for the diagnostic API.
type Reader interface {
	// GetSummary returns aggregated usage statistics for the given date range.
	// If both StartDate and EndDate are zero, returns all-time statistics.
	GetSummary(ctx context.Context, params QueryParams) (*Summary, error)

	// GetPeriodUsage returns usage statistics grouped by the specified interval.
	// If both StartDate and EndDate are zero, returns all available data.
	GetPeriodUsage(ctx context.Context, params QueryParams) ([]PeriodUsage, error)

	// GetBackendUsage returns usage aggregated per backend for the date range.
	GetBackendUsage(ctx context.Context, params QueryParams) ([]BackendUsage, error)
}
