// Package usage provides an append-only journal of completed model calls.
// Every call routed through the registry emits one entry; dashboards and
// budget checks read a consistent view from storage.
package usage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"llmbridge/internal/core"
)

// Store defines the interface for usage storage backends.
// Implementations must be safe for concurrent use.
type Store interface {
	// WriteBatch writes multiple usage entries to storage.
	// This is called by the Logger when flushing buffered entries.
	WriteBatch(ctx context.Context, entries []*Entry) error

	// Flush forces any pending writes to complete.
	// Called during graceful shutdown.
	Flush(ctx context.Context) error

	// Close releases resources and flushes pending writes.
	Close() error
}

// Entry represents a single completed call.
type Entry struct {
	// ID is a unique identifier for this entry (UUID)
	ID string `json:"id"`

	// BackendID identifies the backend instance that served the call
	BackendID string `json:"backend_id"`

	Model string `json:"model"`

	// Normalized token counts
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`

	// Estimated is true when the counts come from the length heuristic
	// rather than the backend's reported usage.
	Estimated bool `json:"estimated"`

	// Cost in currency units. Zero for local backends.
	Cost float64 `json:"cost"`

	LatencyMS int64 `json:"latency_ms"`

	Success bool `json:"success"`

	// Timestamp is when the call completed
	Timestamp time.Time `json:"timestamp"`
}

// NewEntry builds a journal entry from a completed call. resp may be nil on
// the failure path; the entry then carries the request model and zero counts.
func NewEntry(backendID, model string, resp *core.Response, latency time.Duration, err error) *Entry {
	e := &Entry{
		ID:        uuid.NewString(),
		BackendID: backendID,
		Model:     model,
		LatencyMS: latency.Milliseconds(),
		Success:   err == nil,
		Timestamp: time.Now().UTC(),
	}
	if resp != nil {
		if resp.Model != "" {
			e.Model = resp.Model
		}
		e.InputTokens = resp.Usage.PromptTokens
		e.OutputTokens = resp.Usage.CompletionTokens
		e.TotalTokens = resp.Usage.TotalTokens
		e.Estimated = resp.Usage.Estimated
		e.Cost = resp.Cost
	}
	return e
}

// Config holds usage journal configuration
type Config struct {
	// Enabled controls whether the journal is active
	Enabled bool

	// BufferSize is the number of entries to buffer before flushing
	BufferSize int

	// FlushInterval is how often to flush buffered entries
	FlushInterval time.Duration

	// RetentionDays is how long to keep usage data (0 = forever)
	RetentionDays int
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Enabled:       false,
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
		RetentionDays: 90,
	}
}
