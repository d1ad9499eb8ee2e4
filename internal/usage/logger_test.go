package usage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"llmbridge/internal/core"
)

// mockStore implements Store for testing
type mockStore struct {
	entries []*Entry
	mu      sync.Mutex
	closed  bool
}

func (m *mockStore) WriteBatch(ctx context.Context, entries []*Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *mockStore) Flush(ctx context.Context) error {
	return nil
}

func (m *mockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockStore) getEntries() []*Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*Entry, len(m.entries))
	copy(result, m.entries)
	return result
}

func TestLogger(t *testing.T) {
	store := &mockStore{}
	cfg := Config{
		Enabled:       true,
		BufferSize:    100,
		FlushInterval: 100 * time.Millisecond,
	}

	logger := NewLogger(store, cfg)

	for i := 0; i < 5; i++ {
		logger.Write(&Entry{
			ID:           fmt.Sprintf("test-%d", i),
			BackendID:    "openai",
			Model:        "gpt-4o",
			InputTokens:  100,
			OutputTokens: 50,
			TotalTokens:  150,
		})
	}

	// Wait for flush interval
	time.Sleep(200 * time.Millisecond)

	entries := store.getEntries()
	if len(entries) != 5 {
		t.Errorf("expected 5 entries, got %d", len(entries))
	}

	if err := logger.Close(); err != nil {
		t.Errorf("logger close error: %v", err)
	}

	if !store.closed {
		t.Error("store should be closed")
	}
}

func TestLoggerClose(t *testing.T) {
	store := &mockStore{}
	cfg := Config{
		Enabled:       true,
		BufferSize:    1000,
		FlushInterval: 1 * time.Hour, // Long interval so flush is triggered by close
	}

	logger := NewLogger(store, cfg)

	for i := 0; i < 10; i++ {
		logger.Write(&Entry{ID: fmt.Sprintf("test-%d", i), BackendID: "ollama"})
	}

	// Close immediately - should flush pending entries
	if err := logger.Close(); err != nil {
		t.Errorf("logger close error: %v", err)
	}

	entries := store.getEntries()
	if len(entries) != 10 {
		t.Errorf("expected 10 entries after close, got %d", len(entries))
	}

	// Close again - must be a no-op
	if err := logger.Close(); err != nil {
		t.Errorf("second close error: %v", err)
	}

	// Writes after close are dropped silently
	logger.Write(&Entry{ID: "late"})
	if len(store.getEntries()) != 10 {
		t.Error("write after close must not reach the store")
	}
}

func TestLoggerBatchThresholdFlush(t *testing.T) {
	store := &mockStore{}
	cfg := Config{
		Enabled:       true,
		BufferSize:    BatchFlushThreshold * 2,
		FlushInterval: 1 * time.Hour, // Timer never fires; threshold must
	}

	logger := NewLogger(store, cfg)
	defer logger.Close()

	for i := 0; i < BatchFlushThreshold; i++ {
		logger.Write(&Entry{ID: fmt.Sprintf("test-%d", i)})
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(store.getEntries()) >= BatchFlushThreshold {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("expected %d entries flushed on threshold, got %d", BatchFlushThreshold, len(store.getEntries()))
}

func TestNoopLogger(t *testing.T) {
	logger := &NoopLogger{}

	logger.Write(&Entry{ID: "test"})

	cfg := logger.Config()
	if cfg.Enabled {
		t.Error("NoopLogger should report disabled")
	}

	if err := logger.Close(); err != nil {
		t.Errorf("NoopLogger close error: %v", err)
	}
}

func TestLoggerBufferFull(t *testing.T) {
	store := &mockStore{}
	cfg := Config{
		Enabled:       true,
		BufferSize:    2, // Very small buffer
		FlushInterval: 1 * time.Hour,
	}

	logger := NewLogger(store, cfg)
	defer logger.Close()

	// Overflow the buffer; entries past capacity are dropped, not blocked on.
	for i := 0; i < 10; i++ {
		logger.Write(&Entry{ID: fmt.Sprintf("test-%d", i)})
	}
}

func TestNewEntry(t *testing.T) {
	t.Run("FromResponse", func(t *testing.T) {
		resp := &core.Response{
			Content: "hello",
			Model:   "gpt-4o",
			Backend: "openai",
			Usage:   core.Usage{PromptTokens: 12, CompletionTokens: 34, TotalTokens: 46},
			Cost:    0.0042,
		}
		e := NewEntry("openai", "requested-model", resp, 150*time.Millisecond, nil)

		if e.ID == "" {
			t.Error("entry must carry a generated id")
		}
		if e.Model != "gpt-4o" {
			t.Errorf("Model = %q, want the response model", e.Model)
		}
		if e.InputTokens != 12 || e.OutputTokens != 34 || e.TotalTokens != 46 {
			t.Errorf("token counts = %d/%d/%d, want 12/34/46", e.InputTokens, e.OutputTokens, e.TotalTokens)
		}
		if e.Cost != 0.0042 {
			t.Errorf("Cost = %v, want 0.0042", e.Cost)
		}
		if e.LatencyMS != 150 {
			t.Errorf("LatencyMS = %d, want 150", e.LatencyMS)
		}
		if !e.Success {
			t.Error("Success must be true when err is nil")
		}
	})

	t.Run("FailurePath", func(t *testing.T) {
		e := NewEntry("anthropic", "claude-3-5-haiku", nil, 20*time.Millisecond, fmt.Errorf("boom"))

		if e.Success {
			t.Error("Success must be false on error")
		}
		if e.Model != "claude-3-5-haiku" {
			t.Errorf("Model = %q, want the request model when resp is nil", e.Model)
		}
		if e.TotalTokens != 0 || e.Cost != 0 {
			t.Error("failed calls carry zero counts and cost")
		}
	})
}
