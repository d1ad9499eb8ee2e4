package core

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Citation annotates a span of message content with its source document.
type Citation struct {
	Source     string `json:"source"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
}

// Message is a single turn in a conversation. Message order is semantically
// significant: adapters must preserve it when translating to wire formats.
type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Citations []Citation `json:"citations,omitempty"`
}

// Request is the canonical generation request handed to a backend adapter.
// Cancellation travels as a context.Context on the adapter call, not as a
// request field.
type Request struct {
	// Model is the target model id. Must appear in the adapter's catalog.
	Model string `json:"model"`

	// Messages is the ordered conversation history. At least one is required.
	Messages []Message `json:"messages"`

	// System is an optional system prompt kept separate from Messages for
	// backends that take it out-of-band. Adapters that have no separate slot
	// fold it into the message sequence.
	System string `json:"system,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`

	// MaxTokens caps the generated output. Must not exceed the model's
	// published ceiling.
	MaxTokens *int `json:"max_tokens,omitempty"`

	StopSequences []string `json:"stop_sequences,omitempty"`

	// Metadata carries opaque caller context (e.g. originating query id).
	// Adapters never interpret it.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// WithMaxTokens returns a shallow copy of the request with MaxTokens set.
// This avoids mutating the caller's request object.
func (r *Request) WithMaxTokens(n int) *Request {
	cp := *r
	cp.MaxTokens = &n
	return &cp
}

// Usage holds normalized token counts for one call.
// Total is always Prompt + Completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	// Estimated is true when the backend did not report counts and the
	// adapter filled them from the length heuristic.
	Estimated bool `json:"estimated,omitempty"`
}

// Response is the canonical completion result.
type Response struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Backend string `json:"backend"`

	Usage Usage `json:"usage"`

	// Cost in currency units, never negative. Zero for local backends.
	Cost float64 `json:"cost"`

	LatencyMS int64 `json:"latency_ms"`

	FinishReason  string `json:"finish_reason,omitempty"`
	Cached        bool   `json:"cached,omitempty"`
	Fallback      bool   `json:"fallback,omitempty"`
	SafetyBlocked bool   `json:"safety_blocked,omitempty"`
}

// ModelDescriptor describes one model a backend can serve.
type ModelDescriptor struct {
	ID              string   `json:"id"`
	DisplayName     string   `json:"display_name"`
	ContextLength   int      `json:"context_length"`
	MaxOutputTokens int      `json:"max_output_tokens"`
	Capabilities    []string `json:"capabilities,omitempty"`

	// Per-1k-token prices. Nil when the backend publishes no pricing
	// (local and on-device models).
	InputPricePer1K  *float64 `json:"input_price_per_1k,omitempty"`
	OutputPricePer1K *float64 `json:"output_price_per_1k,omitempty"`
}

// InstanceMetrics is the rolling per-instance view kept by the registry.
// It is mutated only through the metrics tracker, after every call, on the
// failure path exactly as on the success path.
type InstanceMetrics struct {
	BackendID     string    `json:"backend_id"`
	TotalRequests int64     `json:"total_requests"`
	SuccessRate   float64   `json:"success_rate"`
	MeanLatencyMS float64   `json:"mean_latency_ms"`
	TotalCost     float64   `json:"total_cost"`
	LastUsed      time.Time `json:"last_used"`
}
