// Package anthropic adapts the Anthropic Messages API to the canonical
// backend contract.
package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"llmbridge/internal/backends"
	"llmbridge/internal/core"
	"llmbridge/internal/llmclient"
)

const (
	defaultBaseURL = "https://api.anthropic.com/v1"
	apiVersion     = "2023-06-01"
)

func init() {
	backends.Register("anthropic", func(cfg core.BackendConfig) (core.Backend, error) {
		creds := cfg.Credentials.(core.APIKeyCredentials)
		return New(creds.APIKey, creds.BaseURL), nil
	})
}

// Backend implements core.StreamingBackend over the Anthropic API.
type Backend struct {
	client *llmclient.Client
	apiKey string
	prices backends.PriceTable
}

// New creates an Anthropic backend.
func New(apiKey, baseURL string) *Backend {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	b := &Backend{apiKey: apiKey, prices: priceTable}
	b.client = llmclient.New("anthropic", baseURL, b.setHeaders)
	return b
}

// NewWithHTTPClient creates a backend with a custom HTTP client for testing.
func NewWithHTTPClient(apiKey, baseURL string, hc *http.Client) *Backend {
	b := &Backend{apiKey: apiKey, prices: priceTable}
	b.client = llmclient.NewWithHTTPClient("anthropic", baseURL, hc, b.setHeaders)
	return b
}

func (b *Backend) ID() string { return "anthropic" }

func (b *Backend) setHeaders(req *http.Request) error {
	req.Header.Set("x-api-key", b.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
	return nil
}

// defaultMaxTokens applies when the request carries no cap; the Messages API
// makes max_tokens mandatory.
const defaultMaxTokens = 4096

type messagesRequest struct {
	Model         string        `json:"model"`
	Messages      []wireMessage `json:"messages"`
	System        string        `json:"system,omitempty"`
	MaxTokens     int           `json:"max_tokens"`
	Temperature   *float64      `json:"temperature,omitempty"`
	StopSequences []string      `json:"stop_sequences,omitempty"`
	Stream        bool          `json:"stream,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage wireUsage `json:"usage"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// streamEvent is the union of the SSE event payloads we care about. Events we
// do not recognize are skipped, which keeps the adapter forward compatible.
type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Message struct {
		Model string    `json:"model"`
		Usage wireUsage `json:"usage"`
	} `json:"message"`
	Usage wireUsage `json:"usage"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// buildBody translates the canonical request. The system prompt travels in
// the dedicated top-level field; system-role messages in the history are
// folded into it since the wire format only accepts user and assistant turns.
func buildBody(req *core.Request, stream bool) messagesRequest {
	system := req.System
	messages := make([]wireMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == core.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		messages = append(messages, wireMessage{Role: string(m.Role), Content: m.Content})
	}
	maxTokens := defaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	return messagesRequest{
		Model:         req.Model,
		Messages:      messages,
		System:        system,
		MaxTokens:     maxTokens,
		Temperature:   req.Temperature,
		StopSequences: req.StopSequences,
		Stream:        stream,
	}
}

func (b *Backend) Generate(ctx context.Context, req *core.Request) (*core.Response, error) {
	var wire messagesResponse
	err := b.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/messages",
		Body:     buildBody(req, false),
	}, &wire)
	if err != nil {
		return nil, err
	}

	var content string
	for _, block := range wire.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}
	usage := core.Usage{
		PromptTokens:     wire.Usage.InputTokens,
		CompletionTokens: wire.Usage.OutputTokens,
		TotalTokens:      wire.Usage.InputTokens + wire.Usage.OutputTokens,
	}
	if usage.TotalTokens == 0 {
		usage = backends.HeuristicUsage(req, content, 0)
	}
	model := wire.Model
	if model == "" {
		model = req.Model
	}
	return &core.Response{
		Content:      content,
		Model:        model,
		Backend:      "anthropic",
		Usage:        usage,
		Cost:         b.prices.Cost(req.Model, usage.PromptTokens, usage.CompletionTokens),
		FinishReason: wire.StopReason,
	}, nil
}

func (b *Backend) Stream(ctx context.Context, req *core.Request) (*core.Stream, error) {
	body, err := b.client.DoStream(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/messages",
		Body:     buildBody(req, true),
	})
	if err != nil {
		return nil, err
	}

	scanner := llmclient.NewSSEScanner(ctx, "anthropic", body, "")
	seq := func(yield func(core.Chunk, error) bool) {
		defer scanner.Close()
		var inputTokens int
		for {
			payload, err := scanner.Next()
			if err != nil {
				if err == io.EOF {
					return
				}
				yield(core.Chunk{}, err)
				return
			}
			var event streamEvent
			if err := json.Unmarshal(payload, &event); err != nil {
				yield(core.Chunk{}, core.NewError(core.KindBackend, "anthropic", "malformed stream payload: "+err.Error()))
				return
			}
			switch event.Type {
			case "message_start":
				inputTokens = event.Message.Usage.InputTokens
			case "content_block_delta":
				if event.Delta.Type != "text_delta" || event.Delta.Text == "" {
					continue
				}
				if !yield(core.Chunk{Text: event.Delta.Text}, nil) {
					return
				}
			case "message_delta":
				chunk := core.Chunk{FinishReason: event.Delta.StopReason}
				out := event.Usage.OutputTokens
				chunk.Usage = &core.Usage{
					PromptTokens:     inputTokens,
					CompletionTokens: out,
					TotalTokens:      inputTokens + out,
				}
				if !yield(chunk, nil) {
					return
				}
			case "message_stop":
				return
			case "error":
				yield(core.Chunk{}, core.NewError(core.KindBackend, "anthropic", event.Error.Message))
				return
			}
		}
	}

	base := core.Response{Model: req.Model, Backend: "anthropic"}
	return core.NewStream(base, seq, func(resp *core.Response) {
		if resp.Usage.TotalTokens == 0 {
			resp.Usage = backends.HeuristicUsage(req, resp.Content, 0)
		}
		resp.Cost = b.prices.Cost(req.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}), nil
}

func (b *Backend) ListModels(ctx context.Context) ([]core.ModelDescriptor, error) {
	return knownModels(), nil
}

func (b *Backend) EstimateCost(req *core.Request) float64 {
	return backends.EstimateCost(req, b.prices, 0)
}

func (b *Backend) CheckAvailable(ctx context.Context) error {
	_, err := b.client.StatusOf(ctx, llmclient.Request{
		Method:   http.MethodGet,
		Endpoint: "/models",
	})
	return err
}

// TestConnection probes the models endpoint; a 4xx other than an auth failure
// still proves the key works.
func (b *Backend) TestConnection(ctx context.Context) (bool, error) {
	status, err := b.client.StatusOf(ctx, llmclient.Request{
		Method:   http.MethodGet,
		Endpoint: "/models",
	})
	if err != nil {
		return false, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return false, core.NewError(core.KindAuthInvalid, "anthropic", "api key rejected")
	}
	return true, nil
}
