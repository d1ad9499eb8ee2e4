// Package openai adapts the OpenAI chat completions API to the canonical
// backend contract.
package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"llmbridge/internal/backends"
	"llmbridge/internal/core"
	"llmbridge/internal/llmclient"
)

const defaultBaseURL = "https://api.openai.com/v1"

func init() {
	backends.Register("openai", func(cfg core.BackendConfig) (core.Backend, error) {
		creds := cfg.Credentials.(core.APIKeyCredentials)
		return New(creds.APIKey, creds.BaseURL), nil
	})
}

// Backend implements core.StreamingBackend over the OpenAI API.
type Backend struct {
	client *llmclient.Client
	apiKey string
	prices backends.PriceTable
}

// New creates an OpenAI backend. baseURL overrides the platform endpoint when
// non-empty (proxies, compatible servers).
func New(apiKey, baseURL string) *Backend {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	b := &Backend{apiKey: apiKey, prices: priceTable}
	b.client = llmclient.New("openai", baseURL, b.setHeaders)
	return b
}

// NewWithHTTPClient creates a backend with a custom HTTP client for testing.
func NewWithHTTPClient(apiKey, baseURL string, hc *http.Client) *Backend {
	b := &Backend{apiKey: apiKey, prices: priceTable}
	b.client = llmclient.NewWithHTTPClient("openai", baseURL, hc, b.setHeaders)
	return b
}

func (b *Backend) ID() string { return "openai" }

func (b *Backend) setHeaders(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	if requestID := core.GetRequestID(req.Context()); requestID != "" {
		req.Header.Set("X-Client-Request-Id", requestID)
	}
	return nil
}

// chatRequest is the wire body for /chat/completions.
type chatRequest struct {
	Model         string        `json:"model"`
	Messages      []chatMessage `json:"messages"`
	Temperature   *float64      `json:"temperature,omitempty"`
	MaxTokens     *int          `json:"max_tokens,omitempty"`
	Stop          []string      `json:"stop,omitempty"`
	Stream        bool          `json:"stream,omitempty"`
	StreamOptions *streamOpts   `json:"stream_options,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type streamOpts struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage *wireUsage `json:"usage"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// streamChunk is one SSE data payload during streaming.
type streamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *wireUsage `json:"usage"`
}

// buildBody translates the canonical request. The out-of-band system prompt
// becomes a leading system message; conversation order is preserved.
func buildBody(req *core.Request, stream bool) chatRequest {
	messages := make([]chatMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	body := chatRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stop:        req.StopSequences,
		Stream:      stream,
	}
	if stream {
		body.StreamOptions = &streamOpts{IncludeUsage: true}
	}
	return body
}

func (b *Backend) normalizeUsage(req *core.Request, content string, u *wireUsage) core.Usage {
	if u == nil {
		return backends.HeuristicUsage(req, content, 0)
	}
	return core.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.PromptTokens + u.CompletionTokens,
	}
}

func (b *Backend) Generate(ctx context.Context, req *core.Request) (*core.Response, error) {
	var wire chatResponse
	err := b.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat/completions",
		Body:     buildBody(req, false),
	}, &wire)
	if err != nil {
		return nil, err
	}
	if len(wire.Choices) == 0 {
		return nil, core.NewError(core.KindBackend, "openai", "response has no choices")
	}

	choice := wire.Choices[0]
	usage := b.normalizeUsage(req, choice.Message.Content, wire.Usage)
	model := wire.Model
	if model == "" {
		model = req.Model
	}
	return &core.Response{
		Content:      choice.Message.Content,
		Model:        model,
		Backend:      "openai",
		Usage:        usage,
		Cost:         b.prices.Cost(req.Model, usage.PromptTokens, usage.CompletionTokens),
		FinishReason: choice.FinishReason,
	}, nil
}

func (b *Backend) Stream(ctx context.Context, req *core.Request) (*core.Stream, error) {
	body, err := b.client.DoStream(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat/completions",
		Body:     buildBody(req, true),
	})
	if err != nil {
		return nil, err
	}

	scanner := llmclient.NewSSEScanner(ctx, "openai", body, "[DONE]")
	seq := func(yield func(core.Chunk, error) bool) {
		defer scanner.Close()
		for {
			payload, err := scanner.Next()
			if err != nil {
				if err == io.EOF {
					return
				}
				yield(core.Chunk{}, err)
				return
			}
			var wire streamChunk
			if err := json.Unmarshal(payload, &wire); err != nil {
				yield(core.Chunk{}, core.NewError(core.KindBackend, "openai", "malformed stream payload: "+err.Error()))
				return
			}
			chunk := core.Chunk{}
			if len(wire.Choices) > 0 {
				chunk.Text = wire.Choices[0].Delta.Content
				chunk.FinishReason = wire.Choices[0].FinishReason
			}
			if wire.Usage != nil {
				chunk.Usage = &core.Usage{
					PromptTokens:     wire.Usage.PromptTokens,
					CompletionTokens: wire.Usage.CompletionTokens,
					TotalTokens:      wire.Usage.PromptTokens + wire.Usage.CompletionTokens,
				}
			}
			if chunk.Text == "" && chunk.FinishReason == "" && chunk.Usage == nil {
				continue
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}

	base := core.Response{Model: req.Model, Backend: "openai"}
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

// TestConnection probes the models endpoint. Any HTTP response except an auth
// failure proves the key and connectivity work.
func (b *Backend) TestConnection(ctx context.Context) (bool, error) {
	status, err := b.client.StatusOf(ctx, llmclient.Request{
		Method:   http.MethodGet,
		Endpoint: "/models",
	})
	if err != nil {
		return false, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return false, core.NewError(core.KindAuthInvalid, "openai", "api key rejected")
	}
	return true, nil
}
