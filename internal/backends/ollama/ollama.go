// Package ollama adapts a local Ollama server to the canonical backend
// contract. Local generation is free: cost is always zero and the model
// catalog is discovered live from the server.
package ollama

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"llmbridge/internal/backends"
	"llmbridge/internal/core"
	"llmbridge/internal/llmclient"
)

const defaultEndpoint = "http://localhost:11434"

func init() {
	backends.Register("ollama", func(cfg core.BackendConfig) (core.Backend, error) {
		creds := cfg.Credentials.(core.EndpointCredentials)
		return New(creds.Endpoint), nil
	})
}

// Backend implements core.StreamingBackend over the Ollama HTTP API.
type Backend struct {
	client *llmclient.Client
}

// New creates an Ollama backend. endpoint defaults to the local server.
func New(endpoint string) *Backend {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	b := &Backend{}
	b.client = llmclient.New("ollama", strings.TrimSuffix(endpoint, "/"), nil)
	return b
}

// NewWithHTTPClient creates a backend with a custom HTTP client for testing.
func NewWithHTTPClient(endpoint string, hc *http.Client) *Backend {
	b := &Backend{}
	b.client = llmclient.NewWithHTTPClient("ollama", strings.TrimSuffix(endpoint, "/"), hc, nil)
	return b
}

func (b *Backend) ID() string { return "ollama" }

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// generateRequest is the wire shape of /api/generate, used for models that
// predate chat templates. Raw is always true: the prompt already carries the
// family's control tokens, the server must not re-template it.
type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Raw     bool           `json:"raw"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

// chatResponse covers the single-shot reply and each NDJSON stream line for
// both endpoints; /api/generate delivers text in "response" instead of a
// message object. Eval counts appear only on the final (done) object.
type chatResponse struct {
	Model           string      `json:"model"`
	Message         chatMessage `json:"message"`
	Response        string      `json:"response"`
	Done            bool        `json:"done"`
	DoneReason      string      `json:"done_reason"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

func (r *chatResponse) text() string {
	if r.Message.Content != "" {
		return r.Message.Content
	}
	return r.Response
}

func buildOptions(req *core.Request) map[string]any {
	options := map[string]any{}
	if req.Temperature != nil {
		options["temperature"] = *req.Temperature
	}
	if req.MaxTokens != nil {
		options["num_predict"] = *req.MaxTokens
	}
	if len(req.StopSequences) > 0 {
		options["stop"] = req.StopSequences
	}
	if len(options) == 0 {
		return nil
	}
	return options
}

// requestFor picks the wire shape: structured turns on /api/chat when the
// model has a server-side chat template, a locally rendered prompt on
// /api/generate when it does not.
func requestFor(req *core.Request, stream bool) (endpoint string, body any) {
	if style, legacy := legacyPromptStyle(req.Model); legacy {
		return "/api/generate", generateRequest{
			Model:   req.Model,
			Prompt:  renderPrompt(style, req),
			Raw:     true,
			Stream:  stream,
			Options: buildOptions(req),
		}
	}
	return "/api/chat", buildBody(req, stream)
}

func buildBody(req *core.Request, stream bool) chatRequest {
	messages := make([]chatMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	body := chatRequest{Model: req.Model, Messages: messages, Stream: stream}
	body.Options = buildOptions(req)
	return body
}

func usageFrom(req *core.Request, wire *chatResponse, content string) core.Usage {
	if wire.PromptEvalCount == 0 && wire.EvalCount == 0 {
		return backends.HeuristicUsage(req, content, 0)
	}
	return core.Usage{
		PromptTokens:     wire.PromptEvalCount,
		CompletionTokens: wire.EvalCount,
		TotalTokens:      wire.PromptEvalCount + wire.EvalCount,
	}
}

func (b *Backend) Generate(ctx context.Context, req *core.Request) (*core.Response, error) {
	endpoint, body := requestFor(req, false)
	var wire chatResponse
	err := b.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: endpoint,
		Body:     body,
	}, &wire)
	if err != nil {
		return nil, err
	}

	model := wire.Model
	if model == "" {
		model = req.Model
	}
	return &core.Response{
		Content:      wire.text(),
		Model:        model,
		Backend:      "ollama",
		Usage:        usageFrom(req, &wire, wire.text()),
		Cost:         0,
		FinishReason: wire.DoneReason,
	}, nil
}

func (b *Backend) Stream(ctx context.Context, req *core.Request) (*core.Stream, error) {
	endpoint, reqBody := requestFor(req, true)
	body, err := b.client.DoStream(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: endpoint,
		Body:     reqBody,
	})
	if err != nil {
		return nil, err
	}

	scanner := llmclient.NewLineScanner(ctx, "ollama", body)
	seq := func(yield func(core.Chunk, error) bool) {
		defer scanner.Close()
		for {
			line, err := scanner.Next()
			if err != nil {
				if err == io.EOF {
					return
				}
				yield(core.Chunk{}, err)
				return
			}
			var wire chatResponse
			if err := json.Unmarshal(line, &wire); err != nil {
				yield(core.Chunk{}, core.NewError(core.KindBackend, "ollama", "malformed stream payload: "+err.Error()))
				return
			}
			chunk := core.Chunk{Text: wire.text()}
			if wire.Done {
				chunk.FinishReason = wire.DoneReason
				if chunk.FinishReason == "" {
					chunk.FinishReason = "stop"
				}
				if wire.PromptEvalCount > 0 || wire.EvalCount > 0 {
					chunk.Usage = &core.Usage{
						PromptTokens:     wire.PromptEvalCount,
						CompletionTokens: wire.EvalCount,
						TotalTokens:      wire.PromptEvalCount + wire.EvalCount,
					}
				}
			}
			if !yield(chunk, nil) {
				return
			}
			if wire.Done {
				return
			}
		}
	}

	base := core.Response{Model: req.Model, Backend: "ollama"}
	return core.NewStream(base, seq, func(resp *core.Response) {
		if resp.Usage.TotalTokens == 0 {
			resp.Usage = backends.HeuristicUsage(req, resp.Content, 0)
		}
		resp.Cost = 0
	}), nil
}

type tagsResponse struct {
	Models []struct {
		Name    string `json:"name"`
		Details struct {
			Family        string `json:"family"`
			ParameterSize string `json:"parameter_size"`
		} `json:"details"`
	} `json:"models"`
}

// ListModels discovers installed models from the server and merges known
// context metadata by model family. Pricing stays nil: local models are free.
func (b *Backend) ListModels(ctx context.Context) ([]core.ModelDescriptor, error) {
	var wire tagsResponse
	err := b.client.Do(ctx, llmclient.Request{
		Method:   http.MethodGet,
		Endpoint: "/api/tags",
	}, &wire)
	if err != nil {
		return nil, err
	}

	out := make([]core.ModelDescriptor, 0, len(wire.Models))
	for _, m := range wire.Models {
		desc := core.ModelDescriptor{
			ID:           m.Name,
			DisplayName:  m.Name,
			Capabilities: []string{"chat", "streaming"},
		}
		if meta, ok := familyMetadata(m.Name); ok {
			desc.ContextLength = meta.contextLength
			desc.MaxOutputTokens = meta.maxOutput
		}
		out = append(out, desc)
	}
	return out, nil
}

// EstimateCost is always zero: local generation is not billed.
func (b *Backend) EstimateCost(req *core.Request) float64 { return 0 }

func (b *Backend) CheckAvailable(ctx context.Context) error {
	_, err := b.client.StatusOf(ctx, llmclient.Request{
		Method:   http.MethodGet,
		Endpoint: "/api/tags",
	})
	return err
}

func (b *Backend) TestConnection(ctx context.Context) (bool, error) {
	if err := b.CheckAvailable(ctx); err != nil {
		return false, err
	}
	return true, nil
}
