// Package azure adapts the Azure OpenAI service to the canonical backend
// contract. The wire body matches the OpenAI chat shape; routing and auth are
// Azure's own: the model lives in the deployment path, and authentication is
// either a static api-key header or an OAuth2 client-credential bearer token.
package azure

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"llmbridge/internal/backends"
	"llmbridge/internal/core"
	"llmbridge/internal/httpclient"
	"llmbridge/internal/llmclient"
)

const defaultAPIVersion = "2024-06-01"

func init() {
	backends.Register("azure", func(cfg core.BackendConfig) (core.Backend, error) {
		creds := cfg.Credentials.(core.ClientSecretCredentials)
		return New(creds), nil
	})
}

// Backend implements core.StreamingBackend over an Azure OpenAI deployment.
type Backend struct {
	client     *llmclient.Client
	apiKey     string
	tokens     *tokenManager
	deployment string
	apiVersion string
	prices     backends.PriceTable
}

// New creates an Azure backend. When the credentials carry a static api key
// it is used directly; otherwise a token manager performs the OAuth2
// client-credential exchange on demand.
func New(creds core.ClientSecretCredentials) *Backend {
	return newWithHTTPClient(creds, httpclient.Default())
}

// NewWithHTTPClient creates a backend with a custom HTTP client for testing.
func NewWithHTTPClient(creds core.ClientSecretCredentials, hc *http.Client) *Backend {
	return newWithHTTPClient(creds, hc)
}

func newWithHTTPClient(creds core.ClientSecretCredentials, hc *http.Client) *Backend {
	b := &Backend{
		apiKey:     creds.APIKey,
		deployment: creds.Deployment,
		apiVersion: creds.APIVersion,
		// Deployment names do not identify a priceable model; billing is
		// observable only on the Azure resource, so cost reports as zero.
		prices: backends.ZeroPriceTable(),
	}
	if b.apiVersion == "" {
		b.apiVersion = defaultAPIVersion
	}
	if b.apiKey == "" {
		b.tokens = newTokenManager(hc, creds.TenantID, creds.ClientID, creds.ClientSecret)
	}
	baseURL := strings.TrimSuffix(creds.Endpoint, "/") + "/openai/deployments/" + creds.Deployment
	b.client = llmclient.NewWithHTTPClient("azure", baseURL, hc, b.setHeaders)
	return b
}

func (b *Backend) ID() string { return "azure" }

func (b *Backend) setHeaders(req *http.Request) error {
	if b.apiKey != "" {
		req.Header.Set("api-key", b.apiKey)
		return nil
	}
	token, err := b.tokens.Token(req.Context())
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (b *Backend) query() map[string]string {
	return map[string]string{"api-version": b.apiVersion}
}

type chatRequest struct {
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
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *wireUsage `json:"usage"`
}

// buildBody omits the model field: Azure routes by deployment path.
func buildBody(req *core.Request, stream bool) chatRequest {
	messages := make([]chatMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	body := chatRequest{
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

func (b *Backend) Generate(ctx context.Context, req *core.Request) (*core.Response, error) {
	var wire chatResponse
	err := b.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat/completions",
		Query:    b.query(),
		Body:     buildBody(req, false),
	}, &wire)
	if err != nil {
		return nil, err
	}
	if len(wire.Choices) == 0 {
		return nil, core.NewError(core.KindBackend, "azure", "response has no choices")
	}

	choice := wire.Choices[0]
	usage := backends.HeuristicUsage(req, choice.Message.Content, 0)
	if wire.Usage != nil {
		usage = core.Usage{
			PromptTokens:     wire.Usage.PromptTokens,
			CompletionTokens: wire.Usage.CompletionTokens,
			TotalTokens:      wire.Usage.PromptTokens + wire.Usage.CompletionTokens,
		}
	}
	model := wire.Model
	if model == "" {
		model = req.Model
	}
	return &core.Response{
		Content:      choice.Message.Content,
		Model:        model,
		Backend:      "azure",
		Usage:        usage,
		Cost:         b.prices.Cost(req.Model, usage.PromptTokens, usage.CompletionTokens),
		FinishReason: choice.FinishReason,
	}, nil
}

func (b *Backend) Stream(ctx context.Context, req *core.Request) (*core.Stream, error) {
	body, err := b.client.DoStream(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat/completions",
		Query:    b.query(),
		Body:     buildBody(req, true),
	})
	if err != nil {
		return nil, err
	}

	scanner := llmclient.NewSSEScanner(ctx, "azure", body, "[DONE]")
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
				yield(core.Chunk{}, core.NewError(core.KindBackend, "azure", "malformed stream payload: "+err.Error()))
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

	base := core.Response{Model: req.Model, Backend: "azure"}
	return core.NewStream(base, seq, func(resp *core.Response) {
		if resp.Usage.TotalTokens == 0 {
			resp.Usage = backends.HeuristicUsage(req, resp.Content, 0)
		}
		resp.Cost = b.prices.Cost(req.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}), nil
}

// ListModels reports the single configured deployment. Azure exposes no
// per-resource model catalog through the deployment endpoint.
func (b *Backend) ListModels(ctx context.Context) ([]core.ModelDescriptor, error) {
	return []core.ModelDescriptor{{
		ID:           b.deployment,
		DisplayName:  "Azure deployment " + b.deployment,
		Capabilities: []string{"chat", "streaming"},
	}}, nil
}

func (b *Backend) EstimateCost(req *core.Request) float64 {
	return backends.EstimateCost(req, b.prices, 0)
}

func (b *Backend) CheckAvailable(ctx context.Context) error {
	_, err := b.client.StatusOf(ctx, llmclient.Request{
		Method:   http.MethodGet,
		Endpoint: "/chat/completions",
		Query:    b.query(),
	})
	return err
}

// TestConnection probes the deployment. 4xx responses other than auth
// failures (e.g. 405 on GET) still prove routing and credentials work.
func (b *Backend) TestConnection(ctx context.Context) (bool, error) {
	status, err := b.client.StatusOf(ctx, llmclient.Request{
		Method:   http.MethodGet,
		Endpoint: "/chat/completions",
		Query:    b.query(),
	})
	if err != nil {
		return false, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return false, core.NewError(core.KindAuthInvalid, "azure", "credentials rejected")
	}
	return true, nil
}
