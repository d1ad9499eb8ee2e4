// Package gemini adapts the Google Generative Language API to the canonical
// backend contract.
package gemini

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

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

func init() {
	backends.Register("gemini", func(cfg core.BackendConfig) (core.Backend, error) {
		creds := cfg.Credentials.(core.APIKeyCredentials)
		return New(creds.APIKey, creds.BaseURL), nil
	})
}

// Backend implements core.StreamingBackend over the Gemini API.
type Backend struct {
	client *llmclient.Client
	apiKey string
	prices backends.PriceTable
}

// New creates a Gemini backend.
func New(apiKey, baseURL string) *Backend {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	b := &Backend{apiKey: apiKey, prices: priceTable}
	b.client = llmclient.New("gemini", baseURL, noHeaders)
	return b
}

// NewWithHTTPClient creates a backend with a custom HTTP client for testing.
func NewWithHTTPClient(apiKey, baseURL string, hc *http.Client) *Backend {
	b := &Backend{apiKey: apiKey, prices: priceTable}
	b.client = llmclient.NewWithHTTPClient("gemini", baseURL, hc, noHeaders)
	return b
}

// noHeaders: Gemini authenticates with the key query parameter, not a header.
func noHeaders(*http.Request) error { return nil }

func (b *Backend) ID() string { return "gemini" }

func (b *Backend) auth() map[string]string {
	return map[string]string{"key": b.apiKey}
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// buildBody translates the canonical request into the two-role contents
// shape. assistant becomes model; system-role turns, which the wire format
// does not accept, prepend to the next user turn; consecutive same-role turns
// merge into one content block.
func buildBody(req *core.Request) generateRequest {
	var contents []content
	var pendingSystem string

	appendTurn := func(role, text string) {
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, part{Text: text})
			return
		}
		contents = append(contents, content{Role: role, Parts: []part{{Text: text}}})
	}

	for _, m := range req.Messages {
		switch m.Role {
		case core.RoleSystem:
			if pendingSystem != "" {
				pendingSystem += "\n\n"
			}
			pendingSystem += m.Content
		case core.RoleAssistant:
			appendTurn("model", m.Content)
		default:
			text := m.Content
			if pendingSystem != "" {
				text = pendingSystem + "\n\n" + text
				pendingSystem = ""
			}
			appendTurn("user", text)
		}
	}
	if pendingSystem != "" {
		appendTurn("user", pendingSystem)
	}

	body := generateRequest{Contents: contents}
	if req.System != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: req.System}}}
	}
	if req.Temperature != nil || req.MaxTokens != nil || len(req.StopSequences) > 0 {
		body.GenerationConfig = &generationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
			StopSequences:   req.StopSequences,
		}
	}
	return body
}

func candidateText(c content) string {
	var sb strings.Builder
	for _, p := range c.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

func (b *Backend) Generate(ctx context.Context, req *core.Request) (*core.Response, error) {
	var wire generateResponse
	err := b.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/models/" + req.Model + ":generateContent",
		Query:    b.auth(),
		Body:     buildBody(req),
	}, &wire)
	if err != nil {
		return nil, err
	}

	if wire.PromptFeedback != nil && wire.PromptFeedback.BlockReason != "" {
		return nil, core.NewError(core.KindSafetyBlocked, "gemini",
			"prompt blocked: "+wire.PromptFeedback.BlockReason)
	}
	if len(wire.Candidates) == 0 {
		return nil, core.NewError(core.KindBackend, "gemini", "response has no candidates")
	}

	cand := wire.Candidates[0]
	text := candidateText(cand.Content)
	usage := backends.HeuristicUsage(req, text, 0)
	if wire.UsageMetadata != nil {
		usage = core.Usage{
			PromptTokens:     wire.UsageMetadata.PromptTokenCount,
			CompletionTokens: wire.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      wire.UsageMetadata.PromptTokenCount + wire.UsageMetadata.CandidatesTokenCount,
		}
	}
	return &core.Response{
		Content:       text,
		Model:         req.Model,
		Backend:       "gemini",
		Usage:         usage,
		Cost:          b.prices.Cost(req.Model, usage.PromptTokens, usage.CompletionTokens),
		FinishReason:  cand.FinishReason,
		SafetyBlocked: cand.FinishReason == "SAFETY",
	}, nil
}

func (b *Backend) Stream(ctx context.Context, req *core.Request) (*core.Stream, error) {
	body, err := b.client.DoStream(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/models/" + req.Model + ":streamGenerateContent",
		Query:    b.auth(),
		Body:     buildBody(req),
	})
	if err != nil {
		return nil, err
	}

	scanner := llmclient.NewLineScanner(ctx, "gemini", body)
	safetyBlocked := false
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
			var wire generateResponse
			if err := json.Unmarshal(line, &wire); err != nil {
				yield(core.Chunk{}, core.NewError(core.KindBackend, "gemini", "malformed stream payload: "+err.Error()))
				return
			}
			if wire.PromptFeedback != nil && wire.PromptFeedback.BlockReason != "" {
				yield(core.Chunk{}, core.NewError(core.KindSafetyBlocked, "gemini",
					"prompt blocked: "+wire.PromptFeedback.BlockReason))
				return
			}
			if len(wire.Candidates) == 0 {
				continue
			}
			cand := wire.Candidates[0]
			chunk := core.Chunk{
				Text:         candidateText(cand.Content),
				FinishReason: cand.FinishReason,
			}
			if cand.FinishReason == "SAFETY" {
				safetyBlocked = true
			}
			if wire.UsageMetadata != nil {
				chunk.Usage = &core.Usage{
					PromptTokens:     wire.UsageMetadata.PromptTokenCount,
					CompletionTokens: wire.UsageMetadata.CandidatesTokenCount,
					TotalTokens:      wire.UsageMetadata.PromptTokenCount + wire.UsageMetadata.CandidatesTokenCount,
				}
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}

	base := core.Response{Model: req.Model, Backend: "gemini"}
	return core.NewStream(base, seq, func(resp *core.Response) {
		if resp.Usage.TotalTokens == 0 {
			resp.Usage = backends.HeuristicUsage(req, resp.Content, 0)
		}
		resp.Cost = b.prices.Cost(req.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		resp.SafetyBlocked = safetyBlocked
	}), nil
}

// modelsResponse is the live catalog shape.
type modelsResponse struct {
	Models []struct {
		Name             string `json:"name"`
		DisplayName      string `json:"displayName"`
		InputTokenLimit  int    `json:"inputTokenLimit"`
		OutputTokenLimit int    `json:"outputTokenLimit"`
	} `json:"models"`
}

// ListModels fetches the live catalog and attaches known pricing.
func (b *Backend) ListModels(ctx context.Context) ([]core.ModelDescriptor, error) {
	var wire modelsResponse
	err := b.client.Do(ctx, llmclient.Request{
		Method:   http.MethodGet,
		Endpoint: "/models",
		Query:    b.auth(),
	}, &wire)
	if err != nil {
		return nil, err
	}

	out := make([]core.ModelDescriptor, 0, len(wire.Models))
	for _, m := range wire.Models {
		id := strings.TrimPrefix(m.Name, "models/")
		desc := core.ModelDescriptor{
			ID:              id,
			DisplayName:     m.DisplayName,
			ContextLength:   m.InputTokenLimit,
			MaxOutputTokens: m.OutputTokenLimit,
			Capabilities:    []string{"chat", "streaming"},
		}
		if p, ok := knownPrice(id); ok {
			in, outP := p.InputPer1K, p.OutputPer1K
			desc.InputPricePer1K = &in
			desc.OutputPricePer1K = &outP
		}
		out = append(out, desc)
	}
	return out, nil
}

func (b *Backend) EstimateCost(req *core.Request) float64 {
	return backends.EstimateCost(req, b.prices, 0)
}

func (b *Backend) CheckAvailable(ctx context.Context) error {
	_, err := b.client.StatusOf(ctx, llmclient.Request{
		Method:   http.MethodGet,
		Endpoint: "/models",
		Query:    b.auth(),
	})
	return err
}

func (b *Backend) TestConnection(ctx context.Context) (bool, error) {
	status, err := b.client.StatusOf(ctx, llmclient.Request{
		Method:   http.MethodGet,
		Endpoint: "/models",
		Query:    b.auth(),
	})
	if err != nil {
		return false, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return false, core.NewError(core.KindAuthInvalid, "gemini", "api key rejected")
	}
	return true, nil
}
