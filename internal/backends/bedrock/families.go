package bedrock

import (
	"strings"

	"github.com/tidwall/gjson"

	"llmbridge/internal/backends"
	"llmbridge/internal/core"
)

// modelFamily translates between the canonical contract and one vendor's body
// and chunk shapes. familyFor returns a fresh value per call; chunk parsing
// for some vendors is stateful (prompt token counts arrive in a different
// event than completion counts).
type modelFamily interface {
	body(req *core.Request) any
	parse(raw []byte) *core.Response
	parseChunk(payload []byte) (core.Chunk, bool)
}

// familyFor picks the translation for a model id by its vendor prefix.
func familyFor(modelID string) (modelFamily, error) {
	switch {
	case strings.HasPrefix(modelID, "anthropic."):
		return &anthropicFamily{}, nil
	case strings.HasPrefix(modelID, "meta."):
		return &metaFamily{}, nil
	case strings.HasPrefix(modelID, "amazon."):
		return &titanFamily{}, nil
	default:
		return nil, core.NewValidationError("bedrock", "unsupported model family: "+modelID)
	}
}

// anthropicFamily speaks the Messages-API shape Bedrock hosts for Claude.
type anthropicFamily struct {
	inputTokens int
}

func (f *anthropicFamily) body(req *core.Request) any {
	maxTokens := 4096
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	messages := make([]map[string]string, 0, len(req.Messages))
	system := req.System
	for _, m := range req.Messages {
		if m.Role == core.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		messages = append(messages, map[string]string{
			"role":    string(m.Role),
			"content": m.Content,
		})
	}
	body := map[string]any{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        maxTokens,
		"messages":          messages,
	}
	if system != "" {
		body["system"] = system
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if len(req.StopSequences) > 0 {
		body["stop_sequences"] = req.StopSequences
	}
	return body
}

func (f *anthropicFamily) parse(raw []byte) *core.Response {
	var content strings.Builder
	for _, block := range gjson.GetBytes(raw, "content").Array() {
		if block.Get("type").String() == "text" {
			content.WriteString(block.Get("text").String())
		}
	}
	in := int(gjson.GetBytes(raw, "usage.input_tokens").Int())
	out := int(gjson.GetBytes(raw, "usage.output_tokens").Int())
	return &core.Response{
		Content:      content.String(),
		FinishReason: gjson.GetBytes(raw, "stop_reason").String(),
		Usage: core.Usage{
			PromptTokens:     in,
			CompletionTokens: out,
			TotalTokens:      in + out,
		},
	}
}

func (f *anthropicFamily) parseChunk(payload []byte) (core.Chunk, bool) {
	switch gjson.GetBytes(payload, "type").String() {
	case "message_start":
		f.inputTokens = int(gjson.GetBytes(payload, "message.usage.input_tokens").Int())
		return core.Chunk{}, false
	case "content_block_delta":
		text := gjson.GetBytes(payload, "delta.text").String()
		if text == "" {
			return core.Chunk{}, false
		}
		return core.Chunk{Text: text}, true
	case "message_delta":
		out := int(gjson.GetBytes(payload, "usage.output_tokens").Int())
		return core.Chunk{
			FinishReason: gjson.GetBytes(payload, "delta.stop_reason").String(),
			Usage: &core.Usage{
				PromptTokens:     f.inputTokens,
				CompletionTokens: out,
				TotalTokens:      f.inputTokens + out,
			},
		}, true
	default:
		return core.Chunk{}, false
	}
}

// metaFamily speaks the Llama text-completion shape.
type metaFamily struct{}

func (metaFamily) body(req *core.Request) any {
	body := map[string]any{
		"prompt": backends.FlattenPrompt(req),
	}
	if req.MaxTokens != nil {
		body["max_gen_len"] = *req.MaxTokens
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	return body
}

func (metaFamily) parse(raw []byte) *core.Response {
	in := int(gjson.GetBytes(raw, "prompt_token_count").Int())
	out := int(gjson.GetBytes(raw, "generation_token_count").Int())
	return &core.Response{
		Content:      gjson.GetBytes(raw, "generation").String(),
		FinishReason: gjson.GetBytes(raw, "stop_reason").String(),
		Usage: core.Usage{
			PromptTokens:     in,
			CompletionTokens: out,
			TotalTokens:      in + out,
		},
	}
}

func (metaFamily) parseChunk(payload []byte) (core.Chunk, bool) {
	chunk := core.Chunk{
		Text:         gjson.GetBytes(payload, "generation").String(),
		FinishReason: gjson.GetBytes(payload, "stop_reason").String(),
	}
	if in := gjson.GetBytes(payload, "prompt_token_count"); in.Exists() && chunk.FinishReason != "" {
		out := int(gjson.GetBytes(payload, "generation_token_count").Int())
		chunk.Usage = &core.Usage{
			PromptTokens:     int(in.Int()),
			CompletionTokens: out,
			TotalTokens:      int(in.Int()) + out,
		}
	}
	if chunk.Text == "" && chunk.FinishReason == "" {
		return core.Chunk{}, false
	}
	return chunk, true
}

// titanFamily speaks the Amazon Titan text shape.
type titanFamily struct {
	inputTokens int
}

func (f *titanFamily) body(req *core.Request) any {
	cfg := map[string]any{}
	if req.MaxTokens != nil {
		cfg["maxTokenCount"] = *req.MaxTokens
	}
	if req.Temperature != nil {
		cfg["temperature"] = *req.Temperature
	}
	if len(req.StopSequences) > 0 {
		cfg["stopSequences"] = req.StopSequences
	}
	body := map[string]any{
		"inputText": backends.FlattenPrompt(req),
	}
	if len(cfg) > 0 {
		body["textGenerationConfig"] = cfg
	}
	return body
}

func (f *titanFamily) parse(raw []byte) *core.Response {
	result := gjson.GetBytes(raw, "results.0")
	in := int(gjson.GetBytes(raw, "inputTextTokenCount").Int())
	out := int(result.Get("tokenCount").Int())
	return &core.Response{
		Content:      result.Get("outputText").String(),
		FinishReason: result.Get("completionReason").String(),
		Usage: core.Usage{
			PromptTokens:     in,
			CompletionTokens: out,
			TotalTokens:      in + out,
		},
	}
}

func (f *titanFamily) parseChunk(payload []byte) (core.Chunk, bool) {
	if in := gjson.GetBytes(payload, "inputTextTokenCount"); in.Exists() {
		f.inputTokens = int(in.Int())
	}
	chunk := core.Chunk{
		Text:         gjson.GetBytes(payload, "outputText").String(),
		FinishReason: gjson.GetBytes(payload, "completionReason").String(),
	}
	if chunk.FinishReason != "" {
		out := int(gjson.GetBytes(payload, "totalOutputTextTokenCount").Int())
		chunk.Usage = &core.Usage{
			PromptTokens:     f.inputTokens,
			CompletionTokens: out,
			TotalTokens:      f.inputTokens + out,
		}
	}
	if chunk.Text == "" && chunk.FinishReason == "" {
		return core.Chunk{}, false
	}
	return chunk, true
}
