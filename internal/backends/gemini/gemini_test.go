package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"llmbridge/internal/core"
)

func newTestBackend(t *testing.T, handler http.HandlerFunc) *Backend {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewWithHTTPClient("test-key", server.URL, server.Client())
}

func userRequest(content string) *core.Request {
	return &core.Request{
		Model:    "gemini-2.0-flash",
		Messages: []core.Message{{Role: core.RoleUser, Content: content}},
	}
}

func TestBuildBodyRoleMapping(t *testing.T) {
	req := &core.Request{
		Model: "gemini-2.0-flash",
		Messages: []core.Message{
			{Role: core.RoleSystem, Content: "stay factual"},
			{Role: core.RoleUser, Content: "question one"},
			{Role: core.RoleAssistant, Content: "answer one"},
			{Role: core.RoleUser, Content: "part a"},
			{Role: core.RoleUser, Content: "part b"},
		},
	}
	body := buildBody(req)

	if len(body.Contents) != 3 {
		t.Fatalf("len(Contents) = %d, want 3 (merged turns)", len(body.Contents))
	}
	if body.Contents[0].Role != "user" || body.Contents[0].Parts[0].Text != "stay factual\n\nquestion one" {
		t.Errorf("system turn must prepend to the next user turn, got %+v", body.Contents[0])
	}
	if body.Contents[1].Role != "model" {
		t.Errorf("assistant must map to model, got %q", body.Contents[1].Role)
	}
	if len(body.Contents[2].Parts) != 2 {
		t.Errorf("consecutive user turns must merge into one content block, got %+v", body.Contents[2])
	}
}

func TestBuildBodySystemInstruction(t *testing.T) {
	req := userRequest("hi")
	req.System = "be concise"
	body := buildBody(req)
	if body.SystemInstruction == nil || body.SystemInstruction.Parts[0].Text != "be concise" {
		t.Errorf("out-of-band system prompt must use systemInstruction, got %+v", body.SystemInstruction)
	}
}

func TestGenerate(t *testing.T) {
	var gotKey, gotPath string
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		gotPath = r.URL.Path
		fmt.Fprint(w, `{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "hello"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 7, "candidatesTokenCount": 2}
		}`)
	})

	resp, err := backend.Generate(context.Background(), userRequest("hi"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if gotKey != "test-key" {
		t.Errorf("key query param = %q, want test-key", gotKey)
	}
	if gotPath != "/models/gemini-2.0-flash:generateContent" {
		t.Errorf("path = %q, model must be part of the endpoint", gotPath)
	}
	if resp.Content != "hello" {
		t.Errorf("Content = %q, want hello", resp.Content)
	}
	if resp.Usage.TotalTokens != 9 {
		t.Errorf("TotalTokens = %d, want 9", resp.Usage.TotalTokens)
	}
	if resp.SafetyBlocked {
		t.Error("SafetyBlocked must be false for STOP")
	}
}

func TestGeneratePromptBlocked(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"promptFeedback": {"blockReason": "SAFETY"}, "candidates": []}`)
	})

	_, err := backend.Generate(context.Background(), userRequest("hi"))
	if kind := core.ErrKind(err); kind != core.KindSafetyBlocked {
		t.Errorf("kind = %v, want safety_blocked", kind)
	}
}

func TestGenerateSafetyFinish(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates": [{"content": {"parts": [{"text": "partial"}]}, "finishReason": "SAFETY"}]}`)
	})

	resp, err := backend.Generate(context.Background(), userRequest("hi"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !resp.SafetyBlocked {
		t.Error("a SAFETY finish must set SafetyBlocked on the response")
	}
	if resp.Content != "partial" {
		t.Errorf("Content = %q, partial output must be preserved", resp.Content)
	}
}

func TestStream(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"candidates": [{"content": {"parts": [{"text": "Hel"}]}}]}`)
		fmt.Fprintln(w, `{"candidates": [{"content": {"parts": [{"text": "lo"}]}, "finishReason": "STOP"}], "usageMetadata": {"promptTokenCount": 3, "candidatesTokenCount": 2}}`)
	})

	stream, err := backend.Stream(context.Background(), userRequest("hi"))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	resp, err := stream.Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if resp.Content != "Hello" {
		t.Errorf("Content = %q, want Hello", resp.Content)
	}
	if resp.FinishReason != "STOP" {
		t.Errorf("FinishReason = %q, want STOP", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 5 {
		t.Errorf("TotalTokens = %d, want 5", resp.Usage.TotalTokens)
	}
	if resp.Cost <= 0 {
		t.Error("cost must be computed from final usage")
	}
}

func TestListModels(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(modelsResponse{Models: []struct {
			Name             string `json:"name"`
			DisplayName      string `json:"displayName"`
			InputTokenLimit  int    `json:"inputTokenLimit"`
			OutputTokenLimit int    `json:"outputTokenLimit"`
		}{
			{Name: "models/gemini-2.0-flash", DisplayName: "Gemini 2.0 Flash", InputTokenLimit: 1048576, OutputTokenLimit: 8192},
			{Name: "models/gemini-exp-playground", DisplayName: "Experimental", InputTokenLimit: 32768, OutputTokenLimit: 4096},
		}})
	})

	models, err := backend.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("len(models) = %d, want 2", len(models))
	}
	if models[0].ID != "gemini-2.0-flash" {
		t.Errorf("ID = %q, models/ prefix must be stripped", models[0].ID)
	}
	if models[0].InputPricePer1K == nil {
		t.Error("known models must carry pricing")
	}
	if models[1].InputPricePer1K != nil {
		t.Error("unknown models must not invent pricing")
	}
}
