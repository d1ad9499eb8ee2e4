package ollama

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
	return NewWithHTTPClient(server.URL, server.Client())
}

func userRequest(content string) *core.Request {
	return &core.Request{
		Model:    "llama3.1:8b",
		Messages: []core.Message{{Role: core.RoleUser, Content: content}},
	}
}

func TestGenerate(t *testing.T) {
	var gotBody chatRequest
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q, want /api/chat", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		fmt.Fprint(w, `{
			"model": "llama3.1:8b",
			"message": {"role": "assistant", "content": "hello from llama"},
			"done": true, "done_reason": "stop",
			"prompt_eval_count": 12, "eval_count": 5
		}`)
	})

	temp := 0.7
	req := userRequest("hi")
	req.Temperature = &temp
	resp, err := backend.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if gotBody.Stream {
		t.Error("single-shot request must set stream false")
	}
	if gotBody.Options["temperature"] != 0.7 {
		t.Errorf("options = %v, temperature must map into options", gotBody.Options)
	}
	if resp.Content != "hello from llama" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Cost != 0 {
		t.Errorf("Cost = %v, local generation is free", resp.Cost)
	}
	if resp.Usage.TotalTokens != 17 || resp.Usage.Estimated {
		t.Errorf("Usage = %+v, want reported eval counts", resp.Usage)
	}
}

func TestGenerateHeuristicUsage(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"message": {"content": "reply"}, "done": true}`)
	})

	resp, err := backend.Generate(context.Background(), userRequest("question"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !resp.Usage.Estimated {
		t.Error("missing eval counts must fall back to the estimate")
	}
}

func TestStream(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message": {"content": "one "}, "done": false}`)
		fmt.Fprintln(w, `{"message": {"content": "two"}, "done": false}`)
		fmt.Fprintln(w, `{"message": {"content": ""}, "done": true, "done_reason": "stop", "prompt_eval_count": 3, "eval_count": 2}`)
	})

	stream, err := backend.Stream(context.Background(), userRequest("count"))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	resp, err := stream.Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if resp.Content != "one two" {
		t.Errorf("Content = %q, want chunks in order", resp.Content)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason = %q, want stop", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 5 {
		t.Errorf("TotalTokens = %d, want 5", resp.Usage.TotalTokens)
	}
	if resp.Cost != 0 {
		t.Errorf("Cost = %v, want 0", resp.Cost)
	}
}

func TestListModels(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %q, want /api/tags", r.URL.Path)
		}
		fmt.Fprint(w, `{"models": [
			{"name": "llama3.1:8b", "details": {"family": "llama", "parameter_size": "8B"}},
			{"name": "somethingcustom:latest", "details": {}}
		]}`)
	})

	models, err := backend.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("len(models) = %d, want 2", len(models))
	}
	if models[0].ContextLength == 0 {
		t.Error("known families must get context metadata merged in")
	}
	if models[1].ContextLength != 0 {
		t.Error("unknown models must not invent limits")
	}
	if models[0].InputPricePer1K != nil {
		t.Error("local models carry no pricing")
	}
}

func TestFamilyMetadata(t *testing.T) {
	if _, ok := familyMetadata("llama3.1:70b-instruct"); !ok {
		t.Error("llama3 variants must match")
	}
	if _, ok := familyMetadata("totally-custom:latest"); ok {
		t.Error("unknown models must not match")
	}
}

func TestTestConnectionServerDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	backend := NewWithHTTPClient(server.URL, http.DefaultClient)
	ok, err := backend.TestConnection(context.Background())
	if ok || err == nil {
		t.Fatal("an unreachable server must fail the probe")
	}
	if kind := core.ErrKind(err); kind != core.KindUnavailable {
		t.Errorf("kind = %v, want backend_unavailable", kind)
	}
}

func TestGenerateLegacyTemplateModel(t *testing.T) {
	var gotPath string
	var gotBody generateRequest
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		fmt.Fprint(w, `{
			"model": "llama2:7b",
			"response": "legacy reply",
			"done": true, "done_reason": "stop",
			"prompt_eval_count": 8, "eval_count": 3
		}`)
	})

	req := &core.Request{
		Model:  "llama2:7b",
		System: "be brief",
		Messages: []core.Message{
			{Role: core.RoleUser, Content: "first"},
			{Role: core.RoleAssistant, Content: "ack"},
			{Role: core.RoleUser, Content: "second"},
		},
	}
	resp, err := backend.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if gotPath != "/api/generate" {
		t.Errorf("path = %q, models without chat templates must use /api/generate", gotPath)
	}
	if !gotBody.Raw {
		t.Error("raw must be set so the server does not re-template the prompt")
	}
	want := "[INST] <<SYS>>\nbe brief\n<</SYS>>\n\nfirst [/INST] ack </s><s>[INST] second [/INST]"
	if gotBody.Prompt != want {
		t.Errorf("prompt = %q, want %q", gotBody.Prompt, want)
	}
	if resp.Content != "legacy reply" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 11 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
}

func TestStreamLegacyTemplateModel(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %q, want /api/generate", r.URL.Path)
		}
		fmt.Fprint(w, `{"response": "a", "done": false}`+"\n")
		fmt.Fprint(w, `{"response": "b", "done": true, "done_reason": "stop", "prompt_eval_count": 4, "eval_count": 2}`+"\n")
	})

	req := &core.Request{
		Model:    "codellama:13b",
		Messages: []core.Message{{Role: core.RoleUser, Content: "write code"}},
	}
	stream, err := backend.Stream(context.Background(), req)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	resp, err := stream.Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if resp.Content != "ab" {
		t.Errorf("Content = %q, want chunk texts in order", resp.Content)
	}
	if resp.Usage.TotalTokens != 6 {
		t.Errorf("Usage = %+v, want reported eval counts", resp.Usage)
	}
}

func TestLegacyPromptStyle(t *testing.T) {
	cases := []struct {
		model  string
		legacy bool
	}{
		{"llama2:7b", true},
		{"codellama:13b-instruct", true},
		{"llama3.1:8b", false},
		{"mistral:7b", false},
		{"unknown-model", false},
	}
	for _, tc := range cases {
		if _, got := legacyPromptStyle(tc.model); got != tc.legacy {
			t.Errorf("legacyPromptStyle(%q) = %v, want %v", tc.model, got, tc.legacy)
		}
	}
}
