package openai

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
		Model:    "gpt-4o",
		Messages: []core.Message{{Role: core.RoleUser, Content: content}},
	}
}

func TestGenerate(t *testing.T) {
	var gotAuth string
	var gotBody chatRequest
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		fmt.Fprint(w, `{
			"model": "gpt-4o",
			"choices": [{"message": {"role": "assistant", "content": "hi there"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`)
	})

	req := userRequest("hello")
	req.System = "be brief"
	resp, err := backend.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q, want bearer key", gotAuth)
	}
	if len(gotBody.Messages) != 2 || gotBody.Messages[0].Role != "system" {
		t.Errorf("system prompt should lead the message list, got %+v", gotBody.Messages)
	}
	if resp.Content != "hi there" {
		t.Errorf("Content = %q, want %q", resp.Content, "hi there")
	}
	if resp.Backend != "openai" {
		t.Errorf("Backend = %q, want openai", resp.Backend)
	}
	if resp.Usage.TotalTokens != 15 || resp.Usage.Estimated {
		t.Errorf("Usage = %+v, want reported counts", resp.Usage)
	}
	if resp.Cost <= 0 {
		t.Errorf("Cost = %v, want positive", resp.Cost)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason = %q, want stop", resp.FinishReason)
	}
}

func TestGenerateMissingUsageFallsBackToHeuristic(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices": [{"message": {"content": "answer"}, "finish_reason": "stop"}]}`)
	})

	resp, err := backend.Generate(context.Background(), userRequest("question"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !resp.Usage.Estimated {
		t.Error("usage should be marked estimated when the backend reports none")
	}
	if resp.Usage.TotalTokens != resp.Usage.PromptTokens+resp.Usage.CompletionTokens {
		t.Errorf("usage total invariant violated: %+v", resp.Usage)
	}
}

func TestGenerateErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantKind   core.ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error": {"message": "bad key"}}`, core.KindAuthInvalid},
		{"rate limited", http.StatusTooManyRequests, `{"error": {"message": "slow down"}}`, core.KindRateLimited},
		{"server error", http.StatusInternalServerError, `oops`, core.KindUnavailable},
		{"bad request", http.StatusBadRequest, `{"error": {"message": "bad shape"}}`, core.KindBackend},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				fmt.Fprint(w, tt.body)
			})
			_, err := backend.Generate(context.Background(), userRequest("hi"))
			if err == nil {
				t.Fatal("expected error")
			}
			if kind := core.ErrKind(err); kind != tt.wantKind {
				t.Errorf("kind = %v, want %v", kind, tt.wantKind)
			}
		})
	}
}

func TestStream(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}],\"usage\":{\"prompt_tokens\":4,\"completion_tokens\":2}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
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
	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason = %q, want stop", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 6 {
		t.Errorf("TotalTokens = %d, want 6", resp.Usage.TotalTokens)
	}
	if resp.Cost <= 0 {
		t.Error("streaming responses must be costed from final usage")
	}
}

func TestStreamChunkOrdering(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 5; i++ {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":\"%d\"}}]}\n\n", i)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	stream, err := backend.Stream(context.Background(), userRequest("count"))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var got string
	for chunk, err := range stream.Iter() {
		if err != nil {
			t.Fatalf("chunk error: %v", err)
		}
		got += chunk.Text
	}
	if got != "01234" {
		t.Errorf("chunks arrived as %q, want emission order preserved", got)
	}
}

func TestStreamCancellation(t *testing.T) {
	release := make(chan struct{})
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n\n")
		flusher.Flush()
		<-release
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := backend.Stream(ctx, userRequest("hi"))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	seen := 0
	var streamErr error
	for chunk, err := range stream.Iter() {
		if err != nil {
			streamErr = err
			break
		}
		_ = chunk
		seen++
		if seen == 2 {
			cancel()
		}
	}
	if seen != 2 {
		t.Fatalf("saw %d chunks before cancellation, want 2", seen)
	}
	if streamErr == nil {
		t.Fatal("expected a cancellation error after cancel")
	}
	if kind := core.ErrKind(streamErr); kind != core.KindCancelled {
		t.Errorf("kind = %v, want cancelled", kind)
	}
}

func TestTestConnection(t *testing.T) {
	t.Run("reachable", func(t *testing.T) {
		backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"data": []}`)
		})
		ok, err := backend.TestConnection(context.Background())
		if err != nil || !ok {
			t.Fatalf("TestConnection = %v, %v, want true, nil", ok, err)
		}
	})

	t.Run("auth rejected", func(t *testing.T) {
		backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		ok, err := backend.TestConnection(context.Background())
		if ok {
			t.Fatal("auth failure must not count as success")
		}
		if kind := core.ErrKind(err); kind != core.KindAuthInvalid {
			t.Errorf("kind = %v, want auth_invalid", kind)
		}
	})
}

func TestEstimateCostNeverNegative(t *testing.T) {
	backend := New("key", "")
	if cost := backend.EstimateCost(userRequest("hello world")); cost < 0 {
		t.Errorf("EstimateCost = %v, want >= 0", cost)
	}
	if cost := backend.EstimateCost(&core.Request{Model: "unknown"}); cost < 0 {
		t.Errorf("EstimateCost = %v, want >= 0 for unknown model", cost)
	}
}
