package llmclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"llmbridge/internal/core"
)

func TestClientDo(t *testing.T) {
	t.Run("applies headers and decodes response", func(t *testing.T) {
		var gotAuth string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			w.Write([]byte(`{"ok": true}`))
		}))
		defer srv.Close()

		c := NewWithHTTPClient("openai", srv.URL, srv.Client(), func(req *http.Request) error {
			req.Header.Set("Authorization", "Bearer sk-test")
			return nil
		})

		var out struct {
			OK bool `json:"ok"`
		}
		err := c.Do(context.Background(), Request{Method: http.MethodGet, Endpoint: "/models"}, &out)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !out.OK {
			t.Error("response not decoded")
		}
		if gotAuth != "Bearer sk-test" {
			t.Errorf("auth header = %q", gotAuth)
		}
	})

	t.Run("classifies error statuses", func(t *testing.T) {
		cases := []struct {
			status int
			kind   core.ErrorKind
		}{
			{http.StatusUnauthorized, core.KindAuthInvalid},
			{http.StatusTooManyRequests, core.KindRateLimited},
			{http.StatusInternalServerError, core.KindUnavailable},
			{http.StatusNotFound, core.KindBackend},
		}
		for _, tc := range cases {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(`{"error":{"message":"nope"}}`))
			}))
			c := NewWithHTTPClient("openai", srv.URL, srv.Client(), nil)
			err := c.Do(context.Background(), Request{Method: http.MethodGet, Endpoint: "/"}, nil)
			if core.ErrKind(err) != tc.kind {
				t.Errorf("status %d: kind = %q, want %q", tc.status, core.ErrKind(err), tc.kind)
			}
			srv.Close()
		}
	})

	t.Run("cancellation surfaces as cancelled", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		defer srv.Close()

		c := NewWithHTTPClient("openai", srv.URL, srv.Client(), nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := c.Do(ctx, Request{Method: http.MethodGet, Endpoint: "/"}, nil)
		if core.ErrKind(err) != core.KindCancelled {
			t.Errorf("kind = %q, want cancelled", core.ErrKind(err))
		}
	})

	t.Run("header setter failure aborts before the call", func(t *testing.T) {
		called := false
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			called = true
		}))
		defer srv.Close()

		c := NewWithHTTPClient("azure", srv.URL, srv.Client(), func(*http.Request) error {
			return core.NewError(core.KindAuthInvalid, "azure", "token exchange failed")
		})
		err := c.Do(context.Background(), Request{Method: http.MethodGet, Endpoint: "/"}, nil)
		if core.ErrKind(err) != core.KindAuthInvalid {
			t.Errorf("kind = %q, want auth_invalid", core.ErrKind(err))
		}
		if called {
			t.Error("no network call should be made when the header setter fails")
		}
	})
}

func TestClientStatusOf(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewWithHTTPClient("gemini", srv.URL, srv.Client(), nil)
	status, err := c.StatusOf(context.Background(), Request{Method: http.MethodGet, Endpoint: "/"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 reported, not raised", status)
	}
}
