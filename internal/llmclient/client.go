// Package llmclient provides the shared HTTP plumbing for backend adapters:
// request marshaling, provider-specific header injection, and canonical error
// classification. There is no retry here; retries are a caller
// concern layered above this package.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"llmbridge/internal/core"
	"llmbridge/internal/httpclient"
)

// HeaderSetter is a hook that attaches backend-specific headers (API keys,
// version headers, request-id forwarding) to an outgoing request. It may fail
// when credentials must be fetched first (token refresh).
type HeaderSetter func(req *http.Request) error

// Client is the base HTTP client shared by all network adapters.
type Client struct {
	httpClient   *http.Client
	backend      string
	baseURL      string
	headerSetter HeaderSetter
}

// New creates a client for the named backend.
func New(backend, baseURL string, headerSetter HeaderSetter) *Client {
	return &Client{
		httpClient:   httpclient.Default(),
		backend:      backend,
		baseURL:      baseURL,
		headerSetter: headerSetter,
	}
}

// NewWithHTTPClient creates a client with a custom HTTP client.
// If hc is nil, http.DefaultClient is used.
func NewWithHTTPClient(backend, baseURL string, hc *http.Client, headerSetter HeaderSetter) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{
		httpClient:   hc,
		backend:      backend,
		baseURL:      baseURL,
		headerSetter: headerSetter,
	}
}

// SetBaseURL updates the base URL.
func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

// BaseURL returns the current base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request describes one HTTP call. Body is JSON-marshaled when not nil.
type Request struct {
	Method   string
	Endpoint string
	Body     any
	Headers  map[string]string
	Query    map[string]string
}

// Do executes the request and unmarshals a 200 response into result.
// Non-200 responses come back as canonical errors.
func (c *Client) Do(ctx context.Context, req Request, result any) error {
	body, err := c.DoRaw(ctx, req)
	if err != nil {
		return err
	}
	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return &core.Error{Kind: core.KindBackend, Backend: c.backend,
				Message: "failed to decode response: " + err.Error(), Err: err}
		}
	}
	return nil
}

// DoRaw executes the request and returns the raw 200 response body.
func (c *Client) DoRaw(ctx context.Context, req Request) ([]byte, error) {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.ClassifyErr(c.backend, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.ClassifyErr(c.backend, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, core.ClassifyStatus(c.backend, resp.StatusCode, body)
	}
	return body, nil
}

// DoStream executes the request and returns the open response body for
// incremental reading. The caller owns closing it; cancelling ctx closes the
// connection underneath the reader.
func (c *Client) DoStream(ctx context.Context, req Request) (io.ReadCloser, error) {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.ClassifyErr(c.backend, err)
	}

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			body = []byte("failed to read error response")
		}
		_ = resp.Body.Close()
		return nil, core.ClassifyStatus(c.backend, resp.StatusCode, body)
	}
	return resp.Body, nil
}

// StatusOf executes the request and returns only the response status code,
// draining the body. Used by connection tests, where ordinary 4xx responses
// are information, not failures.
func (c *Client) StatusOf(ctx context.Context, req Request) (int, error) {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return 0, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, core.ClassifyErr(c.backend, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (c *Client) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	url := c.baseURL + req.Endpoint

	var bodyReader io.Reader
	if req.Body != nil {
		bodyBytes, err := json.Marshal(req.Body)
		if err != nil {
			return nil, &core.Error{Kind: core.KindValidation, Backend: c.backend,
				Message: "failed to marshal request", Err: err}
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, bodyReader)
	if err != nil {
		return nil, &core.Error{Kind: core.KindValidation, Backend: c.backend,
			Message: "failed to create request", Err: err}
	}

	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	if len(req.Query) > 0 {
		q := httpReq.URL.Query()
		for k, v := range req.Query {
			q.Set(k, v)
		}
		httpReq.URL.RawQuery = q.Encode()
	}

	if c.headerSetter != nil {
		if err := c.headerSetter(httpReq); err != nil {
			return nil, core.ClassifyErr(c.backend, err)
		}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	return httpReq, nil
}
