// Package httpclient builds the HTTP clients the backend adapters share.
// Model APIs hold a connection open for minutes while tokens stream, so the
// defaults are tuned for long-lived responses rather than short RPCs.
package httpclient

import (
	"net"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Config carries the timeouts that differ between deployments. Everything
// else about the transport is fixed.
type Config struct {
	// Timeout bounds the whole request including the response body. Zero
	// means no client-level limit; per-call deadlines still apply through
	// the request context.
	Timeout time.Duration

	// ResponseHeaderTimeout bounds the wait for first byte after the request
	// is written. Generation latency lands here, not in Timeout.
	ResponseHeaderTimeout time.Duration
}

// DefaultConfig returns timeouts suited to generation workloads, both 600s
// unless overridden by environment:
//
//	LLMBRIDGE_HTTP_TIMEOUT                  overall request timeout
//	LLMBRIDGE_HTTP_RESPONSE_HEADER_TIMEOUT  time to first response byte
//
// Values are plain seconds or Go duration strings ("90s", "10m").
func DefaultConfig() Config {
	return Config{
		Timeout:               envDuration("LLMBRIDGE_HTTP_TIMEOUT", 600*time.Second),
		ResponseHeaderTimeout: envDuration("LLMBRIDGE_HTTP_RESPONSE_HEADER_TIMEOUT", 600*time.Second),
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	return fallback
}

// New builds a client over a keep-alive transport sized for a handful of
// concurrently active backends.
func New(cfg Config) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}

// Default is shorthand for New(DefaultConfig()).
func Default() *http.Client {
	return New(DefaultConfig())
}
