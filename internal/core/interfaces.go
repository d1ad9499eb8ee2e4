// Package core defines the canonical contract shared by all backend adapters.
package core

import "context"

// Backend is the capability surface every adapter implements. Shared logic
// lives in composed helpers (internal/backends), not a base type: the wire
// protocols are too different for a useful inheritance-style hierarchy.
type Backend interface {
	// ID returns the backend family id ("openai", "ollama", ...).
	ID() string

	// CheckAvailable verifies the backend can serve requests at all
	// (reachable server, present accelerator). Returns nil if available.
	CheckAvailable(ctx context.Context) error

	// TestConnection makes a minimal privileged call and reports success.
	// Ordinary 4xx responses that merely indicate "reachable but request
	// shape wrong" count as success; only auth and transport failures do not.
	TestConnection(ctx context.Context) (bool, error)

	// Generate executes a completion request. The request is validated
	// against the backend's catalog before any network call.
	Generate(ctx context.Context, req *Request) (*Response, error)

	// ListModels returns the backend's model catalog. Hosted backends serve
	// a fixed list; local backends discover it from the server.
	ListModels(ctx context.Context) ([]ModelDescriptor, error)

	// EstimateCost predicts the cost of a request before it is sent, using
	// the same price table as post-flight accounting. Never negative.
	EstimateCost(req *Request) float64
}

// StreamingBackend is implemented by adapters that can deliver output
// incrementally. Callers must treat its absence as "call Generate and deliver
// the whole result as one chunk". StreamAny does exactly that.
type StreamingBackend interface {
	Backend

	// Stream executes a completion request and returns a lazy chunk
	// sequence. Chunks are yielded strictly in emission order; cancelling
	// ctx stops the sequence with a Cancelled error and releases the
	// underlying stream.
	Stream(ctx context.Context, req *Request) (*Stream, error)
}

// StreamAny streams from b when it supports streaming, and otherwise falls
// back to a single-chunk stream wrapping a synchronous Generate call.
func StreamAny(ctx context.Context, b Backend, req *Request) (*Stream, error) {
	if sb, ok := b.(StreamingBackend); ok {
		return sb.Stream(ctx, req)
	}
	resp, err := b.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	resp.Fallback = true
	return NewSingleChunkStream(resp), nil
}
