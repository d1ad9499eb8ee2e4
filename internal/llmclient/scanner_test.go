package llmclient

import (
	"context"
	"io"
	"testing"

	"llmbridge/internal/core"
)

// drip yields the source a few bytes per Read so frames straddle read
// boundaries, the way they do on a real network stream.
type drip struct {
	data   []byte
	step   int
	pos    int
	closed bool
}

func (d *drip) Read(p []byte) (int, error) {
	if d.pos >= len(d.data) {
		return 0, io.EOF
	}
	end := d.pos + d.step
	if end > len(d.data) {
		end = len(d.data)
	}
	n := copy(p, d.data[d.pos:end])
	d.pos += n
	return n, nil
}

func (d *drip) Close() error {
	d.closed = true
	return nil
}

func TestSSEScanner(t *testing.T) {
	t.Run("frames split across reads", func(t *testing.T) {
		body := &drip{
			data: []byte("event: delta\ndata: {\"text\":\"hello\"}\n\ndata: {\"text\":\"world\"}\n\ndata: [DONE]\n\n"),
			step: 3,
		}
		s := NewSSEScanner(context.Background(), "openai", body, "[DONE]")

		var payloads []string
		for {
			p, err := s.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			payloads = append(payloads, string(p))
		}

		if len(payloads) != 2 {
			t.Fatalf("got %d payloads, want 2: %v", len(payloads), payloads)
		}
		if payloads[0] != `{"text":"hello"}` || payloads[1] != `{"text":"world"}` {
			t.Errorf("payloads = %v", payloads)
		}
		if !body.closed {
			t.Error("body should be closed after sentinel")
		}
	})

	t.Run("skips comments and event lines", func(t *testing.T) {
		body := &drip{data: []byte(": keepalive\nevent: ping\ndata: x\n"), step: 64}
		s := NewSSEScanner(context.Background(), "openai", body, "")
		p, err := s.Next()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(p) != "x" {
			t.Errorf("payload = %q, want x", p)
		}
	})

	t.Run("final frame without trailing newline", func(t *testing.T) {
		body := &drip{data: []byte("data: last"), step: 4}
		s := NewSSEScanner(context.Background(), "openai", body, "")
		p, err := s.Next()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(p) != "last" {
			t.Errorf("payload = %q, want last", p)
		}
		if _, err := s.Next(); err != io.EOF {
			t.Errorf("err = %v, want io.EOF", err)
		}
	})

	t.Run("cancellation releases the body", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		body := &drip{data: []byte("data: a\ndata: b\n"), step: 64}
		s := NewSSEScanner(ctx, "openai", body, "")

		if _, err := s.Next(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		cancel()
		_, err := s.Next()
		if core.ErrKind(err) != core.KindCancelled {
			t.Errorf("err kind = %q, want cancelled", core.ErrKind(err))
		}
		if !body.closed {
			t.Error("body should be closed on cancellation")
		}
	})
}

func TestLineScanner(t *testing.T) {
	t.Run("lines split across reads", func(t *testing.T) {
		body := &drip{data: []byte("{\"a\":1}\n\n{\"b\":2}\n{\"c\":3}"), step: 2}
		s := NewLineScanner(context.Background(), "ollama", body)

		var lines []string
		for {
			l, err := s.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			lines = append(lines, string(l))
		}
		want := []string{`{"a":1}`, `{"b":2}`, `{"c":3}`}
		if len(lines) != len(want) {
			t.Fatalf("got %d lines, want %d: %v", len(lines), len(want), lines)
		}
		for i := range want {
			if lines[i] != want[i] {
				t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
			}
		}
	})

	t.Run("cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		body := &drip{data: []byte("{\"a\":1}\n"), step: 8}
		s := NewLineScanner(ctx, "ollama", body)
		_, err := s.Next()
		if core.ErrKind(err) != core.KindCancelled {
			t.Errorf("err kind = %q, want cancelled", core.ErrKind(err))
		}
		if !body.closed {
			t.Error("body should be closed on cancellation")
		}
	})
}
