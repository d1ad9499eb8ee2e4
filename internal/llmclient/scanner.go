package llmclient

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"llmbridge/internal/core"
)

// SSEScanner reads Server-Sent-Event frames from a response body. Frame
// boundaries are never guaranteed to align with network read boundaries;
// the bufio layer carries partial lines across reads. event: lines and
// comments are skipped; only data: payloads are returned.
//
// The scanner owns the body: it is closed when the stream ends, errors, or
// the context is cancelled.
type SSEScanner struct {
	backend  string
	ctx      context.Context
	reader   *bufio.Reader
	body     io.ReadCloser
	sentinel string
	closed   bool
}

// NewSSEScanner wraps body. sentinel, when non-empty, is the data payload
// that terminates the stream (e.g. "[DONE]").
func NewSSEScanner(ctx context.Context, backend string, body io.ReadCloser, sentinel string) *SSEScanner {
	return &SSEScanner{
		backend:  backend,
		ctx:      ctx,
		reader:   bufio.NewReader(body),
		body:     body,
		sentinel: sentinel,
	}
}

// Next returns the next data payload. io.EOF signals normal termination
// (end of body or the sentinel). A cancelled context surfaces as a canonical
// Cancelled error, and the body is released before returning.
func (s *SSEScanner) Next() ([]byte, error) {
	if s.closed {
		return nil, io.EOF
	}
	for {
		if err := s.ctx.Err(); err != nil {
			s.Close()
			return nil, core.ClassifyErr(s.backend, err)
		}

		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			// A final unterminated line may still carry a frame.
			line = bytes.TrimSpace(line)
			if err == io.EOF && bytes.HasPrefix(line, []byte("data:")) {
				s.Close()
				return s.payload(line)
			}
			s.Close()
			if err == io.EOF {
				return nil, io.EOF
			}
			if ctxErr := s.ctx.Err(); ctxErr != nil {
				return nil, core.ClassifyErr(s.backend, ctxErr)
			}
			return nil, core.ClassifyErr(s.backend, err)
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] == ':' || bytes.HasPrefix(line, []byte("event:")) {
			continue
		}
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		return s.payload(line)
	}
}

func (s *SSEScanner) payload(line []byte) ([]byte, error) {
	data := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
	if s.sentinel != "" && string(data) == s.sentinel {
		s.Close()
		return nil, io.EOF
	}
	return data, nil
}

// Close releases the underlying body. Safe to call more than once.
func (s *SSEScanner) Close() {
	if s.closed {
		return
	}
	s.closed = true
	_ = s.body.Close()
}

// LineScanner reads newline-delimited JSON objects, one per Next call, with
// the same partial-line buffering and cancellation contract as SSEScanner.
type LineScanner struct {
	backend string
	ctx     context.Context
	reader  *bufio.Reader
	body    io.ReadCloser
	closed  bool
}

// NewLineScanner wraps body for NDJSON reading.
func NewLineScanner(ctx context.Context, backend string, body io.ReadCloser) *LineScanner {
	return &LineScanner{
		backend: backend,
		ctx:     ctx,
		reader:  bufio.NewReader(body),
		body:    body,
	}
}

// Next returns the next non-empty line. io.EOF signals normal termination.
func (s *LineScanner) Next() ([]byte, error) {
	if s.closed {
		return nil, io.EOF
	}
	for {
		if err := s.ctx.Err(); err != nil {
			s.Close()
			return nil, core.ClassifyErr(s.backend, err)
		}

		line, err := s.reader.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if err != nil {
			s.Close()
			if err == io.EOF {
				if len(line) > 0 {
					return line, nil
				}
				return nil, io.EOF
			}
			if ctxErr := s.ctx.Err(); ctxErr != nil {
				return nil, core.ClassifyErr(s.backend, ctxErr)
			}
			return nil, core.ClassifyErr(s.backend, err)
		}
		if len(line) == 0 {
			continue
		}
		return line, nil
	}
}

// Close releases the underlying body. Safe to call more than once.
func (s *LineScanner) Close() {
	if s.closed {
		return
	}
	s.closed = true
	_ = s.body.Close()
}
