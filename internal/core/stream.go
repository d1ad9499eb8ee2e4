package core

import (
	"iter"
	"strings"
)

// Chunk is one incremental fragment of generated text. The final chunk of a
// stream usually carries the finish reason and, when the backend reports
// them, token counts.
type Chunk struct {
	Text         string
	FinishReason string
	Usage        *Usage
}

// Stream is a cancellable lazy sequence of chunks with a terminal aggregate:
// iterate with Iter for incremental delivery, or call Collect for the
// assembled Response. Ordering is part of the type: the Nth chunk yielded is
// the Nth fragment the backend emitted.
//
// Callers must consume the stream (a full iteration, a loop break, or
// Collect); the underlying response body is released when the iterator
// terminates.
type Stream struct {
	base     Response
	seq      iter.Seq2[Chunk, error]
	finalize func(*Response)
}

// NewStream builds a stream over seq. base carries the response fields known
// up front (backend, model); finalize, if non-nil, runs once over the
// accumulated response after a successful iteration. Adapters use it to fill
// cost and latency from the final usage counts.
func NewStream(base Response, seq iter.Seq2[Chunk, error], finalize func(*Response)) *Stream {
	return &Stream{base: base, seq: seq, finalize: finalize}
}

// NewSingleChunkStream wraps an already-complete response as a one-chunk
// stream. Used as the fallback for backends without incremental delivery.
func NewSingleChunkStream(resp *Response) *Stream {
	base := *resp
	base.Content = ""
	seq := func(yield func(Chunk, error) bool) {
		usage := resp.Usage
		yield(Chunk{Text: resp.Content, FinishReason: resp.FinishReason, Usage: &usage}, nil)
	}
	return &Stream{base: base, seq: seq, finalize: nil}
}

// Iter returns the chunk sequence. A non-nil error terminates the sequence;
// no further chunks follow it.
func (s *Stream) Iter() iter.Seq2[Chunk, error] {
	return s.seq
}

// Collect drains the stream and assembles the terminal Response. The
// response content equals the concatenation of every chunk, in order.
func (s *Stream) Collect() (*Response, error) {
	resp := s.base
	var sb strings.Builder
	for chunk, err := range s.seq {
		if err != nil {
			return nil, err
		}
		sb.WriteString(chunk.Text)
		if chunk.Usage != nil {
			resp.Usage = *chunk.Usage
		}
		if chunk.FinishReason != "" {
			resp.FinishReason = chunk.FinishReason
		}
	}
	resp.Content = sb.String()
	if s.finalize != nil {
		s.finalize(&resp)
	}
	return &resp, nil
}

// Tap returns a stream that yields the same chunks while accumulating the
// terminal response internally, invoking done exactly once when iteration
// ends, whether normally, with an error, or abandoned by the consumer. The registry
// uses this to record metrics for streaming calls without forcing callers
// through Collect.
func (s *Stream) Tap(done func(resp *Response, err error)) *Stream {
	wrapped := func(yield func(Chunk, error) bool) {
		resp := s.base
		var sb strings.Builder
		var streamErr error
		for chunk, err := range s.seq {
			if err != nil {
				streamErr = err
				yield(Chunk{}, err)
				break
			}
			sb.WriteString(chunk.Text)
			if chunk.Usage != nil {
				resp.Usage = *chunk.Usage
			}
			if chunk.FinishReason != "" {
				resp.FinishReason = chunk.FinishReason
			}
			if !yield(chunk, nil) {
				break
			}
		}
		resp.Content = sb.String()
		if streamErr == nil && s.finalize != nil {
			s.finalize(&resp)
		}
		done(&resp, streamErr)
	}
	return &Stream{base: s.base, seq: wrapped, finalize: s.finalize}
}
