// Package ondevice adapts in-process inference engines to the canonical
// backend contract. An engine wraps whatever platform runtime is compiled
// into the binary; the adapter contributes the capability gate, single-flight
// model loading and stream normalization.
package ondevice

import (
	"context"
	"iter"
	"sync"

	"golang.org/x/sync/singleflight"

	"llmbridge/internal/backends"
	"llmbridge/internal/core"
)

func init() {
	backends.Register("ondevice", func(cfg core.BackendConfig) (core.Backend, error) {
		return New(PlatformEngine()), nil
	})
}

// Engine is the in-process inference runtime. Implementations are registered
// per platform; a binary without one still builds, it just reports the
// backend as unsupported.
type Engine interface {
	// Name identifies the runtime ("metal", "cuda", ...).
	Name() string

	// Available reports whether the runtime can execute on this machine
	// (accelerator present, libraries loadable). Called before every load.
	Available() error

	// Models lists the locally bundled models.
	Models() []core.ModelDescriptor

	// Load materializes a model. Loading is expensive; the adapter
	// deduplicates concurrent loads and caches the result. progress receives
	// a completion percentage (0-100) with a stage message ("downloading
	// weights", "compiling kernels") and may be nil.
	Load(ctx context.Context, modelID string, progress func(pct int, msg string)) (Model, error)
}

// Model is a loaded model ready for inference.
type Model interface {
	// Generate yields output text fragments in order. The sequence ends when
	// generation completes; ctx cancellation must stop it promptly.
	Generate(ctx context.Context, req *core.Request) iter.Seq2[string, error]
}

// platformEngine is installed by build-tagged constructors. nil means the
// binary carries no runtime for this platform.
var platformEngine Engine

// PlatformEngine returns the engine compiled into this binary, or nil.
func PlatformEngine() Engine { return platformEngine }

// Backend implements core.StreamingBackend over an Engine.
type Backend struct {
	engine Engine

	group  singleflight.Group
	mu     sync.Mutex
	loaded map[string]Model

	// ProgressFunc, when set, observes model load progress.
	ProgressFunc func(modelID string, pct int, msg string)
}

// New creates an on-device backend over engine. A nil engine produces a
// backend that reports unsupported on every call, which keeps registry
// handling uniform across platforms.
func New(engine Engine) *Backend {
	return &Backend{engine: engine, loaded: make(map[string]Model)}
}

func (b *Backend) ID() string { return "ondevice" }

// CheckAvailable gates on the engine capability probe.
func (b *Backend) CheckAvailable(ctx context.Context) error {
	if b.engine == nil {
		return core.NewUnsupportedError("ondevice", "no inference engine in this build")
	}
	if err := b.engine.Available(); err != nil {
		return core.NewUnsupportedError("ondevice", err.Error())
	}
	return nil
}

func (b *Backend) TestConnection(ctx context.Context) (bool, error) {
	if err := b.CheckAvailable(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// load returns the cached model or loads it exactly once, even under
// concurrent first use.
func (b *Backend) load(ctx context.Context, modelID string) (Model, error) {
	b.mu.Lock()
	if m, ok := b.loaded[modelID]; ok {
		b.mu.Unlock()
		return m, nil
	}
	b.mu.Unlock()

	v, err, _ := b.group.Do(modelID, func() (any, error) {
		var progress func(pct int, msg string)
		if b.ProgressFunc != nil {
			progress = func(pct int, msg string) { b.ProgressFunc(modelID, pct, msg) }
		}
		m, err := b.engine.Load(ctx, modelID, progress)
		if err != nil {
			return nil, err
		}
		b.mu.Lock()
		b.loaded[modelID] = m
		b.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, core.ClassifyErr("ondevice", err)
	}
	return v.(Model), nil
}

func (b *Backend) Generate(ctx context.Context, req *core.Request) (*core.Response, error) {
	stream, err := b.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return stream.Collect()
}

func (b *Backend) Stream(ctx context.Context, req *core.Request) (*core.Stream, error) {
	if err := b.CheckAvailable(ctx); err != nil {
		return nil, err
	}
	model, err := b.load(ctx, req.Model)
	if err != nil {
		return nil, err
	}

	gen := model.Generate(ctx, req)
	seq := func(yield func(core.Chunk, error) bool) {
		for text, err := range gen {
			if err != nil {
				yield(core.Chunk{}, core.ClassifyErr("ondevice", err))
				return
			}
			if !yield(core.Chunk{Text: text}, nil) {
				return
			}
		}
		yield(core.Chunk{FinishReason: "stop"}, nil)
	}

	base := core.Response{Model: req.Model, Backend: "ondevice"}
	return core.NewStream(base, seq, func(resp *core.Response) {
		// Engines report no token counts; the estimate stands in. Cost stays
		// zero, on-device inference is not billed.
		resp.Usage = backends.HeuristicUsage(req, resp.Content, 0)
		resp.Cost = 0
	}), nil
}

func (b *Backend) ListModels(ctx context.Context) ([]core.ModelDescriptor, error) {
	if b.engine == nil {
		return nil, core.NewUnsupportedError("ondevice", "no inference engine in this build")
	}
	return b.engine.Models(), nil
}

// EstimateCost is always zero.
func (b *Backend) EstimateCost(req *core.Request) float64 { return 0 }
