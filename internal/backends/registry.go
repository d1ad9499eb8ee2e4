package backends

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"llmbridge/internal/core"
	"llmbridge/internal/usage"
)

// InstanceStatus reflects the registry's last observation of an instance.
type InstanceStatus string

const (
	StatusReady InstanceStatus = "ready"
	// StatusError marks an instance whose last call failed on credentials.
	// It stays callable; the status is advisory until the config changes.
	StatusError InstanceStatus = "error"
)

// Handle is the registry's wrapper around one backend instance. Every call
// routed through it is validated, measured and accounted, on the failure path
// exactly as on the success path.
type Handle struct {
	backend core.Backend
	config  core.BackendConfig
	tracker *Tracker
	journal usage.Recorder

	mu       sync.Mutex
	status   InstanceStatus
	lastUsed time.Time

	catalog []core.ModelDescriptor
}

// ID returns the backend family id of the wrapped instance.
func (h *Handle) ID() string { return h.backend.ID() }

// Backend exposes the wrapped adapter for capability checks.
func (h *Handle) Backend() core.Backend { return h.backend }

// Config returns the configuration the instance was built from.
func (h *Handle) Config() core.BackendConfig { return h.config }

// Status reports the advisory instance state.
func (h *Handle) Status() InstanceStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Catalog returns the instance's current model list, if any.
func (h *Handle) Catalog() []core.ModelDescriptor {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.catalog
}

func (h *Handle) setCatalog(models []core.ModelDescriptor) {
	h.mu.Lock()
	h.catalog = models
	h.mu.Unlock()
}

// Metrics returns a snapshot of the instance's rolling metrics.
func (h *Handle) Metrics() core.InstanceMetrics {
	m := h.tracker.Snapshot()
	h.mu.Lock()
	m.LastUsed = h.lastUsed
	h.mu.Unlock()
	return m
}

// applyDefaults fills sampling parameters from the instance config when the
// request leaves them unset. The caller's request is never mutated.
func (h *Handle) applyDefaults(req *core.Request) *core.Request {
	d := h.config.Defaults
	if (d.Temperature == nil || req.Temperature != nil) &&
		(d.MaxTokens == nil || req.MaxTokens != nil) &&
		(req.Model != "" || h.config.DefaultModel == "") {
		return req
	}
	r := *req
	if r.Model == "" {
		r.Model = h.config.DefaultModel
	}
	if r.Temperature == nil {
		r.Temperature = d.Temperature
	}
	if r.MaxTokens == nil {
		r.MaxTokens = d.MaxTokens
	}
	return &r
}

func (h *Handle) observe(latency time.Duration, cost float64, err error) {
	h.tracker.Record(latency, cost, err == nil)
	h.mu.Lock()
	h.lastUsed = time.Now()
	if err != nil && core.ErrKind(err) == core.KindAuthInvalid {
		h.status = StatusError
	}
	h.mu.Unlock()
}

// journalize emits one journal entry per call that reached the backend.
// Validation failures never get here; they are the caller's error, not usage.
func (h *Handle) journalize(req *core.Request, resp *core.Response, latency time.Duration, err error) {
	h.mu.Lock()
	journal := h.journal
	h.mu.Unlock()
	if journal == nil {
		return
	}
	journal.Write(usage.NewEntry(h.config.ID, req.Model, resp, latency, err))
}

// Generate validates, executes and accounts one completion call.
func (h *Handle) Generate(ctx context.Context, req *core.Request) (*core.Response, error) {
	req = h.applyDefaults(req)
	start := time.Now()

	if err := ValidateRequest(h.backend.ID(), req, h.Catalog()); err != nil {
		h.observe(time.Since(start), 0, err)
		return nil, err
	}

	resp, err := h.backend.Generate(ctx, req)
	latency := time.Since(start)
	if err != nil {
		h.observe(latency, 0, err)
		h.journalize(req, nil, latency, err)
		return nil, err
	}
	resp.LatencyMS = latency.Milliseconds()
	h.observe(latency, resp.Cost, nil)
	h.journalize(req, resp, latency, nil)
	return resp, nil
}

// Stream validates and executes a streaming call. Metrics are recorded when
// the returned stream terminates: full consumption, mid-stream error and
// consumer abandonment all count exactly once.
func (h *Handle) Stream(ctx context.Context, req *core.Request) (*core.Stream, error) {
	req = h.applyDefaults(req)
	start := time.Now()

	if err := ValidateRequest(h.backend.ID(), req, h.Catalog()); err != nil {
		h.observe(time.Since(start), 0, err)
		return nil, err
	}

	stream, err := core.StreamAny(ctx, h.backend, req)
	if err != nil {
		h.observe(time.Since(start), 0, err)
		h.journalize(req, nil, time.Since(start), err)
		return nil, err
	}
	stream = stream.Tap(func(resp *core.Response, termErr error) {
		latency := time.Since(start)
		cost := 0.0
		if resp != nil {
			resp.LatencyMS = latency.Milliseconds()
			cost = resp.Cost
		}
		h.observe(latency, cost, termErr)
		h.journalize(req, resp, latency, termErr)
	})
	return stream, nil
}

// EstimateCost delegates to the adapter's pre-flight prediction.
func (h *Handle) EstimateCost(req *core.Request) float64 {
	return h.backend.EstimateCost(h.applyDefaults(req))
}

// TestConnection proxies the wrapped adapter's probe and clears an advisory
// error status when the probe succeeds.
func (h *Handle) TestConnection(ctx context.Context) (bool, error) {
	ok, err := h.backend.TestConnection(ctx)
	if ok {
		h.mu.Lock()
		h.status = StatusReady
		h.mu.Unlock()
	}
	return ok, err
}

// Registry owns the live backend instances, exactly one per enabled config.
// It is safe for concurrent use; handles stay valid after Upsert replaces the
// instance they came from, they just stop receiving new lookups.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]*Handle
	journal usage.Recorder
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*Handle)}
}

// SetJournal installs a usage journal on the registry and on every handle it
// currently holds. Future Upserts pick it up automatically.
func (r *Registry) SetJournal(journal usage.Recorder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.journal = journal
	for _, h := range r.handles {
		h.mu.Lock()
		h.journal = journal
		h.mu.Unlock()
	}
}

// Upsert builds an instance for cfg and installs it, replacing any previous
// instance for the same id. Disabled configs are removed instead.
func (r *Registry) Upsert(ctx context.Context, cfg core.BackendConfig) (*Handle, error) {
	if !cfg.Enabled {
		r.Remove(cfg.ID)
		return nil, nil
	}
	backend, err := Create(cfg)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	journal := r.journal
	r.mu.RUnlock()

	h := &Handle{
		backend: backend,
		config:  cfg,
		tracker: NewTracker(cfg.ID),
		journal: journal,
		status:  StatusReady,
	}
	// Catalog fetch is best effort; validation falls back to structural
	// checks when the backend cannot enumerate models right now.
	if models, err := backend.ListModels(ctx); err == nil {
		h.catalog = models
	} else {
		slog.Warn("model catalog unavailable at registration",
			"backend", cfg.ID,
			"error", err,
		)
	}

	r.mu.Lock()
	r.handles[cfg.ID] = h
	r.mu.Unlock()

	slog.Info("backend registered",
		"backend", cfg.ID,
		"kind", cfg.Kind,
		"models", len(h.catalog),
	)
	return h, nil
}

// Remove drops the instance for id, if any.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, id)
}

// Get returns the handle for id.
func (r *Registry) Get(id string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[id]
	return h, ok
}

// List returns the registered handles ordered by config priority, then id.
func (r *Registry) List() []*Handle {
	r.mu.RLock()
	out := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].config.Priority != out[j].config.Priority {
			return out[i].config.Priority > out[j].config.Priority
		}
		return out[i].config.ID < out[j].config.ID
	})
	return out
}

// SeedCatalogs fills model lists from a cached snapshot for instances whose
// live fetch failed at registration. Instances with a live catalog keep it.
func (r *Registry) SeedCatalogs(catalogs map[string][]core.ModelDescriptor) {
	for id, models := range catalogs {
		if h, ok := r.Get(id); ok && len(h.Catalog()) == 0 {
			h.setCatalog(models)
		}
	}
}

// Catalogs snapshots every instance's model list, keyed by instance id.
// Instances without a catalog are omitted.
func (r *Registry) Catalogs() map[string][]core.ModelDescriptor {
	out := make(map[string][]core.ModelDescriptor)
	for _, h := range r.List() {
		if models := h.Catalog(); len(models) > 0 {
			out[h.config.ID] = models
		}
	}
	return out
}

// RefreshCatalogs re-fetches each instance's model list. Failures keep the
// previous catalog; discovery staying stale beats losing validation data.
func (r *Registry) RefreshCatalogs(ctx context.Context) {
	for _, h := range r.List() {
		models, err := h.Backend().ListModels(ctx)
		if err != nil {
			slog.Warn("catalog refresh failed", "backend", h.config.ID, "error", err)
			continue
		}
		if len(models) > 0 {
			h.setCatalog(models)
		}
	}
}

// Metrics returns a snapshot per registered instance.
func (r *Registry) Metrics() []core.InstanceMetrics {
	handles := r.List()
	out := make([]core.InstanceMetrics, 0, len(handles))
	for _, h := range handles {
		out = append(out, h.Metrics())
	}
	return out
}
