package backends

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"llmbridge/internal/core"
)

var (
	promRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llmbridge_requests_total",
		Help: "Completed generation calls by backend and outcome.",
	}, []string{"backend", "outcome"})

	promLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llmbridge_request_duration_seconds",
		Help:    "End-to-end generation latency.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"backend"})

	promCost = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llmbridge_cost_total",
		Help: "Accumulated cost in USD by backend.",
	}, []string{"backend"})
)

// Tracker accumulates per-instance rolling metrics. Updates use incremental
// formulas so no per-call history is retained; the mean and success rate after
// n calls are independent of the order in which equal outcomes arrive.
type Tracker struct {
	mu sync.Mutex
	m  core.InstanceMetrics
}

// NewTracker returns a tracker for one backend instance.
func NewTracker(backendID string) *Tracker {
	return &Tracker{m: core.InstanceMetrics{BackendID: backendID}}
}

// Record folds one completed call into the rolling state. It runs on every
// outcome, including validation failures that never reached the network.
func (t *Tracker) Record(latency time.Duration, cost float64, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.m.TotalRequests++
	n := float64(t.m.TotalRequests)

	latMS := float64(latency.Milliseconds())
	t.m.MeanLatencyMS += (latMS - t.m.MeanLatencyMS) / n

	b := 0.0
	if success {
		b = 1.0
	}
	t.m.SuccessRate = (t.m.SuccessRate*(n-1) + b) / n

	t.m.TotalCost += cost
	t.m.LastUsed = time.Now()

	outcome := "error"
	if success {
		outcome = "success"
	}
	promRequests.WithLabelValues(t.m.BackendID, outcome).Inc()
	promLatency.WithLabelValues(t.m.BackendID).Observe(latency.Seconds())
	if cost > 0 {
		promCost.WithLabelValues(t.m.BackendID).Add(cost)
	}
}

// Snapshot returns a copy of the current rolling state.
func (t *Tracker) Snapshot() core.InstanceMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.m
}
