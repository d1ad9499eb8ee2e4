package backends

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrackerMeanLatency(t *testing.T) {
	tr := NewTracker("test")
	tr.Record(100*time.Millisecond, 0, true)
	tr.Record(300*time.Millisecond, 0, true)

	m := tr.Snapshot()
	assert.Equal(t, int64(2), m.TotalRequests)
	assert.InDelta(t, 200, m.MeanLatencyMS, 0.001)
}

func TestTrackerSuccessRate(t *testing.T) {
	tr := NewTracker("test")
	tr.Record(time.Millisecond, 0, true)
	tr.Record(time.Millisecond, 0, true)
	tr.Record(time.Millisecond, 0, false)

	assert.InDelta(t, 2.0/3.0, tr.Snapshot().SuccessRate, 1e-9)
}

func TestTrackerSuccessRateOrderIndependent(t *testing.T) {
	// k successes out of n must converge to k/n regardless of arrival order.
	const n, k = 40, 17
	outcomes := make([]bool, n)
	for i := 0; i < k; i++ {
		outcomes[i] = true
	}
	rng := rand.New(rand.NewSource(3))

	for trial := 0; trial < 5; trial++ {
		rng.Shuffle(n, func(i, j int) { outcomes[i], outcomes[j] = outcomes[j], outcomes[i] })
		tr := NewTracker("test")
		for _, ok := range outcomes {
			tr.Record(time.Millisecond, 0, ok)
		}
		assert.InDelta(t, float64(k)/float64(n), tr.Snapshot().SuccessRate, 1e-9)
	}
}

func TestTrackerCostAccumulates(t *testing.T) {
	tr := NewTracker("test")
	tr.Record(time.Millisecond, 0.002, true)
	tr.Record(time.Millisecond, 0.003, false)

	m := tr.Snapshot()
	assert.InDelta(t, 0.005, m.TotalCost, 1e-9)
	assert.False(t, m.LastUsed.IsZero())
}
