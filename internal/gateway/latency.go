package gateway

import (
	"math"
	"slices"
	"sync"
	"time"
)

// PushLatency records how long it takes from a candle announcement to the
// refreshed overlays of one subscriber being computed. It keeps the last capacity
// samples in a ring and reports percentiles over them.
type PushLatency struct {
	mu      sync.Mutex
	samples []float64 // ms
	pos     int
	count   int
}

// LatencyStats is the /api/stats view of PushLatency.
type LatencyStats struct {
	Samples int     `json:"samples"`
	P50Ms   float64 `json:"p50_ms"`
	P95Ms   float64 `json:"p95_ms"`
	P99Ms   float64 `json:"p99_ms"`
}

// NewPushLatency creates a tracker holding the last capacity samples.
func NewPushLatency(capacity int) *PushLatency {
	if capacity <= 0 {
		capacity = 1024
	}
	return &PushLatency{samples: make([]float64, capacity)}
}

// Observe adds one sample.
func (pl *PushLatency) Observe(d time.Duration) {
	pl.mu.Lock()
	pl.samples[pl.pos] = float64(d.Microseconds()) / 1000.0
	pl.pos = (pl.pos + 1) % len(pl.samples)
	if pl.count < len(pl.samples) {
		pl.count++
	}
	pl.mu.Unlock()
}

// Stats returns percentiles over the retained samples; all zero when empty.
func (pl *PushLatency) Stats() LatencyStats {
	pl.mu.Lock()
	sorted := slices.Clone(pl.samples[:pl.count])
	pl.mu.Unlock()

	if len(sorted) == 0 {
		return LatencyStats{}
	}
	slices.Sort(sorted)
	return LatencyStats{
		Samples: len(sorted),
		P50Ms:   percentile(sorted, 0.50),
		P95Ms:   percentile(sorted, 0.95),
		P99Ms:   percentile(sorted, 0.99),
	}
}

// percentile interpolates the p-th percentile (0..1) of a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	rank := p * float64(n-1)
	lower := int(math.Floor(rank))
	if lower+1 >= n {
		return sorted[n-1]
	}
	frac := rank - float64(lower)
	return sorted[lower]*(1-frac) + sorted[lower+1]*frac
}
