// Package metrics derives rolling windowed statistics from per-frame
// duration samples.
//
// The window is bounded and insertion is O(1). Percentiles are exact
// nearest-rank over a sorted copy of the window — at the default window size
// of 60 samples sorting at snapshot time is cheaper than maintaining an
// order statistic structure, and the result is deterministic for a given
// sample sequence.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// DefaultWindowSize is the number of frame samples retained.
const DefaultWindowSize = 60

// DefaultHitchThreshold flags samples that blow the 60fps frame budget.
const DefaultHitchThreshold = time.Second / 60

// Stats is a point-in-time summary of the current window.
type Stats struct {
	Samples           int           `json:"samples"`
	Mean              time.Duration `json:"mean_ns"`
	P50               time.Duration `json:"p50_ns"`
	P95               time.Duration `json:"p95_ns"`
	P99               time.Duration `json:"p99_ns"`
	Max               time.Duration `json:"max_ns"`
	HitchCount        int           `json:"hitch_count"`
	CumulativeHitches uint64        `json:"cumulative_hitches"`
}

// Window is a rolling fixed-size window of frame durations. RecordSample may
// be called concurrently with Snapshot.
type Window struct {
	mu        sync.Mutex
	samples   []time.Duration
	next      int
	count     int
	threshold time.Duration
	cumHitch  uint64
}

// NewWindow creates a window. Size and threshold fall back to the defaults
// when non-positive.
func NewWindow(size int, hitchThreshold time.Duration) *Window {
	if size < 1 {
		size = DefaultWindowSize
	}
	if hitchThreshold <= 0 {
		hitchThreshold = DefaultHitchThreshold
	}
	return &Window{
		samples:   make([]time.Duration, size),
		threshold: hitchThreshold,
	}
}

// RecordSample inserts one frame duration. O(1).
func (w *Window) RecordSample(d time.Duration) {
	w.mu.Lock()
	w.samples[w.next] = d
	w.next = (w.next + 1) % len(w.samples)
	if w.count < len(w.samples) {
		w.count++
	}
	if d > w.threshold {
		w.cumHitch++
	}
	w.mu.Unlock()
}

// Snapshot computes statistics over the samples currently in the window.
// HitchCount is windowed; CumulativeHitches never resets.
func (w *Window) Snapshot() Stats {
	w.mu.Lock()
	sorted := make([]time.Duration, w.count)
	copy(sorted, w.samples[:w.count])
	cum := w.cumHitch
	threshold := w.threshold
	w.mu.Unlock()

	stats := Stats{Samples: len(sorted), CumulativeHitches: cum}
	if len(sorted) == 0 {
		return stats
	}

	var total time.Duration
	for _, d := range sorted {
		total += d
		if d > threshold {
			stats.HitchCount++
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	stats.Mean = total / time.Duration(len(sorted))
	stats.P50 = nearestRank(sorted, 50)
	stats.P95 = nearestRank(sorted, 95)
	stats.P99 = nearestRank(sorted, 99)
	stats.Max = sorted[len(sorted)-1]
	return stats
}

// Threshold returns the configured hitch threshold.
func (w *Window) Threshold() time.Duration {
	return w.threshold
}

// nearestRank returns the exact nearest-rank percentile of a sorted slice.
func nearestRank(sorted []time.Duration, pct int) time.Duration {
	rank := (pct*len(sorted) + 99) / 100 // ceil(pct/100 * n)
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
