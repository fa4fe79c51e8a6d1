// Package timeseries tracks rolling rates of forwarded output lines.
//
// A RateTracker keeps a cumulative counter and a ring of one-second samples.
// Rates over the last 1s, 10s and 60s are computed from the sample closest
// to the start of each window.
package timeseries

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// ringBufferSize is the number of samples to retain (60s at 1 sample/sec).
	ringBufferSize = 60

	// SampleInterval is how often Run records a sample.
	SampleInterval = time.Second

	window1s  = 1 * time.Second
	window10s = 10 * time.Second
	window60s = 60 * time.Second
)

// Clock interface for testing with deterministic time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type sample struct {
	timestamp time.Time
	total     int64
}

// RateTracker counts events and reports rolling per-second rates.
type RateTracker struct {
	total atomic.Int64

	samples  []sample
	writeIdx int
	mu       sync.RWMutex

	startTime time.Time
	clock     Clock
}

// Rates is a point-in-time view of a RateTracker.
type Rates struct {
	Total int64

	// Events per second over each window.
	Per1s   float64
	Per10s  float64
	Per60s  float64
	Overall float64
}

// NewRateTracker creates a tracker using the wall clock.
func NewRateTracker() *RateTracker {
	return NewRateTrackerWithClock(realClock{})
}

// NewRateTrackerWithClock creates a tracker with a custom clock.
func NewRateTrackerWithClock(clock Clock) *RateTracker {
	now := clock.Now()
	t := &RateTracker{
		samples:   make([]sample, 0, ringBufferSize),
		startTime: now,
		clock:     clock,
	}
	t.samples = append(t.samples, sample{timestamp: now})
	return t
}

// Add counts n events. Lock-free; non-positive n is ignored.
func (t *RateTracker) Add(n int64) {
	if n > 0 {
		t.total.Add(n)
	}
}

// RecordSample stores the current total in the ring.
func (t *RateTracker) RecordSample() {
	s := sample{timestamp: t.clock.Now(), total: t.total.Load()}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.samples) < ringBufferSize {
		t.samples = append(t.samples, s)
		return
	}
	t.samples[t.writeIdx] = s
	t.writeIdx = (t.writeIdx + 1) % ringBufferSize
}

// Run records a sample every SampleInterval until ctx ends.
func (t *RateTracker) Run(ctx context.Context) {
	ticker := time.NewTicker(SampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.RecordSample()
		}
	}
}

// Rates computes the current rolling rates.
func (t *RateTracker) Rates() Rates {
	now := t.clock.Now()
	total := t.total.Load()

	t.mu.RLock()
	defer t.mu.RUnlock()

	r := Rates{Total: total}
	if elapsed := now.Sub(t.startTime).Seconds(); elapsed > 0 {
		r.Overall = float64(total) / elapsed
	}
	r.Per1s = t.rateOver(now, total, window1s)
	r.Per10s = t.rateOver(now, total, window10s)
	r.Per60s = t.rateOver(now, total, window60s)
	return r
}

// rateOver uses the newest sample at or before the window start, or the
// oldest sample when history is shorter than the window. mu must be held.
func (t *RateTracker) rateOver(now time.Time, total int64, window time.Duration) float64 {
	target := now.Add(-window)

	var best *sample
	for i := range t.samples {
		s := &t.samples[i]
		if s.timestamp.After(target) {
			continue
		}
		if best == nil || s.timestamp.After(best.timestamp) {
			best = s
		}
	}
	if best == nil {
		best = t.oldest()
	}
	if best == nil {
		return 0
	}

	elapsed := now.Sub(best.timestamp).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(total-best.total) / elapsed
}

func (t *RateTracker) oldest() *sample {
	if len(t.samples) == 0 {
		return nil
	}
	if len(t.samples) < ringBufferSize {
		return &t.samples[0]
	}
	return &t.samples[t.writeIdx]
}

// Reset clears all data and restarts tracking.
func (t *RateTracker) Reset() {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.total.Store(0)
	t.samples = append(t.samples[:0], sample{timestamp: now})
	t.writeIdx = 0
	t.startTime = now
}

// SampleCount returns the number of samples in the ring.
func (t *RateTracker) SampleCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.samples)
}
