// Package stats tracks launch outcomes for the dashboard and the exit
// summary.
package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/influxdata/tdigest"
)

// DefaultRecentLaunches is how many finished launches are remembered.
const DefaultRecentLaunches = 20

// LaunchRecord describes one finished launch.
type LaunchRecord struct {
	ID        string
	Args      []string
	ExitCode  int
	Duration  time.Duration
	EndTime   time.Time
	Cancelled bool
}

// Success reports whether the launch exited with code 0.
func (r LaunchRecord) Success() bool {
	return r.ExitCode == 0
}

// LaunchStats accumulates launch outcomes. Safe for concurrent use.
type LaunchStats struct {
	mu        sync.Mutex
	startTime time.Time

	started       int64
	spawnFailures int64
	succeeded     int64
	failed        int64
	cancelled     int64
	exitCodes     map[int]int64
	lines         map[string]int64

	// Launch durations in seconds. ~100 centroids, a few KB.
	durations   *tdigest.TDigest
	maxDuration time.Duration
	sumDuration time.Duration

	recent    []LaunchRecord
	recentCap int
}

// NewLaunchStats creates an empty LaunchStats keeping the last recentCap
// finished launches (DefaultRecentLaunches if <= 0).
func NewLaunchStats(recentCap int) *LaunchStats {
	if recentCap <= 0 {
		recentCap = DefaultRecentLaunches
	}
	return &LaunchStats{
		startTime: time.Now(),
		exitCodes: make(map[int]int64),
		lines:     make(map[string]int64),
		durations: tdigest.NewWithCompression(100),
		recentCap: recentCap,
	}
}

// RecordStart counts a spawned process.
func (s *LaunchStats) RecordStart() {
	s.mu.Lock()
	s.started++
	s.mu.Unlock()
}

// RecordSpawnFailure counts a launch whose process never started.
func (s *LaunchStats) RecordSpawnFailure() {
	s.mu.Lock()
	s.spawnFailures++
	s.mu.Unlock()
}

// RecordLine counts one forwarded line for the given event name.
func (s *LaunchStats) RecordLine(stream string) {
	s.mu.Lock()
	s.lines[stream]++
	s.mu.Unlock()
}

// RecordExit adds a finished launch.
func (s *LaunchStats) RecordExit(rec LaunchRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Success() {
		s.succeeded++
	} else {
		s.failed++
	}
	if rec.Cancelled {
		s.cancelled++
	}
	s.exitCodes[rec.ExitCode]++

	if rec.Duration >= 0 {
		s.durations.Add(rec.Duration.Seconds(), 1)
		s.sumDuration += rec.Duration
		if rec.Duration > s.maxDuration {
			s.maxDuration = rec.Duration
		}
	}

	s.recent = append(s.recent, rec)
	if len(s.recent) > s.recentCap {
		s.recent = s.recent[len(s.recent)-s.recentCap:]
	}
}

// Aggregate is a point-in-time view of LaunchStats.
type Aggregate struct {
	Elapsed time.Duration

	Started       int64
	SpawnFailures int64
	Succeeded     int64
	Failed        int64
	Cancelled     int64
	ExitCodes     map[int]int64
	Lines         map[string]int64

	DurationP50  time.Duration
	DurationP95  time.Duration
	DurationP99  time.Duration
	DurationMax  time.Duration
	DurationMean time.Duration

	// Recent finished launches, newest first.
	Recent []LaunchRecord
}

// Finished returns the number of launches that exited.
func (a *Aggregate) Finished() int64 {
	return a.Succeeded + a.Failed
}

// SuccessRate returns the fraction of finished launches that succeeded.
func (a *Aggregate) SuccessRate() float64 {
	if a.Finished() == 0 {
		return 0
	}
	return float64(a.Succeeded) / float64(a.Finished())
}

// Aggregate computes the current view.
func (s *LaunchStats) Aggregate() *Aggregate {
	s.mu.Lock()
	defer s.mu.Unlock()

	agg := &Aggregate{
		Elapsed:       time.Since(s.startTime),
		Started:       s.started,
		SpawnFailures: s.spawnFailures,
		Succeeded:     s.succeeded,
		Failed:        s.failed,
		Cancelled:     s.cancelled,
		ExitCodes:     make(map[int]int64, len(s.exitCodes)),
		Lines:         make(map[string]int64, len(s.lines)),
		DurationMax:   s.maxDuration,
		Recent:        make([]LaunchRecord, 0, len(s.recent)),
	}
	for code, n := range s.exitCodes {
		agg.ExitCodes[code] = n
	}
	for stream, n := range s.lines {
		agg.Lines[stream] = n
	}
	for i := len(s.recent) - 1; i >= 0; i-- {
		agg.Recent = append(agg.Recent, s.recent[i])
	}

	if finished := s.succeeded + s.failed; finished > 0 {
		agg.DurationMean = s.sumDuration / time.Duration(finished)
		agg.DurationP50 = quantile(s.durations, 0.50)
		agg.DurationP95 = quantile(s.durations, 0.95)
		agg.DurationP99 = quantile(s.durations, 0.99)
	}
	return agg
}

// Reset clears all counters.
func (s *LaunchStats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.startTime = time.Now()
	s.started, s.spawnFailures = 0, 0
	s.succeeded, s.failed, s.cancelled = 0, 0, 0
	s.exitCodes = make(map[int]int64)
	s.lines = make(map[string]int64)
	s.durations = tdigest.NewWithCompression(100)
	s.maxDuration, s.sumDuration = 0, 0
	s.recent = nil
}

func quantile(td *tdigest.TDigest, q float64) time.Duration {
	return time.Duration(td.Quantile(q) * float64(time.Second))
}

// SortedExitCodes returns the keys of codes in ascending order.
func SortedExitCodes(codes map[int]int64) []int {
	keys := make([]int, 0, len(codes))
	for code := range codes {
		keys = append(keys, code)
	}
	sort.Ints(keys)
	return keys
}
