// Package metrics provides Prometheus metrics for strands-bridge.
//
// Metrics are grouped the way the dashboard shows them:
//   - Launches: starts, exits by category, durations, active count
//   - Output: forwarded lines per stream
//   - Watches: active watches and detected changes
//   - Events: hub publish and drop counters
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "strands_bridge"

// Exit categories used as the "result" label.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultSignal  = "signal"
)

// HubStats reports event hub counters. Satisfied by *event.Hub.
type HubStats interface {
	Stats() (published, dropped int64, subscribers int)
}

// =============================================================================
// Collector
// =============================================================================

// Collector manages all Prometheus metrics for the bridge.
type Collector struct {
	// --- Panel 1: Overview ---
	info *prometheus.GaugeVec

	// --- Panel 2: Launches ---
	launchStarts    prometheus.Counter
	spawnFailures   prometheus.Counter
	launchExits     *prometheus.CounterVec
	launchDuration  prometheus.Histogram
	activeLaunches  prometheus.Gauge
	launchCancelled prometheus.Counter

	// --- Panel 3: Output ---
	linesForwarded *prometheus.CounterVec

	// --- Panel 4: Watches ---
	activeWatches prometheus.Gauge
	watchChanges  prometheus.Counter

	// --- Panel 5: Config I/O ---
	configOps *prometheus.CounterVec

	// Timing
	startTime time.Time

	// For summary generation
	mu          sync.Mutex
	peakActive  int
	totalStarts int64
	spawnFailed int64
	exitCodes   map[int]int64
	lines       map[string]int64
	changes     int64
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version string
	CLIPath string

	// Hub, when set, is exported as event counters.
	Hub HubStats
}

// NewCollectorWithRegistry creates a collector registered on registry.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "info",
				Help:      "Information about the bridge (value always 1)",
			},
			[]string{"version", "cli_path"},
		),
		launchStarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "launch_starts_total",
			Help:      "CLI processes spawned",
		}),
		spawnFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "launch_spawn_failures_total",
			Help:      "Launches that failed before the process started",
		}),
		launchExits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "launch_exits_total",
				Help:      "CLI process exits by result (success, error, signal)",
			},
			[]string{"result"},
		),
		launchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "launch_duration_seconds",
			Help:      "Wall time of CLI processes",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300, 900},
		}),
		activeLaunches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_launches",
			Help:      "Currently running CLI processes",
		}),
		launchCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "launch_cancelled_total",
			Help:      "Launches stopped by cancellation",
		}),
		linesForwarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lines_forwarded_total",
				Help:      "Output lines forwarded as events, by event name",
			},
			[]string{"stream"},
		),
		activeWatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_watches",
			Help:      "Currently running config file watches",
		}),
		watchChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watch_changes_total",
			Help:      "Config file modifications detected",
		}),
		configOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_operations_total",
				Help:      "Config file reads and writes by result",
			},
			[]string{"op", "result"},
		),
		startTime: time.Now(),
		exitCodes: make(map[int]int64),
		lines:     make(map[string]int64),
	}

	registry.MustRegister(
		// Panel 1: Overview
		c.info,

		// Panel 2: Launches
		c.launchStarts,
		c.spawnFailures,
		c.launchExits,
		c.launchDuration,
		c.activeLaunches,
		c.launchCancelled,

		// Panel 3: Output
		c.linesForwarded,

		// Panel 4: Watches
		c.activeWatches,
		c.watchChanges,

		// Panel 5: Config I/O
		c.configOps,
	)

	// Panel 6: Event hub
	if cfg.Hub != nil {
		hub := cfg.Hub
		registry.MustRegister(
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Events published to the hub",
			}, func() float64 {
				published, _, _ := hub.Stats()
				return float64(published)
			}),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dropped_total",
				Help:      "Events a slow subscriber missed",
			}, func() float64 {
				_, dropped, _ := hub.Stats()
				return float64(dropped)
			}),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "event_subscribers",
				Help:      "Connected event stream clients",
			}, func() float64 {
				_, _, subs := hub.Stats()
				return float64(subs)
			}),
		)
	}

	c.info.WithLabelValues(cfg.Version, cfg.CLIPath).Set(1)

	// Pre-create label values so they show up as 0 before the first launch.
	for _, r := range []string{ResultSuccess, ResultError, ResultSignal} {
		c.launchExits.WithLabelValues(r)
	}

	return c
}

// =============================================================================
// Event Recording Methods
// =============================================================================

// LaunchStarted records a spawned process.
func (c *Collector) LaunchStarted() {
	c.launchStarts.Inc()

	c.mu.Lock()
	c.totalStarts++
	c.mu.Unlock()
}

// SpawnFailed records a launch whose process never started.
func (c *Collector) SpawnFailed() {
	c.spawnFailures.Inc()

	c.mu.Lock()
	c.spawnFailed++
	c.mu.Unlock()
}

// RecordExit records a process exit.
func (c *Collector) RecordExit(exitCode int, duration time.Duration) {
	c.launchExits.WithLabelValues(ExitCategory(exitCode)).Inc()
	c.launchDuration.Observe(duration.Seconds())

	c.mu.Lock()
	c.exitCodes[exitCode]++
	c.mu.Unlock()
}

// LaunchCancelled records a launch stopped by cancellation.
func (c *Collector) LaunchCancelled() {
	c.launchCancelled.Inc()
}

// SetActiveLaunches updates the running launch gauge.
func (c *Collector) SetActiveLaunches(count int) {
	c.activeLaunches.Set(float64(count))

	c.mu.Lock()
	if count > c.peakActive {
		c.peakActive = count
	}
	c.mu.Unlock()
}

// LineForwarded records one forwarded output line.
func (c *Collector) LineForwarded(stream string) {
	c.linesForwarded.WithLabelValues(stream).Inc()

	c.mu.Lock()
	c.lines[stream]++
	c.mu.Unlock()
}

// SetActiveWatches updates the running watch gauge.
func (c *Collector) SetActiveWatches(count int) {
	c.activeWatches.Set(float64(count))
}

// WatchChanged records a detected config file modification.
func (c *Collector) WatchChanged() {
	c.watchChanges.Inc()

	c.mu.Lock()
	c.changes++
	c.mu.Unlock()
}

// ConfigOp records a config read or write.
func (c *Collector) ConfigOp(op string, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	c.configOps.WithLabelValues(op, result).Inc()
}

// ExitCategory maps an exit code to the "result" label.
func ExitCategory(exitCode int) string {
	switch {
	case exitCode == 0:
		return ResultSuccess
	case exitCode > 128:
		return ResultSignal
	default:
		return ResultError
	}
}

// =============================================================================
// Summary Generation
// =============================================================================

// Summary holds the data for generating an exit summary.
type Summary struct {
	Duration           time.Duration
	PeakActiveLaunches int
	TotalStarts        int64
	SpawnFailures      int64
	ExitCodes          map[int]int64
	LinesForwarded     map[string]int64
	WatchChanges       int64
}

// GenerateSummary creates a summary of the run.
func (c *Collector) GenerateSummary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Summary{
		Duration:           time.Since(c.startTime),
		PeakActiveLaunches: c.peakActive,
		TotalStarts:        c.totalStarts,
		SpawnFailures:      c.spawnFailed,
		ExitCodes:          make(map[int]int64, len(c.exitCodes)),
		LinesForwarded:     make(map[string]int64, len(c.lines)),
		WatchChanges:       c.changes,
	}
	for code, count := range c.exitCodes {
		s.ExitCodes[code] = count
	}
	for stream, count := range c.lines {
		s.LinesForwarded[stream] = count
	}
	return s
}

// PeakActive returns the peak number of concurrent launches.
func (c *Collector) PeakActive() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peakActive
}

// TotalStarts returns the number of spawned processes.
func (c *Collector) TotalStarts() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalStarts
}
