// Package orchestrator wires the bridge components together and owns the
// process lifecycle: startup checks, serving, signal handling, shutdown and
// the exit summary.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/randomizedcoder/strands-bridge/internal/api"
	"github.com/randomizedcoder/strands-bridge/internal/bridge"
	"github.com/randomizedcoder/strands-bridge/internal/config"
	"github.com/randomizedcoder/strands-bridge/internal/event"
	"github.com/randomizedcoder/strands-bridge/internal/metrics"
	"github.com/randomizedcoder/strands-bridge/internal/preflight"
	"github.com/randomizedcoder/strands-bridge/internal/process"
	"github.com/randomizedcoder/strands-bridge/internal/stats"
	"github.com/randomizedcoder/strands-bridge/internal/supervisor"
	"github.com/randomizedcoder/strands-bridge/internal/timeseries"
	"github.com/randomizedcoder/strands-bridge/internal/tui"
	"github.com/randomizedcoder/strands-bridge/internal/watcher"
)

// shutdownTimeout bounds the graceful shutdown of launches and the API.
const shutdownTimeout = 10 * time.Second

// Orchestrator coordinates all components of the bridge.
type Orchestrator struct {
	config  *config.Config
	logger  *slog.Logger
	version string
	out     io.Writer

	runner     *process.CLIRunner
	hub        *event.Hub
	registry   *prometheus.Registry
	metrics    *metrics.Collector
	stats      *stats.LaunchStats
	lineRate   *timeseries.RateTracker
	supervisor *supervisor.Supervisor
	bridge     *bridge.Bridge
	server     *api.Server

	ready     atomic.Bool
	readyCh   chan struct{}
	startTime time.Time
}

// New creates a new Orchestrator with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, version string) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	runner := process.NewCLIRunner(&process.CLIConfig{
		BinaryPath: cfg.CLIPath,
		WorkDir:    cfg.WorkDir,
		Env:        cfg.Env,
		Profile:    cfg.Profile,
		Region:     cfg.Region,
		LogLevel:   cfg.CLILogLevel,
	})

	hub := event.NewHub(cfg.EventBuffer)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	o := &Orchestrator{
		config:   cfg,
		logger:   logger,
		version:  version,
		out:      os.Stdout,
		runner:   runner,
		hub:      hub,
		registry: registry,
		metrics: metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
			Version: version,
			CLIPath: cfg.CLIPath,
			Hub:     hub,
		}, registry),
		stats:    stats.NewLaunchStats(stats.DefaultRecentLaunches),
		lineRate: timeseries.NewRateTracker(),
		readyCh:  make(chan struct{}),
	}

	o.supervisor = supervisor.New(supervisor.Config{
		Runner:       runner,
		Emitter:      hub,
		Logger:       logger.With("component", "supervisor"),
		JoinOutput:   cfg.JoinOutput,
		DrainTimeout: cfg.DrainTimeout,
		StopTimeout:  cfg.StopTimeout,
		Verbose:      cfg.Verbose,
		Callbacks: supervisor.Callbacks{
			OnStateChange: o.onStateChange,
			OnStart:       o.onStart,
			OnLine:        o.onLine,
			OnResult:      o.onResult,
			OnSpawnFailed: o.onSpawnFailed,
		},
	})

	return o
}

// SetOutput redirects preflight results and the exit summary.
func (o *Orchestrator) SetOutput(w io.Writer) {
	o.out = w
}

// Ready is closed once the API is serving.
func (o *Orchestrator) Ready() <-chan struct{} {
	return o.readyCh
}

// Addr returns the API listen address.
func (o *Orchestrator) Addr() string {
	if o.server == nil {
		return o.config.ListenAddr
	}
	return o.server.Addr()
}

// Run serves the bridge. It blocks until ctx ends, a signal arrives, or the
// dashboard is closed.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startTime = time.Now()

	// Run preflight checks
	if !o.config.SkipPreflight {
		result := preflight.RunAll(ctx, o.runner, o.config.WatchPaths)
		preflight.PrintResults(o.out, result)
		if !result.Passed {
			return errors.New("preflight checks failed (use -skip-preflight to override)")
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := watcher.NewWatcher(ctx, watcher.Options{
		Interval:       o.config.WatchInterval,
		Notify:         o.config.WatchNotify,
		Emitter:        o.hub,
		Logger:         o.logger.With("component", "watcher"),
		OnChange:       o.onWatchChange,
		OnActiveChange: o.metrics.SetActiveWatches,
	})
	defer w.Close()

	go o.lineRate.Run(ctx)

	o.bridge = bridge.New(bridge.Config{
		Supervisor: o.supervisor,
		Watcher:    w,
		Logger:     o.logger.With("component", "bridge"),
		OnConfigOp: o.metrics.ConfigOp,
	})

	o.server = api.New(api.Config{
		Listen:         o.config.ListenAddr,
		AllowedOrigins: o.config.AllowedOrigins,
		Gatherer:       o.registry,
		Ready:          o.ready.Load,
		KeepAlive:      o.config.KeepAlive,
	}, o.bridge, o.hub, o.logger.With("component", "api"))

	if err := o.server.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	for _, path := range o.config.WatchPaths {
		id, err := o.bridge.WatchConfig(path)
		if err != nil {
			o.logger.Warn("initial_watch_failed", "path", path, "error", err)
			continue
		}
		o.logger.Info("initial_watch_started", "path", path, "watch_id", id)
	}

	o.ready.Store(true)
	close(o.readyCh)

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	// Optional dashboard
	var program *tea.Program
	tuiDone := make(chan struct{})
	if o.config.TUIEnabled {
		program = o.startTUI(w, tuiDone)
	}

	o.logger.Info("bridge_ready",
		"addr", o.server.Addr(),
		"cli", o.config.CLIPath,
		"watches", len(o.config.WatchPaths),
	)

	// Wait for completion signal
	select {
	case sig := <-sigCh:
		o.logger.Info("received_signal", "signal", sig.String())
	case <-tuiDone:
		o.logger.Info("dashboard_closed")
	case <-ctx.Done():
		o.logger.Info("context_cancelled")
	}

	o.ready.Store(false)

	if program != nil {
		tui.SendQuit(program)
		<-tuiDone
	}

	o.shutdown(w)
	o.printExitSummary()

	return nil
}

// startTUI runs the dashboard until it quits; done is closed afterwards.
func (o *Orchestrator) startTUI(w *watcher.Watcher, done chan struct{}) *tea.Program {
	events, unsubscribe := o.hub.Subscribe()

	model := tui.New(tui.Config{
		CLIPath:    o.config.CLIPath,
		ListenAddr: o.server.Addr(),
		Stats:      o.stats,
		Launches:   o.supervisor,
		Watches:    w,
		Hub:        o.hub,
		LineRate:   o.lineRate,
		Events:     events,
	})

	program := tea.NewProgram(model, tea.WithAltScreen())
	go func() {
		defer close(done)
		defer unsubscribe()
		if _, err := program.Run(); err != nil {
			o.logger.Error("tui_failed", "error", err)
		}
	}()
	return program
}

// shutdown stops launches first so their exit events still reach clients,
// then closes the hub to end event streams, then the API server.
func (o *Orchestrator) shutdown(w *watcher.Watcher) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := o.supervisor.Shutdown(ctx); err != nil {
		o.logger.Warn("shutdown_incomplete", "error", err)
	}
	if err := w.Close(); err != nil {
		o.logger.Warn("watcher_close_error", "error", err)
	}

	o.hub.Close()

	if err := o.server.Shutdown(ctx); err != nil {
		o.logger.Warn("api_server_shutdown_error", "error", err)
	}
}

// =============================================================================
// Callback handlers
// =============================================================================

func (o *Orchestrator) onStateChange(id string, oldState, newState supervisor.State) {
	o.metrics.SetActiveLaunches(o.supervisor.ActiveCount())
}

func (o *Orchestrator) onStart(id string, pid int) {
	o.metrics.LaunchStarted()
	o.stats.RecordStart()
}

func (o *Orchestrator) onLine(id, stream string) {
	o.metrics.LineForwarded(stream)
	o.stats.RecordLine(stream)
	o.lineRate.Add(1)
}

func (o *Orchestrator) onResult(r supervisor.Result) {
	o.metrics.RecordExit(r.ExitCode, r.Duration())
	if r.Cancelled {
		o.metrics.LaunchCancelled()
	}
	o.stats.RecordExit(stats.LaunchRecord{
		ID:        r.ID,
		Args:      r.Args,
		ExitCode:  r.ExitCode,
		Duration:  r.Duration(),
		EndTime:   r.EndTime,
		Cancelled: r.Cancelled,
	})
}

func (o *Orchestrator) onSpawnFailed(args []string, err error) {
	o.metrics.SpawnFailed()
	o.stats.RecordSpawnFailure()
}

func (o *Orchestrator) onWatchChange(id, path string) {
	o.metrics.WatchChanged()
}

// =============================================================================
// Exit summary
// =============================================================================

// printExitSummary prints a summary of the run.
func (o *Orchestrator) printExitSummary() {
	published, dropped, _ := o.hub.Stats()
	summary := o.metrics.GenerateSummary()

	fmt.Fprint(o.out, stats.FormatExitSummary(o.stats.Aggregate(), stats.SummaryConfig{
		Duration:        time.Since(o.startTime),
		CLIPath:         o.config.CLIPath,
		ListenAddr:      o.Addr(),
		PeakActive:      summary.PeakActiveLaunches,
		WatchChanges:    summary.WatchChanges,
		EventsPublished: published,
		EventsDropped:   dropped,
	}))

	if o.config.MetricsDump {
		fmt.Fprintln(o.out)
		if err := metrics.WriteText(o.out, o.registry); err != nil {
			o.logger.Warn("metrics_dump_failed", "error", err)
		}
	}
}

// =============================================================================
// Accessors
// =============================================================================

// Runner returns the CLI runner.
func (o *Orchestrator) Runner() *process.CLIRunner {
	return o.runner
}

// Metrics returns the metrics collector.
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.metrics
}

// Stats returns the launch statistics.
func (o *Orchestrator) Stats() *stats.LaunchStats {
	return o.stats
}

// LineRate returns the forwarded line rate tracker.
func (o *Orchestrator) LineRate() *timeseries.RateTracker {
	return o.lineRate
}

// Registry returns the Prometheus registry backing /metrics.
func (o *Orchestrator) Registry() *prometheus.Registry {
	return o.registry
}
