package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randomizedcoder/strands-bridge/internal/event"
	"github.com/randomizedcoder/strands-bridge/internal/logging"
	"github.com/randomizedcoder/strands-bridge/internal/process"
	"github.com/randomizedcoder/strands-bridge/internal/stream"
)

const (
	defaultDrainTimeout = 5 * time.Second
	defaultStopTimeout  = 5 * time.Second

	// failureTailLines is how much output is attached to launch_failed.
	failureTailLines = 10
)

// ErrShutdown is returned by Start once Shutdown was called.
var ErrShutdown = errors.New("supervisor is shut down")

// Callbacks contains optional callback functions for launch events.
type Callbacks struct {
	// OnStateChange is called when a launch changes state.
	OnStateChange func(id string, oldState, newState State)

	// OnStart is called when a process was spawned.
	OnStart func(id string, pid int)

	// OnExit is called when a launch finished.
	OnExit func(id string, exitCode int, uptime time.Duration)

	// OnLine is called for every forwarded line; stream is the event name.
	OnLine func(id string, stream string)

	// OnResult is called with the complete result after OnExit.
	OnResult func(result Result)

	// OnSpawnFailed is called when a launch could not be started.
	OnSpawnFailed func(args []string, err error)
}

// Config holds configuration for creating a new Supervisor.
type Config struct {
	Runner    process.Runner
	Emitter   event.Emitter
	Logger    *slog.Logger
	Callbacks Callbacks

	// JoinOutput delays the result until both output streams drained.
	JoinOutput bool

	// DrainTimeout bounds the wait for output after exit (JoinOutput only).
	DrainTimeout time.Duration

	// StopTimeout is the grace period between SIGTERM and SIGKILL.
	StopTimeout time.Duration

	// Verbose logs every output line at debug level.
	Verbose bool
}

// Supervisor spawns CLI processes and forwards their output as events.
// Each Start call owns exactly one process.
type Supervisor struct {
	runner    process.Runner
	emitter   event.Emitter
	logger    *slog.Logger
	callbacks Callbacks

	joinOutput   bool
	drainTimeout time.Duration
	stopTimeout  time.Duration
	verbose      bool

	mu       sync.Mutex
	active   map[string]*Handle
	shutdown bool
	wg       sync.WaitGroup
}

// New creates a new Supervisor with the given configuration.
func New(cfg Config) *Supervisor {
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = event.Discard
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	drain := cfg.DrainTimeout
	if drain <= 0 {
		drain = defaultDrainTimeout
	}
	stop := cfg.StopTimeout
	if stop <= 0 {
		stop = defaultStopTimeout
	}

	return &Supervisor{
		runner:       cfg.Runner,
		emitter:      emitter,
		logger:       logger,
		callbacks:    cfg.Callbacks,
		joinOutput:   cfg.JoinOutput,
		drainTimeout: drain,
		stopTimeout:  stop,
		verbose:      cfg.Verbose,
		active:       make(map[string]*Handle),
	}
}

// Run starts the CLI with args and waits for it to finish.
// The returned error is the spawn error, or the result's *ExitError.
func (s *Supervisor) Run(ctx context.Context, args []string) (Result, error) {
	h, err := s.Start(ctx, args)
	if err != nil {
		return Result{}, err
	}
	result := h.Wait()
	return result, result.Err
}

// Start spawns the CLI with args and returns immediately. Spawn failures
// are returned directly and nothing is retried. Cancelling ctx stops the
// process the same way Handle.Cancel does.
func (s *Supervisor) Start(ctx context.Context, args []string) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.runner == nil {
		return nil, errors.New("supervisor has no runner")
	}

	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil, ErrShutdown
	}
	s.wg.Add(1)
	s.mu.Unlock()

	h, err := s.spawn(ctx, args)
	if err != nil {
		s.wg.Done()
		if s.callbacks.OnSpawnFailed != nil {
			s.callbacks.OnSpawnFailed(args, err)
		}
		return nil, err
	}
	return h, nil
}

// spawn does the work of Start once the launch is accounted for in wg.
func (s *Supervisor) spawn(ctx context.Context, args []string) (*Handle, error) {
	h := newHandle(uuid.NewString(), args)
	s.setState(h, StateStarting)

	cmd, err := s.runner.BuildCommand(args)
	if err != nil {
		s.setState(h, StateStopped)
		return nil, fmt.Errorf("build command: %w", err)
	}

	// Anonymous pipes instead of cmd.StdoutPipe: Wait would close those
	// read ends, and the readers must be free to outlive Wait.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		s.setState(h, StateStopped)
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		s.setState(h, StateStopped)
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	setProcessGroup(cmd)

	startTime := time.Now()
	if err := cmd.Start(); err != nil {
		stdoutR.Close()
		stdoutW.Close()
		stderrR.Close()
		stderrW.Close()
		s.setState(h, StateStopped)
		s.logger.Error("launch_spawn_failed",
			"launch_id", h.id,
			"binary", s.runner.Name(),
			"error", err,
		)
		return nil, fmt.Errorf("spawn %s: %w", s.runner.Name(), err)
	}

	// Close the parent's write ends so readers see EOF once the child
	// (and anything it spawned with the same pipes) is gone.
	stdoutW.Close()
	stderrW.Close()

	h.setStarted(cmd, startTime)

	tail := logging.NewOutputTail(h.id, s.logger, s.verbose)
	stdout := stream.NewReader(stdoutR, event.CLIOutput, s.emitter, s.logger)
	stdout.OnLine(func(line string) {
		tail.Stdout(line)
		s.lineForwarded(h.id, event.CLIOutput)
	})
	stderr := stream.NewReader(stderrR, event.CLIError, s.emitter, s.logger)
	stderr.OnLine(func(line string) {
		tail.Stderr(line)
		s.lineForwarded(h.id, event.CLIError)
	})

	go stdout.Run()
	go stderr.Run()

	s.mu.Lock()
	s.active[h.id] = h
	if s.shutdown {
		h.Cancel()
	}
	s.mu.Unlock()

	s.setState(h, StateRunning)
	s.logger.Info("launch_started",
		"launch_id", h.id,
		"pid", cmd.Process.Pid,
		"args", args,
	)
	if s.callbacks.OnStart != nil {
		s.callbacks.OnStart(h.id, cmd.Process.Pid)
	}

	go s.watchCancel(ctx, h)
	go s.wait(h, stdout, stderr, tail)

	return h, nil
}

// wait reaps the process and publishes the result.
func (s *Supervisor) wait(h *Handle, stdout, stderr *stream.Reader, tail *logging.OutputTail) {
	defer s.wg.Done()

	waitErr := h.cmd.Wait()
	endTime := time.Now()
	close(h.exited)

	exitCode := extractExitCode(waitErr)

	if s.joinOutput {
		s.drainReaders(h.id, stdout, stderr)
	}

	_, outLines, _ := stdout.Stats()
	_, errLines, _ := stderr.Stats()

	result := Result{
		ID:          h.id,
		Args:        h.args,
		ExitCode:    exitCode,
		StartTime:   h.startTime,
		EndTime:     endTime,
		StdoutLines: outLines,
		StderrLines: errLines,
		Cancelled:   h.cancelled.Load(),
	}
	if exitCode != 0 {
		result.Err = &ExitError{Code: exitCode}
		s.logger.Warn("launch_failed",
			"launch_id", h.id,
			"pid", h.pid,
			"exit_code", exitCode,
			"cancelled", result.Cancelled,
			"uptime", result.Duration().String(),
			"tail", tail.Lines(failureTailLines),
		)
	} else {
		s.logger.Info("launch_exited",
			"launch_id", h.id,
			"pid", h.pid,
			"exit_code", exitCode,
			"uptime", result.Duration().String(),
			"stdout_lines", outLines,
			"stderr_lines", errLines,
		)
	}

	s.mu.Lock()
	delete(s.active, h.id)
	s.mu.Unlock()

	if result.Cancelled {
		s.setState(h, StateStopped)
	} else {
		s.setState(h, StateExited)
	}

	s.emitter.Emit(event.CLIExit, event.ExitPayload{
		ID:         h.id,
		ExitCode:   exitCode,
		DurationMs: result.Duration().Milliseconds(),
	})
	if s.callbacks.OnExit != nil {
		s.callbacks.OnExit(h.id, exitCode, result.Duration())
	}
	if s.callbacks.OnResult != nil {
		s.callbacks.OnResult(result)
	}

	h.finish(result)
}

// watchCancel stops the process when ctx ends or Cancel is called.
func (s *Supervisor) watchCancel(ctx context.Context, h *Handle) {
	select {
	case <-h.exited:
		return
	case <-ctx.Done():
	case <-h.cancelCh:
	}

	h.cancelled.Store(true)
	s.logger.Info("launch_stopping", "launch_id", h.id, "pid", h.pid)
	if err := terminate(h.cmd.Process); err != nil {
		s.logger.Debug("terminate_failed", "launch_id", h.id, "error", err)
	}

	timer := time.NewTimer(s.stopTimeout)
	defer timer.Stop()

	select {
	case <-h.exited:
	case <-timer.C:
		s.logger.Warn("force_killing_process",
			"launch_id", h.id,
			"pid", h.pid,
			"timeout", s.stopTimeout.String(),
		)
		if err := kill(h.cmd.Process); err != nil {
			s.logger.Debug("kill_failed", "launch_id", h.id, "error", err)
		}
	}
}

// drainReaders waits for both output readers to reach end-of-stream, with
// a timeout in case a grandchild still holds the pipes open.
func (s *Supervisor) drainReaders(id string, readers ...*stream.Reader) {
	timer := time.NewTimer(s.drainTimeout)
	defer timer.Stop()

	for _, r := range readers {
		select {
		case <-r.Done():
		case <-timer.C:
			s.logger.Warn("output_drain_timeout",
				"launch_id", id,
				"stream", r.EventName(),
				"timeout", s.drainTimeout.String(),
			)
			return
		}
	}
}

func (s *Supervisor) lineForwarded(id, streamName string) {
	if s.callbacks.OnLine != nil {
		s.callbacks.OnLine(id, streamName)
	}
}

// setState updates the state and calls the callback if registered.
func (s *Supervisor) setState(h *Handle, newState State) {
	h.mu.Lock()
	oldState := h.state
	h.state = newState
	h.mu.Unlock()

	if s.callbacks.OnStateChange != nil && oldState != newState {
		s.callbacks.OnStateChange(h.id, oldState, newState)
	}
}

// Get returns the running launch with the given ID.
func (s *Supervisor) Get(id string) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.active[id]
	return h, ok
}

// Active returns a snapshot of every running launch.
func (s *Supervisor) Active() []Info {
	s.mu.Lock()
	handles := make([]*Handle, 0, len(s.active))
	for _, h := range s.active {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	infos := make([]Info, 0, len(handles))
	for _, h := range handles {
		infos = append(infos, h.Info())
	}
	return infos
}

// ActiveCount returns the number of running launches.
func (s *Supervisor) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Shutdown refuses new launches, cancels running ones, and waits for them
// to be reaped or for ctx to end.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	for _, h := range s.active {
		h.Cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("launches still running: %w", ctx.Err())
	}
}
