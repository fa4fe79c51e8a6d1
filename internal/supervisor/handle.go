package supervisor

import (
	"context"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// Handle is the owner's view of one launched process. It is the
// cancellation token for the launch: Cancel stops the process group.
type Handle struct {
	id   string
	args []string

	mu        sync.RWMutex
	state     State
	pid       int
	startTime time.Time
	cmd       *exec.Cmd

	cancelOnce sync.Once
	cancelCh   chan struct{}
	cancelled  atomic.Bool

	// exited is closed when cmd.Wait returns.
	exited chan struct{}

	// done is closed once result is final.
	done   chan struct{}
	result Result
}

// Info is a point-in-time description of a launch.
type Info struct {
	ID        string    `json:"id"`
	Args      []string  `json:"args"`
	PID       int       `json:"pid"`
	State     string    `json:"state"`
	StartTime time.Time `json:"start_time"`
	UptimeMs  int64     `json:"uptime_ms"`
}

func newHandle(id string, args []string) *Handle {
	argsCopy := make([]string, len(args))
	copy(argsCopy, args)
	return &Handle{
		id:       id,
		args:     argsCopy,
		state:    StateCreated,
		cancelCh: make(chan struct{}),
		exited:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// ID returns the launch ID.
func (h *Handle) ID() string {
	return h.id
}

// Args returns the arguments the CLI was launched with.
func (h *Handle) Args() []string {
	return h.args
}

// PID returns the process ID, or 0 before the process started.
func (h *Handle) PID() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.pid
}

// State returns the current state of the launch.
func (h *Handle) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// StartTime returns when the process was spawned.
func (h *Handle) StartTime() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.startTime
}

// Uptime returns the current uptime if running, or 0 if not.
func (h *Handle) Uptime() time.Duration {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.state != StateRunning {
		return 0
	}
	return time.Since(h.startTime)
}

// Info returns a snapshot for listing.
func (h *Handle) Info() Info {
	h.mu.RLock()
	defer h.mu.RUnlock()
	info := Info{
		ID:        h.id,
		Args:      h.args,
		PID:       h.pid,
		State:     h.state.String(),
		StartTime: h.startTime,
	}
	if h.state == StateRunning {
		info.UptimeMs = time.Since(h.startTime).Milliseconds()
	}
	return info
}

// Cancel asks the supervisor to stop the process: SIGTERM to its process
// group, then SIGKILL after the stop timeout. Safe to call more than once
// and after the process exited.
func (h *Handle) Cancel() {
	h.cancelOnce.Do(func() {
		close(h.cancelCh)
	})
}

// Done is closed when the result is available.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the launch finished and returns its result.
func (h *Handle) Wait() Result {
	<-h.done
	return h.result
}

// WaitContext is Wait bounded by ctx. The process keeps running if ctx
// ends first.
func (h *Handle) WaitContext(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
		return h.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (h *Handle) setStarted(cmd *exec.Cmd, start time.Time) {
	h.mu.Lock()
	h.cmd = cmd
	h.pid = cmd.Process.Pid
	h.startTime = start
	h.mu.Unlock()
}

func (h *Handle) finish(result Result) {
	h.result = result
	close(h.done)
}
