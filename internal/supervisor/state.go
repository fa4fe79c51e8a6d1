// Package supervisor launches CLI processes and forwards their output.
package supervisor

// State represents the lifecycle state of one launch.
type State int

const (
	// StateCreated is the initial state before the process is spawned.
	StateCreated State = iota

	// StateStarting indicates the process is being spawned.
	StateStarting

	// StateRunning indicates the process is running.
	StateRunning

	// StateExited indicates the process terminated on its own.
	StateExited

	// StateStopped indicates the process was cancelled, or never started.
	StateStopped
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// IsActive returns true while the process is being spawned or is running.
func (s State) IsActive() bool {
	return s == StateStarting || s == StateRunning
}

// IsTerminal returns true once the launch is over.
func (s State) IsTerminal() bool {
	return s == StateExited || s == StateStopped
}
