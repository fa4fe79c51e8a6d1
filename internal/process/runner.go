// Package process builds the external CLI commands the supervisor runs.
package process

import (
	"os/exec"
)

// Runner creates executable commands for launches.
// This interface allows the supervisor to be process-agnostic.
type Runner interface {
	// BuildCommand returns a ready-to-start command for the given arguments.
	// The command must NOT be started yet, and its stdio must be left unset;
	// the supervisor wires the pipes and owns cancellation.
	BuildCommand(args []string) (*exec.Cmd, error)

	// Name returns a human-readable name for this process type.
	Name() string
}
