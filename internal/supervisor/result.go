package supervisor

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"
)

// SuccessMessage is returned to callers when a launch exits with code 0.
const SuccessMessage = "Command executed successfully"

// Result captures the outcome of one launch.
type Result struct {
	ID        string
	Args      []string
	ExitCode  int
	StartTime time.Time
	EndTime   time.Time

	// Lines forwarded per stream by the time the result was built. With
	// output joining disabled, readers may forward more lines afterwards.
	StdoutLines int64
	StderrLines int64

	// Cancelled is true when the launch was stopped by Cancel or its context.
	Cancelled bool

	// Err is nil on success, or an *ExitError for a non-zero exit.
	Err error
}

// Success reports whether the process exited with code 0.
func (r Result) Success() bool {
	return r.Err == nil && r.ExitCode == 0
}

// Duration returns how long the process ran.
func (r Result) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Message returns the success message or the error text.
func (r Result) Message() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	return SuccessMessage
}

// ExitError reports a process that ran and exited with a non-zero status.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command failed with status: %d", e.Code)
}

// ExitCode returns the exit status carried by err, or -1 if err is not an
// exit error.
func ExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return -1
}

// extractExitCode extracts the exit code from a Wait() error.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
		return exitErr.ExitCode()
	}

	// Unknown error, assume exit code 1
	return 1
}
