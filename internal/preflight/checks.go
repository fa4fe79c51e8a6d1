// Package preflight provides startup validation checks.
package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/randomizedcoder/strands-bridge/internal/process"
)

// Note: syscall.RLIMIT_NPROC is not exported in Go's syscall package,
// so we read process limits from /proc/self/limits instead.

const (
	// LaunchBudget is the number of concurrent launches the limits are sized for.
	LaunchBudget = 32

	// Two pipes per launch plus the child's inherited descriptors.
	fdsPerLaunch = 6

	// fsnotify descriptor plus the stat during a check.
	fdsPerWatch = 2

	// Listener, event clients, logging.
	fdBaseline = 100
)

// Prober resolves the CLI binary. Satisfied by *process.CLIRunner.
type Prober interface {
	Probe(ctx context.Context) (process.ProbeResult, error)
}

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks.
func RunAll(ctx context.Context, prober Prober, watchPaths []string) *Result {
	result := &Result{
		Checks: make([]Check, 0, 4),
		Passed: true,
	}

	add := func(c Check) {
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	add(checkBinary(ctx, prober))
	add(checkFileDescriptors(len(watchPaths)))
	add(checkProcessLimit())
	// Warning only
	add(checkWatchPaths(watchPaths))

	return result
}

// checkBinary verifies the CLI binary resolves and reports its version.
func checkBinary(ctx context.Context, prober Prober) Check {
	if prober == nil {
		return Check{
			Name:    "cli_binary",
			Passed:  false,
			Message: "no runner configured",
		}
	}

	probe, err := prober.Probe(ctx)
	if err != nil {
		return Check{
			Name:    "cli_binary",
			Passed:  false,
			Message: err.Error(),
		}
	}

	return Check{
		Name:    "cli_binary",
		Passed:  true,
		Message: fmt.Sprintf("found at %s (version %s)", probe.Path, probe.Version),
	}
}

// requiredFileDescriptors returns the descriptor budget for the given
// number of watches.
func requiredFileDescriptors(watches int) int {
	return LaunchBudget*fdsPerLaunch + watches*fdsPerWatch + fdBaseline
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(watches int) Check {
	required := requiredFileDescriptors(watches)

	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to read limit: %v", err),
		}
	}
	actual := int(limit.Cur)

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for %d launches, %d watches)", actual, required, LaunchBudget, watches),
	}
}

// checkProcessLimit verifies sufficient process slots are available.
func checkProcessLimit() Check {
	required := LaunchBudget + 50

	data, err := os.ReadFile("/proc/self/limits")
	if err != nil {
		// Non-Linux or restricted access, assume OK
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to check (non-Linux or restricted)",
		}
	}

	actual := parseMaxProcesses(string(data))
	if actual == 0 {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to determine (assuming OK)",
		}
	}

	return Check{
		Name:     "process_limit",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -u %d (need %d)", actual, required),
	}
}

// parseMaxProcesses extracts the soft "Max processes" limit from
// /proc/self/limits. Returns 0 when absent.
func parseMaxProcesses(limits string) int {
	for _, line := range strings.Split(limits, "\n") {
		if !strings.HasPrefix(line, "Max processes") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return 0
		}
		if fields[2] == "unlimited" {
			return 1_000_000
		}
		var n int
		fmt.Sscanf(fields[2], "%d", &n)
		return n
	}
	return 0
}

// checkWatchPaths warns about watches whose directory does not exist.
// Polling still works there, but the file can only appear once the
// directory is created.
func checkWatchPaths(paths []string) Check {
	if len(paths) == 0 {
		return Check{
			Name:    "watch_paths",
			Passed:  true,
			Message: "none configured",
		}
	}

	var missing []string
	for _, p := range paths {
		if info, err := os.Stat(filepath.Dir(p)); err != nil || !info.IsDir() {
			missing = append(missing, p)
		}
	}

	if len(missing) > 0 {
		return Check{
			Name:    "watch_paths",
			Passed:  true,
			Warning: true,
			Message: "directory missing for " + strings.Join(missing, ", "),
		}
	}

	return Check{
		Name:    "watch_paths",
		Passed:  true,
		Message: fmt.Sprintf("%d path(s) ok", len(paths)),
	}
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 8192 (or edit /etc/security/limits.conf)"
	case "process_limit":
		return "ulimit -u 4096 (or edit /etc/security/limits.conf)"
	case "cli_binary":
		return "install the strands CLI or pass -cli /path/to/strands"
	default:
		return "see documentation"
	}
}
