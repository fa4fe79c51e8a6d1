package logging

import (
	"log/slog"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a stored output line before truncation.
	MaxLineLength = 4096

	// MaxTailLines is the number of recent output lines kept per launch.
	MaxTailLines = 50
)

// OutputTail keeps the most recent output lines of one launch and logs
// them at a level derived from their content. The tail is attached to the
// launch_failed log entry so a failure can be diagnosed from the logs alone.
type OutputTail struct {
	launchID string
	logger   *slog.Logger
	verbose  bool

	mu     sync.Mutex
	buffer []string
	next   int
	count  int
}

// NewOutputTail creates a tail for one launch.
func NewOutputTail(launchID string, logger *slog.Logger, verbose bool) *OutputTail {
	return &OutputTail{
		launchID: launchID,
		logger:   logger,
		verbose:  verbose,
		buffer:   make([]string, MaxTailLines),
	}
}

// Stdout records a standard output line.
func (t *OutputTail) Stdout(line string) {
	t.add(line)
	if t.verbose {
		t.log(slog.LevelDebug, "cli_stdout", line)
	}
}

// Stderr records a standard error line.
func (t *OutputTail) Stderr(line string) {
	t.add(line)
	level := classifyLine(line)
	if !t.verbose && level == slog.LevelDebug {
		return
	}
	t.log(level, "cli_stderr", line)
}

func (t *OutputTail) add(line string) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	t.mu.Lock()
	t.buffer[t.next] = line
	t.next = (t.next + 1) % MaxTailLines
	if t.count < MaxTailLines {
		t.count++
	}
	t.mu.Unlock()
}

func (t *OutputTail) log(level slog.Level, msg, line string) {
	if t.logger == nil {
		return
	}
	t.logger.Log(nil, level, msg, "launch_id", t.launchID, "line", line)
}

// classifyLine picks a log level for a stderr line. Python tracebacks and
// explicit error lines are warnings, everything else is debug noise.
func classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)

	if strings.HasPrefix(lower, "traceback") ||
		strings.HasPrefix(lower, "error") ||
		strings.Contains(lower, "error:") ||
		strings.Contains(lower, "exception") ||
		strings.Contains(lower, "failed") {
		return slog.LevelWarn
	}

	if strings.HasPrefix(lower, "warning") || strings.Contains(lower, "deprecat") {
		return slog.LevelInfo
	}

	return slog.LevelDebug
}

// Lines returns up to n most recent lines, oldest first.
func (t *OutputTail) Lines(n int) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n > t.count {
		n = t.count
	}
	if n <= 0 {
		return nil
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (t.next - n + i + MaxTailLines) % MaxTailLines
		lines = append(lines, t.buffer[idx])
	}
	return lines
}

// Len returns the number of buffered lines.
func (t *OutputTail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}
