package process

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultProbeTimeout bounds the version probe.
const DefaultProbeTimeout = 5 * time.Second

// ProbeResult describes the resolved CLI binary.
type ProbeResult struct {
	Path    string // absolute path found via PATH lookup
	Version string // first line of --version output, or "unknown"
}

// Probe resolves the configured binary and asks it for its version.
// A binary that is found but rejects --version still probes successfully
// with Version "unknown"; only a missing binary is an error.
func (r *CLIRunner) Probe(ctx context.Context) (ProbeResult, error) {
	path, err := exec.LookPath(r.config.BinaryPath)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("cli binary %q not found: %w", r.config.BinaryPath, err)
	}

	result := ProbeResult{Path: path, Version: "unknown"}

	ctx, cancel := context.WithTimeout(ctx, DefaultProbeTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return result, nil
	}

	if v := parseVersion(string(output)); v != "" {
		result.Version = v
	}
	return result, nil
}

// parseVersion extracts the version from the first non-empty output line.
// "strands, version 0.3.1" -> "0.3.1"; anything else returns the whole line.
func parseVersion(output string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if i := strings.LastIndex(line, "version "); i >= 0 {
			return strings.TrimSpace(line[i+len("version "):])
		}
		return line
	}
	return ""
}
