// Package stats tracks launch outcomes for the dashboard and the exit
// summary.
//
// This file implements the exit summary formatter which displays launch
// statistics at program exit.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	ruleHeavy = "═══════════════════════════════════════════════════════════════════════════════\n"
	ruleLight = "───────────────────────────────────────────────────────────────────────────────\n"
)

// SummaryConfig holds configuration for summary formatting.
type SummaryConfig struct {
	// Duration is the total run duration
	Duration time.Duration

	// CLIPath is the configured CLI binary
	CLIPath string

	// ListenAddr is the HTTP API address
	ListenAddr string

	// PeakActive is the highest number of concurrent launches
	PeakActive int

	// WatchChanges is the number of config file changes detected
	WatchChanges int64

	// EventsPublished and EventsDropped come from the event hub
	EventsPublished int64
	EventsDropped   int64
}

// FormatExitSummary formats launch stats for display at program exit.
func FormatExitSummary(agg *Aggregate, cfg SummaryConfig) string {
	if agg == nil {
		return formatBasicSummary(cfg)
	}

	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(ruleHeavy)
	b.WriteString("                          strands-bridge Exit Summary\n")
	b.WriteString(ruleHeavy + "\n")

	// Run info
	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	if cfg.CLIPath != "" {
		fmt.Fprintf(&b, "CLI:                    %s\n", cfg.CLIPath)
	}
	fmt.Fprintf(&b, "Peak Active Launches:   %d\n\n", cfg.PeakActive)

	// Launches
	b.WriteString(ruleLight)
	b.WriteString("                                  Launches\n")
	b.WriteString(ruleLight + "\n")

	fmt.Fprintf(&b, "  Started:              %d\n", agg.Started)
	fmt.Fprintf(&b, "  Succeeded:            %d\n", agg.Succeeded)
	fmt.Fprintf(&b, "  Failed:               %d\n", agg.Failed)
	if agg.Cancelled > 0 {
		fmt.Fprintf(&b, "  Cancelled:            %d\n", agg.Cancelled)
	}
	if agg.SpawnFailures > 0 {
		fmt.Fprintf(&b, "  Spawn Failures:       %d\n", agg.SpawnFailures)
	}
	if agg.Finished() > 0 {
		fmt.Fprintf(&b, "  Success Rate:         %.1f%%\n", agg.SuccessRate()*100)
	}
	b.WriteString("\n")

	// Duration distribution
	if agg.Finished() > 0 {
		b.WriteString(ruleLight)
		b.WriteString("                            Duration Distribution\n")
		b.WriteString(ruleLight + "\n")

		fmt.Fprintf(&b, "  P50 (median):         %s\n", FormatMs(agg.DurationP50))
		fmt.Fprintf(&b, "  P95:                  %s\n", FormatMs(agg.DurationP95))
		fmt.Fprintf(&b, "  P99:                  %s\n", FormatMs(agg.DurationP99))
		fmt.Fprintf(&b, "  Max:                  %s\n", FormatMs(agg.DurationMax))
		b.WriteString("\n")
	}

	// Output and events
	b.WriteString(ruleLight)
	b.WriteString("                              Output & Events\n")
	b.WriteString(ruleLight + "\n")

	streams := make([]string, 0, len(agg.Lines))
	for stream := range agg.Lines {
		streams = append(streams, stream)
	}
	sort.Strings(streams)
	for _, stream := range streams {
		fmt.Fprintf(&b, "  %-22s%s\n", stream+" lines:", FormatNumber(agg.Lines[stream]))
	}
	fmt.Fprintf(&b, "  Config Changes:       %d\n", cfg.WatchChanges)
	fmt.Fprintf(&b, "  Events Published:     %s\n", FormatNumber(cfg.EventsPublished))
	if cfg.EventsDropped > 0 {
		fmt.Fprintf(&b, "  Events Dropped:       %s (slow subscribers)\n", FormatNumber(cfg.EventsDropped))
	}
	b.WriteString("\n")

	// Exit codes
	if len(agg.ExitCodes) > 0 {
		b.WriteString(ruleLight)
		b.WriteString("                                Exit Codes\n")
		b.WriteString(ruleLight + "\n")

		for _, code := range SortedExitCodes(agg.ExitCodes) {
			fmt.Fprintf(&b, "  %3d %-16s %d\n", code, exitCodeLabel(code), agg.ExitCodes[code])
		}
		b.WriteString("\n")
	}

	if cfg.ListenAddr != "" {
		fmt.Fprintf(&b, "API endpoint was: http://%s/\n", cfg.ListenAddr)
	}

	b.WriteString(ruleHeavy)

	return b.String()
}

// formatBasicSummary formats a basic summary when stats are not available.
func formatBasicSummary(cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(ruleHeavy)
	b.WriteString("                          strands-bridge Exit Summary\n")
	b.WriteString(ruleHeavy + "\n")

	fmt.Fprintf(&b, "Run Duration:           %s\n\n", FormatDuration(cfg.Duration))
	b.WriteString("(No launches were recorded)\n\n")

	if cfg.ListenAddr != "" {
		fmt.Fprintf(&b, "API endpoint was: http://%s/\n", cfg.ListenAddr)
	}

	b.WriteString(ruleHeavy)

	return b.String()
}

// exitCodeLabel returns a human-readable label for common exit codes.
func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 1:
		return "(error)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		// Sub-millisecond, show microseconds
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}
