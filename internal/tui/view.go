package tui

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/strands-bridge/internal/stats"
)

// =============================================================================
// Main View Rendering
// =============================================================================

// renderDashboard renders the full dashboard.
func (m Model) renderDashboard() string {
	sections := []string{
		m.renderHeader(),
		m.renderLaunches(),
	}

	if m.agg != nil && m.agg.Finished() > 0 {
		sections = append(sections, m.renderDurations())
	}

	sections = append(sections,
		m.renderWatches(),
		m.renderEventTail(),
		m.renderFooter(),
	)

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	eventsLabel := GetStreamLabel(m.dropped, m.eventsClosed)

	header := fmt.Sprintf(
		" strands-bridge │ %s │ Running: %d │ Watches: %d │ Elapsed: %s ",
		eventsLabel,
		m.ActiveLaunches(),
		m.ActiveWatches(),
		formatDuration(m.Elapsed()),
	)

	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Launches
// =============================================================================

func (m Model) renderLaunches() string {
	rows := []string{sectionHeaderStyle.Render("Launches")}

	if m.agg == nil {
		rows = append(rows, mutedStyle.Render("No launches yet"))
		return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
	}

	a := m.agg
	rate := a.SuccessRate()
	rows = append(rows,
		renderStatRow("Started", formatNumber(a.Started), fmt.Sprintf("%d running", m.ActiveLaunches())),
		renderStatRow("Succeeded", formatNumber(a.Succeeded),
			GetSuccessRateStyle(rate, a.Finished()).Render(formatPercent(rate))),
		renderStatRow("Failed", formatNumber(a.Failed), fmt.Sprintf("%d cancelled", a.Cancelled)),
	)
	if a.Finished() > 0 {
		barWidth := m.width - 30
		if barWidth < 20 {
			barWidth = 20
		}
		rows = append(rows, RenderProgressBar(rate, barWidth))
	}
	if a.SpawnFailures > 0 {
		rows = append(rows, RenderKeyValue("Spawn failures", valueBadStyle.Render(formatNumber(a.SpawnFailures))))
	}

	for _, info := range m.launches {
		rows = append(rows, renderRunningLaunch(info.ID, info.PID, info.Args, time.Duration(info.UptimeMs)*time.Millisecond, m.width-6))
	}

	if len(a.Recent) > 0 {
		rows = append(rows, "", mutedStyle.Render("Recent"))
		limit := len(a.Recent)
		if limit > 5 {
			limit = 5
		}
		for _, rec := range a.Recent[:limit] {
			rows = append(rows, renderRecentLaunch(rec, m.width-6))
		}
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func renderRunningLaunch(id string, pid int, args []string, uptime time.Duration, width int) string {
	prefix := fmt.Sprintf("%s  pid %-7d %s  ", shortID(id), pid, formatDuration(uptime))
	return statusInfo.Render("▶ ") + valueStyle.Render(prefix) +
		mutedStyle.Render(truncate(strings.Join(args, " "), width-len(prefix)-2))
}

func renderRecentLaunch(rec stats.LaunchRecord, width int) string {
	code := GetExitCodeStyle(rec.ExitCode).Render(fmt.Sprintf("%4d", rec.ExitCode))
	prefix := fmt.Sprintf("%s  %8s  ", shortID(rec.ID), formatMs(rec.Duration))
	return code + "  " + baseStyle.Render(prefix) +
		mutedStyle.Render(truncate(strings.Join(rec.Args, " "), width-len(prefix)-6))
}

func renderStatRow(label, value, detail string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelWideStyle.Render(label+":"),
		valueStyle.Width(12).Render(value),
		mutedStyle.Render(" ("),
		valueStyle.Render(detail),
		mutedStyle.Render(")"),
	)
}

// =============================================================================
// Duration Distribution
// =============================================================================

func (m Model) renderDurations() string {
	a := m.agg

	rows := []string{
		sectionHeaderStyle.Render("Launch Duration"),
		RenderKeyValue("P50", formatMs(a.DurationP50)),
		RenderKeyValue("P95", formatMs(a.DurationP95)),
		RenderKeyValue("P99", formatMs(a.DurationP99)),
		RenderKeyValue("Max", formatMs(a.DurationMax)),
		RenderKeyValue("Mean", formatMs(a.DurationMean)),
	}

	if len(a.ExitCodes) > 0 {
		codes := stats.SortedExitCodes(a.ExitCodes)
		parts := make([]string, 0, len(codes))
		for _, code := range codes {
			parts = append(parts, GetExitCodeStyle(code).Render(fmt.Sprintf("%d×%d", code, a.ExitCodes[code])))
		}
		rows = append(rows, RenderKeyValue("Exit codes", strings.Join(parts, " ")))
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Watches
// =============================================================================

func (m Model) renderWatches() string {
	rows := []string{sectionHeaderStyle.Render("Config Watches")}

	if len(m.watches) == 0 {
		rows = append(rows, mutedStyle.Render("No active watches"))
		return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
	}

	watches := append(m.watches[:0:0], m.watches...)
	sort.Slice(watches, func(i, j int) bool { return watches[i].Path < watches[j].Path })

	for _, w := range watches {
		state := statusOK.Render("●")
		mod := w.LastModified.Format("15:04:05")
		if !w.Exists {
			state = statusWarning.Render("○")
			mod = "missing"
		}
		line := fmt.Sprintf("%s  %-8s  %d changes  ", shortID(w.ID), mod, w.Changes)
		rows = append(rows, state+" "+valueStyle.Render(line)+
			mutedStyle.Render(truncate(filepath.Clean(w.Path), m.width-len(line)-10)))
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Event Tail
// =============================================================================

// tailHeight returns how many tail lines fit below the other sections.
func (m Model) tailHeight() int {
	h := m.height - 24 - len(m.launches) - len(m.watches)
	if h < 5 {
		h = 5
	}
	return h
}

func (m Model) renderEventTail() string {
	title := "Events"
	if m.errOnly {
		title += " (errors only)"
	}
	if m.paused {
		title += " " + statusWarning.Render("[paused]")
	}
	rows := []string{sectionHeaderStyle.Render(title)}
	if m.lineRate != nil {
		rows = append(rows, dimStyle.Render(fmt.Sprintf("Lines/s: %.1f │ 10s: %.1f │ 60s: %.1f │ Total: %s",
			m.rates.Per1s, m.rates.Per10s, m.rates.Per60s, formatNumber(m.rates.Total))))
	}

	tail := m.visibleTail()
	if len(tail) == 0 {
		rows = append(rows, mutedStyle.Render("Waiting for events..."))
		return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
	}

	if n := m.tailHeight(); len(tail) > n {
		tail = tail[len(tail)-n:]
	}
	for _, e := range tail {
		stamp := dimStyle.Render(e.at.Format("15:04:05"))
		tag := fmt.Sprintf("%-4s", eventTag(e.typ))
		text := truncate(e.text, m.width-20)
		rows = append(rows, stamp+" "+GetEventStyle(e.typ).Render(tag+" "+text))
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	shortcuts := []string{
		"q: quit",
		"p: pause",
		"e: errors only",
		"c: clear",
		"r: refresh",
	}

	left := dimStyle.Render(strings.Join(shortcuts, " │ "))
	right := dimStyle.Render(fmt.Sprintf("CLI: %s │ API: %s │ Events: %s",
		m.cliPath, m.listenAddr, formatNumber(m.published)))

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	return footerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			left,
			strings.Repeat(" ", padding),
			right,
		),
	)
}
