// Package tui provides a live terminal dashboard for strands-bridge.
//
// The TUI uses Bubble Tea for the application framework and Lipgloss for styling.
// It displays:
// - Running launches and launch outcomes
// - Launch duration percentiles
// - Active config file watches
// - A tail of the event stream
package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/strands-bridge/internal/event"
)

// =============================================================================
// Color Palette
// =============================================================================

// Colors based on a modern dark theme
var (
	// Primary colors
	colorPrimary   = lipgloss.Color("#7C3AED") // Purple
	colorSecondary = lipgloss.Color("#06B6D4") // Cyan

	// Status colors
	colorSuccess = lipgloss.Color("#10B981") // Green
	colorWarning = lipgloss.Color("#F59E0B") // Amber
	colorError   = lipgloss.Color("#EF4444") // Red
	colorInfo    = lipgloss.Color("#3B82F6") // Blue

	// Neutral colors
	colorText      = lipgloss.Color("#E5E7EB") // Light gray
	colorTextMuted = lipgloss.Color("#9CA3AF") // Medium gray
	colorTextDim   = lipgloss.Color("#6B7280") // Dark gray
	colorBorder    = lipgloss.Color("#374151") // Border gray
)

// =============================================================================
// Base Styles
// =============================================================================

var (
	baseStyle = lipgloss.NewStyle().
			Foreground(colorText)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)
)

// =============================================================================
// Status Indicator Styles
// =============================================================================

var (
	statusOK = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	statusWarning = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	statusError = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	statusInfo = lipgloss.NewStyle().
			Foreground(colorInfo).
			Bold(true)
)

// =============================================================================
// Layout Styles
// =============================================================================

var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorPrimary).
			Bold(true).
			Padding(0, 1).
			MarginBottom(1)

	sectionHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(colorBorder)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			MarginTop(1)
)

// =============================================================================
// Value Styles
// =============================================================================

var (
	valueStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Bold(true)

	valueGoodStyle = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	valueBadStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	valueWarnStyle = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			Width(20)

	labelWideStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			Width(24)
)

// =============================================================================
// Progress Bar Styles
// =============================================================================

var (
	progressBarStyle = lipgloss.NewStyle().
				Foreground(colorPrimary)

	progressBarEmptyStyle = lipgloss.NewStyle().
				Foreground(colorBorder)

	progressPercentStyle = lipgloss.NewStyle().
				Foreground(colorText).
				Bold(true)
)

// =============================================================================
// Event Stream Status Indicator
// =============================================================================

// StreamStatus represents the health of the event stream to the dashboard.
type StreamStatus int

const (
	StreamStatusOK StreamStatus = iota
	StreamStatusLossy
	StreamStatusClosed
)

// GetStreamStatus returns the status from the dashboard's view of the hub.
func GetStreamStatus(dropped int64, closed bool) StreamStatus {
	switch {
	case closed:
		return StreamStatusClosed
	case dropped > 0:
		return StreamStatusLossy
	default:
		return StreamStatusOK
	}
}

// GetStreamLabel returns a styled label for the event stream status.
func GetStreamLabel(dropped int64, closed bool) string {
	switch GetStreamStatus(dropped, closed) {
	case StreamStatusClosed:
		return statusError.Render("● Events (closed)")
	case StreamStatusLossy:
		return statusWarning.Render(fmt.Sprintf("● Events (%d dropped)", dropped))
	default:
		return statusOK.Render("● Events")
	}
}

// =============================================================================
// Success Rate Indicator
// =============================================================================

// GetSuccessRateStyle returns a style based on the launch success rate.
func GetSuccessRateStyle(rate float64, finished int64) lipgloss.Style {
	switch {
	case finished == 0:
		return valueStyle
	case rate >= 0.99:
		return valueGoodStyle
	case rate >= 0.9:
		return valueWarnStyle
	default:
		return valueBadStyle
	}
}

// GetExitCodeStyle returns a style for an exit code.
func GetExitCodeStyle(code int) lipgloss.Style {
	switch {
	case code == 0:
		return valueGoodStyle
	case code > 128:
		return valueWarnStyle
	default:
		return valueBadStyle
	}
}

// =============================================================================
// Event Styles
// =============================================================================

// GetEventStyle returns the style used for an event type in the tail.
func GetEventStyle(eventType string) lipgloss.Style {
	switch eventType {
	case event.CLIOutput:
		return baseStyle
	case event.CLIError:
		return statusWarning
	case event.CLIExit:
		return statusInfo
	case event.ConfigFileChanged:
		return statusOK
	default:
		return mutedStyle
	}
}

// eventTag is the short marker shown before each tail line.
func eventTag(eventType string) string {
	switch eventType {
	case event.CLIOutput:
		return "out"
	case event.CLIError:
		return "err"
	case event.CLIExit:
		return "exit"
	case event.ConfigFileChanged:
		return "cfg"
	default:
		return "?"
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// RenderKeyValue renders a label-value pair.
func RenderKeyValue(label string, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		valueStyle.Render(value),
	)
}

// RenderProgressBar renders a progress bar.
func RenderProgressBar(progress float64, width int) string {
	if width < 10 {
		width = 10
	}

	filled := int(progress * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	bar := progressBarStyle.Render(repeatChar('█', filled)) +
		progressBarEmptyStyle.Render(repeatChar('░', width-filled))

	percent := progressPercentStyle.Render(fmt.Sprintf(" %3.0f%%", progress*100))

	return bar + percent
}

func repeatChar(char rune, count int) string {
	if count <= 0 {
		return ""
	}
	result := make([]rune, count)
	for i := range result {
		result[i] = char
	}
	return string(result)
}
