package tui

import (
	"encoding/json"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/strands-bridge/internal/event"
	"github.com/randomizedcoder/strands-bridge/internal/stats"
	"github.com/randomizedcoder/strands-bridge/internal/supervisor"
	"github.com/randomizedcoder/strands-bridge/internal/timeseries"
	"github.com/randomizedcoder/strands-bridge/internal/watcher"
)

// DefaultTailSize is the number of events kept in the event tail.
const DefaultTailSize = 200

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// EventMsg carries one event from the hub subscription.
type EventMsg event.Event

// EventsClosedMsg is sent when the hub subscription ends.
type EventsClosedMsg struct{}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Sources
// =============================================================================

// StatsSource provides aggregated launch statistics.
type StatsSource interface {
	Aggregate() *stats.Aggregate
}

// LaunchSource lists running launches.
type LaunchSource interface {
	Active() []supervisor.Info
}

// WatchSource lists running config watches.
type WatchSource interface {
	Active() []watcher.WatchInfo
}

// HubStats reports event hub counters.
type HubStats interface {
	Stats() (published, dropped int64, subscribers int)
}

// RateSource reports rolling forwarded line rates.
type RateSource interface {
	Rates() timeseries.Rates
}

// Config holds TUI configuration.
type Config struct {
	CLIPath    string
	ListenAddr string

	Stats    StatsSource
	Launches LaunchSource
	Watches  WatchSource
	Hub      HubStats
	LineRate RateSource

	// Events is a hub subscription. Optional.
	Events <-chan event.Event

	// TailSize bounds the event tail. Defaults to DefaultTailSize.
	TailSize int
}

// =============================================================================
// Model
// =============================================================================

// tailEntry is one rendered line of the event tail.
type tailEntry struct {
	id   int64
	typ  string
	at   time.Time
	text string
}

// Model represents the TUI state.
type Model struct {
	// Configuration
	cliPath    string
	listenAddr string

	// Sources
	statsSource  StatsSource
	launchSource LaunchSource
	watchSource  WatchSource
	hub          HubStats
	lineRate     RateSource
	events       <-chan event.Event

	// Current state
	agg          *stats.Aggregate
	launches     []supervisor.Info
	watches      []watcher.WatchInfo
	published    int64
	dropped      int64
	rates        timeseries.Rates
	eventsClosed bool
	startTime    time.Time
	lastUpdate   time.Time

	// Event tail
	tail     []tailEntry
	tailSize int
	paused   bool
	errOnly  bool

	// Display options
	width  int
	height int

	// Quit flag
	quitting bool
}

// New creates a new TUI model.
func New(cfg Config) Model {
	size := cfg.TailSize
	if size <= 0 {
		size = DefaultTailSize
	}
	return Model{
		cliPath:      cfg.CLIPath,
		listenAddr:   cfg.ListenAddr,
		statsSource:  cfg.Stats,
		launchSource: cfg.Launches,
		watchSource:  cfg.Watches,
		hub:          cfg.Hub,
		lineRate:     cfg.LineRate,
		events:       cfg.Events,
		tailSize:     size,
		startTime:    time.Now(),
		lastUpdate:   time.Now(),
		width:        80,
		height:       24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	if m.events == nil {
		return tickCmd()
	}
	return tea.Batch(tickCmd(), waitForEvent(m.events))
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "p":
			m.paused = !m.paused
			return m, nil
		case "e":
			m.errOnly = !m.errOnly
			return m, nil
		case "c":
			m.tail = m.tail[:0]
			return m, nil
		case "r":
			return m.refresh(), nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		return m.refresh(), tickCmd()

	case EventMsg:
		if !m.paused {
			m = m.appendEvent(event.Event(msg))
		}
		return m, waitForEvent(m.events)

	case EventsClosedMsg:
		m.eventsClosed = true
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderDashboard()
}

func (m Model) refresh() Model {
	if m.statsSource != nil {
		m.agg = m.statsSource.Aggregate()
	}
	if m.launchSource != nil {
		m.launches = m.launchSource.Active()
	}
	if m.watchSource != nil {
		m.watches = m.watchSource.Active()
	}
	if m.hub != nil {
		m.published, m.dropped, _ = m.hub.Stats()
	}
	if m.lineRate != nil {
		m.rates = m.lineRate.Rates()
	}
	m.lastUpdate = time.Now()
	return m
}

func (m Model) appendEvent(ev event.Event) Model {
	entry := tailEntry{
		id:   ev.ID,
		typ:  ev.Type,
		at:   ev.At,
		text: describeEvent(ev),
	}
	// Copy so earlier Model values keep their own tail.
	tail := make([]tailEntry, 0, len(m.tail)+1)
	tail = append(tail, m.tail...)
	tail = append(tail, entry)
	if len(tail) > m.tailSize {
		tail = tail[len(tail)-m.tailSize:]
	}
	m.tail = tail
	return m
}

// describeEvent renders an event payload as a single line.
func describeEvent(ev event.Event) string {
	switch ev.Type {
	case event.CLIExit:
		var p event.ExitPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return string(ev.Data)
		}
		return fmt.Sprintf("%s exited with %d after %s",
			shortID(p.ID), p.ExitCode, formatMs(time.Duration(p.DurationMs)*time.Millisecond))
	default:
		var s string
		if err := json.Unmarshal(ev.Data, &s); err != nil {
			return string(ev.Data)
		}
		return s
	}
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// waitForEvent blocks for the next event on ch.
func waitForEvent(ch <-chan event.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return EventsClosedMsg{}
		}
		return EventMsg(ev)
	}
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the dashboard started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// ActiveLaunches returns the number of running launches.
func (m Model) ActiveLaunches() int {
	return len(m.launches)
}

// ActiveWatches returns the number of running watches.
func (m Model) ActiveWatches() int {
	return len(m.watches)
}

// Paused reports whether the event tail is frozen.
func (m Model) Paused() bool {
	return m.paused
}

// TailLen returns the number of events in the tail.
func (m Model) TailLen() int {
	return len(m.tail)
}

// visibleTail returns the tail entries that pass the current filter.
func (m Model) visibleTail() []tailEntry {
	if !m.errOnly {
		return m.tail
	}
	out := make([]tailEntry, 0, len(m.tail))
	for _, e := range m.tail {
		if e.typ == event.CLIError {
			out = append(out, e)
		}
	}
	return out
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatNumber formats a number with K/M suffixes.
func formatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// formatMs formats a duration as milliseconds.
func formatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}

// formatPercent formats a percentage.
func formatPercent(value float64) string {
	return fmt.Sprintf("%.1f%%", value*100)
}

// shortID trims a UUID to its first group.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncate shortens s to at most width runes.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 1 {
		return string(r[:width])
	}
	return string(r[:width-1]) + "…"
}
