// ABOUTME: Bubbletea model for player TUI
// ABOUTME: Defines application state and update logic
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	goodStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	degradedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	lostStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	faintStyle    = lipgloss.NewStyle().Faint(true)
)

// syncStyle picks the color for a SyncQuality value, matched against the
// teacher's header/value palette.
func syncStyle(q SyncQuality) lipgloss.Style {
	switch q {
	case QualityGood:
		return goodStyle
	case QualityDegraded:
		return degradedStyle
	default:
		return lostStyle
	}
}

// SyncQuality buckets the clock synchronizer's status for display;
// it does not replace internal/clock.Status, only summarizes it.
type SyncQuality int

const (
	QualityLost SyncQuality = iota
	QualityDegraded
	QualityGood
)

// Model represents the TUI state: a projection of pkg/endpoint.Status
// (itself a projection of internal/pipeline.Snapshot) onto display fields.
type Model struct {
	// Connection
	connected  bool
	serverName string

	// Sync (internal/clock.Status)
	syncOffsetUs      float64
	syncUncertaintyUs float64
	driftUsPerS       float64
	syncQuality       SyncQuality

	// Stream format
	codec      string
	sampleRate int
	channels   int
	bitDepth   int

	// Metadata (trimmed to what OnMetadata actually relays)
	title  string
	artist string

	// Playback
	state  string
	volume int
	muted  bool

	// Buffer/correction status (internal/buffer.Stats, internal/correction.State)
	bufferDepthMs   float64
	smoothedErrorUs float64
	correctionMode  string
	overrunCount    uint64
	underrunCount   uint64

	// Stats
	received int64
	played   int64
	dropped  int64

	// Debug
	showDebug        bool
	rawErrorUs       float64
	measurementCount uint64
	framesEmitted    uint64
	inStartupGrace   bool

	// Dimensions
	width  int
	height int

	// Volume control channel
	volumeCtrl *VolumeControl
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderStreamInfo()
	s += m.renderControls()
	s += m.renderStatus()
	s += m.renderStats()

	if m.showDebug {
		s += m.renderDebug()
	}

	s += m.renderHelp()

	return s
}

// renderHeader renders connection and sync status
func (m Model) renderHeader() string {
	connStatus := "Disconnected"
	if m.connected {
		connStatus = fmt.Sprintf("Connected to %s", m.serverName)
	}

	syncIcon := "✗"
	syncText := "Lost"
	switch m.syncQuality {
	case QualityGood:
		syncIcon = "✓"
		syncText = fmt.Sprintf("Synced (offset: %+.2fms ±%.2fms, drift: %+.1fµs/s)",
			m.syncOffsetUs/1000.0, m.syncUncertaintyUs/1000.0, m.driftUsPerS)
	case QualityDegraded:
		syncIcon = "⚠"
		syncText = "Degraded"
	}
	syncText = syncStyle(m.syncQuality).Render(syncText)

	// Use terminal width for responsive layout
	width := m.width
	if width < 60 {
		width = 60 // Minimum width
	}
	innerWidth := width - 4 // Account for borders

	titleWidth := width - 20 // Space for "┌─ Resonate Player " prefix
	title := "┌─ Resonate Player " + repeatString("─", titleWidth) + "┐\n"

	statusLine := fmt.Sprintf("│ Status: %-*s │\n", innerWidth-9, truncate(connStatus, innerWidth-9))
	syncLine := fmt.Sprintf("│ Sync:   %s %-*s │\n", syncIcon, innerWidth-11, truncate(syncText, innerWidth-11))
	separator := "├" + repeatString("─", width-2) + "┤\n"

	return title + statusLine + syncLine + separator
}

// renderStreamInfo renders a minimal now-playing line (when metadata has
// arrived) and the negotiated stream format.
func (m Model) renderStreamInfo() string {
	width := m.width
	if width < 60 {
		width = 60
	}
	innerWidth := width - 4

	if !m.connected || m.codec == "" {
		return fmt.Sprintf("│ %-*s │\n", innerWidth, "No stream")
	}

	s := ""
	if m.title != "" {
		nowPlaying := fmt.Sprintf("Now Playing: %s - %s", m.title, m.artist)
		s += fmt.Sprintf("│ %-*s │\n", innerWidth, truncate(nowPlaying, innerWidth))
	}

	formatStr := fmt.Sprintf("Format: %s %dHz %s %d-bit",
		m.codec, m.sampleRate, channelName(m.channels), m.bitDepth)
	s += fmt.Sprintf("│ %-*s │\n", innerWidth, formatStr)

	return s
}

// renderControls renders volume
func (m Model) renderControls() string {
	width := m.width
	if width < 60 {
		width = 60
	}
	innerWidth := width - 4

	muteIcon := ""
	if m.muted {
		muteIcon = " 🔇"
	}

	volumeBar := renderBar(m.volume, 100, 10)

	s := fmt.Sprintf("│ %-*s │\n", innerWidth, "")
	volumeStr := fmt.Sprintf("Volume: [%s] %d%%%s", volumeBar, m.volume, muteIcon)
	s += fmt.Sprintf("│ %-*s │\n", innerWidth, volumeStr)

	return s
}

// renderStatus renders the buffer/correction status that drives the sync
// correction decision (§4.C timed buffer, §4.D correction controller).
func (m Model) renderStatus() string {
	width := m.width
	if width < 60 {
		width = 60
	}
	innerWidth := width - 4

	bufferStr := fmt.Sprintf("Buffer: %.0fms   Error: %+.1fms   Drift: %+.1fµs/s",
		m.bufferDepthMs, m.smoothedErrorUs/1000.0, m.driftUsPerS)
	bufferLine := fmt.Sprintf("│ %-*s │\n", innerWidth, bufferStr)

	correctionStr := fmt.Sprintf("Correction: %-10s Overruns: %d  Underruns: %d",
		m.correctionMode, m.overrunCount, m.underrunCount)
	correctionLine := fmt.Sprintf("│ %-*s │\n", innerWidth, correctionStr)

	return bufferLine + correctionLine
}

// renderStats renders playback statistics
func (m Model) renderStats() string {
	width := m.width
	if width < 60 {
		width = 60
	}
	innerWidth := width - 4

	separator := "├" + repeatString("─", width-2) + "┤\n"
	statsStr := fmt.Sprintf("Stats:  RX: %d  Played: %d  Dropped: %d", m.received, m.played, m.dropped)
	statsLine := fmt.Sprintf("│ %-*s │\n", innerWidth, statsStr)
	emptyLine := fmt.Sprintf("│ %-*s │\n", innerWidth, "")

	return separator + statsLine + emptyLine
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	width := m.width
	if width < 60 {
		width = 60
	}
	innerWidth := width - 4

	helpStr := "↑/↓:Volume  m:Mute  d:Debug  q:Quit"
	helpLine := fmt.Sprintf("│ %-*s │\n", innerWidth, helpStr)
	bottom := "└" + repeatString("─", width-2) + "┘\n"

	return helpLine + bottom
}

// renderDebug renders the underlying clock/correction measurements behind
// the summarized status line.
func (m Model) renderDebug() string {
	width := m.width
	if width < 60 {
		width = 60
	}
	innerWidth := width - 4

	debugTitle := fmt.Sprintf("│ %-*s │\n", innerWidth, "DEBUG:")
	rawStr := fmt.Sprintf("  Raw error: %+.1fms   Measurements: %d", m.rawErrorUs/1000.0, m.measurementCount)
	rawLine := fmt.Sprintf("│ %-*s │\n", innerWidth, rawStr)
	framesStr := fmt.Sprintf("  Frames emitted: %d   Startup grace: %v", m.framesEmitted, m.inStartupGrace)
	framesLine := fmt.Sprintf("│ %-*s │\n", innerWidth, framesStr)

	return debugTitle + rawLine + framesLine
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		// Send quit signal to player
		if m.volumeCtrl != nil {
			select {
			case m.volumeCtrl.Quit <- QuitMsg{}:
			default:
				// Channel full, skip
			}
		}
		return m, tea.Quit
	case "up":
		if m.volume < 100 {
			m.volume += 5
			if m.volume > 100 {
				m.volume = 100
			}
			// Send volume change to player via channel
			if m.volumeCtrl != nil {
				select {
				case m.volumeCtrl.Changes <- VolumeChangeMsg{Volume: m.volume, Muted: m.muted}:
				default:
					// Channel full, skip
				}
			}
		}
	case "down":
		if m.volume > 0 {
			m.volume -= 5
			if m.volume < 0 {
				m.volume = 0
			}
			// Send volume change to player via channel
			if m.volumeCtrl != nil {
				select {
				case m.volumeCtrl.Changes <- VolumeChangeMsg{Volume: m.volume, Muted: m.muted}:
				default:
					// Channel full, skip
				}
			}
		}
	case "m":
		m.muted = !m.muted
		// Send volume change to player via channel
		if m.volumeCtrl != nil {
			select {
			case m.volumeCtrl.Changes <- VolumeChangeMsg{Volume: m.volume, Muted: m.muted}:
			default:
				// Channel full, skip
			}
		}
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

// applyStatus updates model from status message. Connection/sync/format/
// metadata/volume fields only overwrite on a "real" value the same way the
// teacher's update logic preserved the last known value between partial
// messages; buffer/correction/stat fields are always applied since zero is
// a legitimate value for them.
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Connected != nil {
		m.connected = *msg.Connected
	}
	if msg.ServerName != "" {
		m.serverName = msg.ServerName
	}
	if msg.SyncOffsetUs != 0 || msg.SyncUncertaintyUs != 0 {
		m.syncOffsetUs = msg.SyncOffsetUs
		m.syncUncertaintyUs = msg.SyncUncertaintyUs
		m.driftUsPerS = msg.DriftUsPerS
		m.syncQuality = msg.SyncQuality
	}
	if msg.Codec != "" {
		m.codec = msg.Codec
		m.sampleRate = msg.SampleRate
		m.channels = msg.Channels
		m.bitDepth = msg.BitDepth
	}
	if msg.Title != "" {
		m.title = msg.Title
		m.artist = msg.Artist
	}
	// Volume is always applied when explicitly sent (can be 0 for silent)
	// We rely on caller not sending Volume=0 in messages unless it's intentional
	if msg.Volume != 0 {
		m.volume = msg.Volume
	}
	m.muted = msg.Muted

	// Always apply status/stats - they can legitimately be zero
	m.bufferDepthMs = msg.BufferDepthMs
	m.smoothedErrorUs = msg.SmoothedErrorUs
	m.correctionMode = msg.CorrectionMode
	m.overrunCount = msg.OverrunCount
	m.underrunCount = msg.UnderrunCount
	m.received = msg.Received
	m.played = msg.Played
	m.dropped = msg.Dropped
	m.rawErrorUs = msg.RawErrorUs
	m.measurementCount = msg.MeasurementCount
	m.framesEmitted = msg.FramesEmitted
	m.inStartupGrace = msg.InStartupGrace
}

// StatusMsg updates TUI state. It mirrors pkg/endpoint.Status (itself a
// projection of internal/pipeline.Snapshot) rather than raw protocol
// messages.
type StatusMsg struct {
	Connected  *bool
	ServerName string

	SyncOffsetUs      float64
	SyncUncertaintyUs float64
	DriftUsPerS       float64
	SyncQuality       SyncQuality

	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int

	Title  string
	Artist string

	Volume int
	Muted  bool

	BufferDepthMs   float64
	SmoothedErrorUs float64
	CorrectionMode  string
	OverrunCount    uint64
	UnderrunCount   uint64

	Received int64
	Played   int64
	Dropped  int64

	RawErrorUs       float64
	MeasurementCount uint64
	FramesEmitted    uint64
	InStartupGrace   bool
}

// VolumeChangeMsg requests a volume change
type VolumeChangeMsg struct {
	Volume int
	Muted  bool
}

// QuitMsg signals the player should quit
type QuitMsg struct{}

// Utility functions
func renderBar(value, max, width int) string {
	filled := (value * width) / max
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func channelName(channels int) string {
	if channels == 1 {
		return "Mono"
	}
	return "Stereo"
}

func repeatString(s string, count int) string {
	if count <= 0 {
		return ""
	}
	return strings.Repeat(s, count)
}
