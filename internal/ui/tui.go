// ABOUTME: TUI initialization and control
// ABOUTME: Wraps bubbletea program for player UI
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// VolumeControl carries volume/mute changes from the TUI's key handler to
// the endpoint that owns the output device, and a quit signal back out.
type VolumeControl struct {
	Changes chan VolumeChangeMsg
	Quit    chan QuitMsg
}

// NewVolumeControl creates a VolumeControl with small buffered channels so
// a keypress never blocks the Bubble Tea update loop.
func NewVolumeControl() *VolumeControl {
	return &VolumeControl{
		Changes: make(chan VolumeChangeMsg, 4),
		Quit:    make(chan QuitMsg, 1),
	}
}

// NewModel creates a new TUI model. volumeCtrl may be nil in tests or when
// the TUI is used read-only (status display without volume control).
func NewModel(volumeCtrl *VolumeControl) Model {
	return Model{
		volume:         100,
		state:          "idle",
		correctionMode: "none",
		volumeCtrl:     volumeCtrl,
	}
}

// Run starts the TUI.
func Run(volumeCtrl *VolumeControl) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(volumeCtrl), tea.WithAltScreen())
	return p, nil
}
