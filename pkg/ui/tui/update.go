package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"citystories/pkg/ingest"
)

// EventMsg carries a pipeline event into the program
type EventMsg struct {
	Event ingest.Event
}

// DoneMsg is sent once the pipeline has returned
type DoneMsg struct {
	Err error
}

// Init starts the spinner
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case EventMsg:
		m.apply(msg.Event)
		return m, nil

	case DoneMsg:
		m.finished = true
		m.runErr = msg.Err
		if msg.Err != nil {
			m.addLog("ERROR", msg.Err.Error())
		}
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		if !m.finished {
			m.interrupted = true
			if m.onInterrupt != nil {
				m.onInterrupt()
			}
		}
		return m, tea.Quit

	case "ctrl+l":
		m.logMessages = nil
		return m, nil
	}
	return m, nil
}
