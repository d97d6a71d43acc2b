package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/floodgate-dl/floodgate/internal/engine"
)

func (m RootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.jobs = m.manager.Glance()
		if m.cursor >= len(m.jobs) {
			m.cursor = len(m.jobs) - 1
		}
		if m.cursor < 0 {
			m.cursor = 0
		}
		return m, tickCmd()

	case tea.KeyMsg:
		switch m.state {
		case dashboardState:
			return m.updateDashboard(msg)
		case addDownloadState:
			return m.updateAddDownload(msg)
		}
	}
	return m, nil
}

func (m RootModel) updateDashboard(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.manager.Shutdown()
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.jobs)-1 {
			m.cursor++
		}

	case "a":
		m.state = addDownloadState
		m.focused = 0
		m.urlInput.SetValue("")
		m.destInput.SetValue("")
		m.urlInput.Focus()
		m.destInput.Blur()
		m.statusLine = ""
		return m, nil

	case "p":
		if job, ok := m.selected(); ok {
			if err := m.manager.Pause(job.ID); err != nil {
				m.statusLine = err.Error()
			}
		}
	case "r":
		if job, ok := m.selected(); ok {
			if err := m.manager.Resume(job.ID); err != nil {
				m.statusLine = err.Error()
			}
		}
	case "c":
		if job, ok := m.selected(); ok {
			if err := m.manager.Cancel(job.ID); err != nil {
				m.statusLine = err.Error()
			}
		}
	}
	return m, nil
}

func (m RootModel) updateAddDownload(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.state = dashboardState
		return m, nil

	case "tab":
		m.focused = (m.focused + 1) % 2
		if m.focused == 0 {
			m.urlInput.Focus()
			m.destInput.Blur()
		} else {
			m.urlInput.Blur()
			m.destInput.Focus()
		}
		return m, nil

	case "enter":
		url := m.urlInput.Value()
		dest := m.destInput.Value()
		if url == "" || dest == "" {
			m.statusLine = "url and destination are both required"
			return m, nil
		}
		m.manager.Submit(url, dest)
		m.state = dashboardState
		return m, nil
	}

	var cmd tea.Cmd
	if m.focused == 0 {
		m.urlInput, cmd = m.urlInput.Update(msg)
	} else {
		m.destInput, cmd = m.destInput.Update(msg)
	}
	return m, cmd
}

func (m RootModel) selected() (engine.JobGlance, bool) {
	if m.cursor < 0 || m.cursor >= len(m.jobs) {
		return engine.JobGlance{}, false
	}
	return m.jobs[m.cursor], true
}
