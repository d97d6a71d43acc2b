// Package tui is a minimal bubbletea dashboard over an engine.Manager. It
// polls Glance() every TickInterval rather than subscribing to lifecycle
// events directly.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/floodgate-dl/floodgate/internal/engine"
)

type uiState int

const (
	dashboardState uiState = iota
	addDownloadState
)

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(TickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// RootModel is the whole dashboard: one scrollable list of jobs, driven by
// periodic Glance() polls, plus a small add-download form.
type RootModel struct {
	manager *engine.Manager

	width, height int
	state         uiState

	jobs   []engine.JobGlance
	cursor int
	bars   map[string]progress.Model

	urlInput  textinput.Model
	destInput textinput.Model
	focused   int // 0 = url, 1 = dest

	statusLine string
}

// New builds the initial model for a freshly started dashboard.
func New(manager *engine.Manager) RootModel {
	urlInput := textinput.New()
	urlInput.Placeholder = "https://example.com/file.zip"
	urlInput.Prompt = ""
	urlInput.Width = InputWidth

	destInput := textinput.New()
	destInput.Placeholder = "./downloads/file.zip"
	destInput.Prompt = ""
	destInput.Width = InputWidth

	return RootModel{
		manager:   manager,
		state:     dashboardState,
		bars:      make(map[string]progress.Model),
		urlInput:  urlInput,
		destInput: destInput,
	}
}

func (m RootModel) Init() tea.Cmd {
	return tickCmd()
}

// barFor returns (creating if needed) the progress bar tracking one job id.
func (m RootModel) barFor(id string) progress.Model {
	if p, ok := m.bars[id]; ok {
		return p
	}
	p := progress.New(progress.WithDefaultGradient())
	m.bars[id] = p
	return p
}
