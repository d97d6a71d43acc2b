package tui

import (
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floodgate-dl/floodgate/internal/engine"
)

func newTestModel(t *testing.T) RootModel {
	t.Helper()
	mgr, err := engine.NewManager(engine.DefaultSettings(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(mgr.Shutdown)
	m := New(mgr)
	m.width, m.height = 80, 24
	return m
}

func TestTickRefreshesJobList(t *testing.T) {
	m := newTestModel(t)
	m.manager.Submit("http://example.com/f", filepath.Join(t.TempDir(), "f.bin"))

	updated, _ := m.Update(tickMsg{})
	rm := updated.(RootModel)
	assert.Len(t, rm.jobs, 1)
}

func TestAddDownloadFlow(t *testing.T) {
	m := newTestModel(t)

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a")})
	m = updated.(RootModel)
	assert.Equal(t, addDownloadState, m.state)

	for _, r := range "http://example.com/f.bin" {
		updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = updated.(RootModel)
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = updated.(RootModel)
	assert.Equal(t, 1, m.focused)

	dest := filepath.Join(t.TempDir(), "f.bin")
	for _, r := range dest {
		updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = updated.(RootModel)
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(RootModel)
	assert.Equal(t, dashboardState, m.state)

	m.jobs = m.manager.Glance()
	require.Len(t, m.jobs, 1)
	assert.Equal(t, dest, m.jobs[0].Dest)
}

func TestAddDownloadEscCancels(t *testing.T) {
	m := newTestModel(t)
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a")})
	m = updated.(RootModel)

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = updated.(RootModel)
	assert.Equal(t, dashboardState, m.state)
	assert.Empty(t, m.manager.Glance())
}

func TestDashboardNavigation(t *testing.T) {
	m := newTestModel(t)
	m.manager.Submit("http://example.com/a", filepath.Join(t.TempDir(), "a.bin"))
	m.manager.Submit("http://example.com/b", filepath.Join(t.TempDir(), "b.bin"))

	updated, _ := m.Update(tickMsg{})
	m = updated.(RootModel)
	require.Len(t, m.jobs, 2)

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	m = updated.(RootModel)
	assert.Equal(t, 1, m.cursor)

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("k")})
	m = updated.(RootModel)
	assert.Equal(t, 0, m.cursor)
}

func TestPauseUnknownSelectionIsNoop(t *testing.T) {
	m := newTestModel(t)
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	m = updated.(RootModel)
	assert.Empty(t, m.statusLine)
}
