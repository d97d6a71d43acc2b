package tui

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

func (m RootModel) View() string {
	if m.width == 0 {
		return "loading..."
	}

	switch m.state {
	case addDownloadState:
		return m.viewAddDownload()
	default:
		return m.viewDashboard()
	}
}

func (m RootModel) viewDashboard() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("floodgate") + "\n\n")

	if len(m.jobs) == 0 {
		b.WriteString(SubtextStyle.Render("no downloads yet — press 'a' to add one") + "\n")
	}

	for i, job := range m.jobs {
		row := RowStyle
		prefix := "  "
		if i == m.cursor {
			row = SelectedRowStyle
			prefix = "> "
		}

		sizeStr := "?"
		percent := 0.0
		if job.HasSize && job.TotalSize > 0 {
			sizeStr = humanize.Bytes(uint64(job.TotalSize))
			percent = float64(job.Downloaded) / float64(job.TotalSize)
		}

		bar := m.barFor(job.ID.String())
		bar.Width = 30

		line := fmt.Sprintf("%s%s  %s/%s  %s/s  %s",
			prefix,
			row.Render(truncate(job.Dest, 28)),
			humanize.Bytes(uint64(job.Downloaded)), sizeStr,
			humanize.Bytes(uint64(job.Speed)),
			styleForState(job.State.String()).Render(job.State.String()),
		)
		b.WriteString(line + "\n")
		b.WriteString("  " + bar.ViewAs(percent) + "\n")
	}

	b.WriteString("\n")
	if m.statusLine != "" {
		b.WriteString(styleForState("Error").Render(m.statusLine) + "\n")
	}
	b.WriteString(StatusBarStyle.Render("a add · p pause · r resume · c cancel · j/k move · q quit"))

	return AppStyle.Render(b.String())
}

func (m RootModel) viewAddDownload() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("add download") + "\n\n")
	b.WriteString("url:  " + m.urlInput.View() + "\n")
	b.WriteString("dest: " + m.destInput.View() + "\n\n")
	if m.statusLine != "" {
		b.WriteString(styleForState("Error").Render(m.statusLine) + "\n\n")
	}
	b.WriteString(StatusBarStyle.Render("tab switch field · enter submit · esc cancel"))
	return AppStyle.Render(b.String())
}

// truncate shortens s to fit within n runes, keeping the tail rather than
// the head: for a filesystem path the filename at the end matters more
// than the leading directory components.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return "…" + string(r[len(r)-(n-1):])
}
