package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/floodgate-dl/floodgate/internal/config"
	"github.com/floodgate-dl/floodgate/internal/engine"
	"github.com/floodgate-dl/floodgate/internal/tui"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	Aliases: []string{"dash", "ui"},
	Short:   "open the interactive terminal dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := config.LoadEngineSettings(viperInstance)
		manager, err := engine.NewManager(settings, zerolog.Nop())
		if err != nil {
			return fmt.Errorf("init engine: %w", err)
		}
		defer manager.Shutdown()

		p := tea.NewProgram(tui.New(manager), tea.WithAltScreen())
		_, err = p.Run()
		return err
	},
}
