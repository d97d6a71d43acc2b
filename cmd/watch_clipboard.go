package cmd

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/floodgate-dl/floodgate/internal/clipboard"
	"github.com/floodgate-dl/floodgate/internal/config"
	"github.com/floodgate-dl/floodgate/internal/engine"
)

var watchClipboardCmd = &cobra.Command{
	Use:   "watch-clipboard",
	Short: "watch the clipboard and submit any URL copied to it",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := config.LoadEngineSettings(viperInstance)
		manager, err := engine.NewManager(settings, zerolog.Nop())
		if err != nil {
			return fmt.Errorf("init engine: %w", err)
		}
		defer manager.Shutdown()

		prefs, err := config.LoadPreferences()
		if err != nil {
			return fmt.Errorf("load preferences: %w", err)
		}

		color.Cyan("watching clipboard for URLs, press ctrl+c to stop")
		return clipboard.Watch(cmd.Context(), func(rawURL string) {
			dest := filepath.Join(prefs.DefaultDownloadDir, destNameFor(rawURL))
			id := manager.Submit(rawURL, dest)
			color.Green("queued %s -> %s (%s)", rawURL, dest, id)
		})
	},
}

// destNameFor picks a filename for a clipboard-discovered URL, falling
// back to a generic name for a URL whose path has no trailing segment.
func destNameFor(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "download"
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "download"
	}
	return name
}
