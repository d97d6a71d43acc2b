package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/floodgate-dl/floodgate/internal/config"
	"github.com/floodgate-dl/floodgate/internal/engine"
)

const getPollInterval = 200 * time.Millisecond

var getDest string

var getCmd = &cobra.Command{
	Use:   "get <url>",
	Short: "download a single URL and exit once it finishes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url := args[0]
		dest := getDest
		if dest == "" {
			dest = filepath.Base(url)
		}

		settings := config.LoadEngineSettings(viperInstance)
		manager, err := engine.NewManager(settings, zerolog.Nop())
		if err != nil {
			return fmt.Errorf("init engine: %w", err)
		}
		defer manager.Shutdown()

		id := manager.Submit(url, dest)

		bar := pb.New64(0)
		bar.Set(pb.Bytes, true)
		bar.SetTemplateString(`{{ green (cycle . "◐" "◓" "◑" "◒" ) }} {{counters . }} {{bar . }} {{speed . }}`)
		bar.Start()
		defer bar.Finish()

		sizeKnown := false
		for {
			glance, err := manager.Detail(id)
			if err != nil {
				return err
			}

			if glance.HasSize && !sizeKnown {
				bar.SetTotal(glance.TotalSize)
				sizeKnown = true
			}
			bar.SetCurrent(glance.Downloaded)

			switch glance.State.Kind {
			case engine.Completed:
				bar.SetCurrent(glance.Downloaded)
				bar.Finish()
				color.Green("downloaded %s", dest)
				return nil
			case engine.Cancelled:
				bar.Finish()
				return fmt.Errorf("download cancelled")
			case engine.Error:
				bar.Finish()
				return fmt.Errorf("download failed: %s", glance.State.Message)
			}

			time.Sleep(getPollInterval)
		}
	},
}

func init() {
	getCmd.Flags().StringVarP(&getDest, "output", "o", "", "destination path (defaults to the URL's basename)")
}
