// Package cmd is the cobra command tree for the floodgate CLI. It binds
// engine.Settings from flags/environment via internal/config, and wires
// each subcommand to an in-process engine.Manager — there is no separate
// client/server split; "serve" just keeps that Manager alive behind the
// HTTP control surface instead of exiting after one command.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/floodgate-dl/floodgate/internal/config"
)

var viperInstance = viper.New()

var rootCmd = &cobra.Command{
	Use:   "floodgate",
	Short: "a concurrent multi-source download engine",
	Long:  `floodgate is a concurrent multi-source download engine with a pluggable control surface.`,
}

// Execute runs the root command. Called once by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	config.BindFlags(rootCmd, viperInstance)
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug-level logging")
	_ = viperInstance.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(watchClipboardCmd)
}
