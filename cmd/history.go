package cmd

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/floodgate-dl/floodgate/internal/config"
	"github.com/floodgate-dl/floodgate/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "list previously completed, cancelled and failed downloads",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.Open(filepath.Join(config.GetStateDir(), "history.db"))
		if err != nil {
			return fmt.Errorf("open history ledger: %w", err)
		}
		defer store.Close()

		entries, err := store.List()
		if err != nil {
			return fmt.Errorf("read history ledger: %w", err)
		}
		if len(entries) == 0 {
			fmt.Println("no downloads recorded yet")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		defer w.Flush()
		fmt.Fprintln(w, "STATUS\tCOMPLETED\tURL\tDEST")
		for _, e := range entries {
			status := e.Status
			switch status {
			case "Completed":
				status = color.GreenString(status)
			case "Error":
				status = color.RedString(status)
			case "Cancelled":
				status = color.YellowString(status)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", status, e.CompletedAt.Format("2006-01-02 15:04"), e.URL, e.Dest)
		}
		return nil
	},
}
