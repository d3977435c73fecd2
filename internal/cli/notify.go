package cli

import (
	"github.com/spf13/cobra"

	"house-finance/internal/app"
)

var (
	notifyDate   string
	notifyDryRun bool
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Send the month-to-date spending report",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Notify(cmd.Context(), app.NotifyOptions{
			Date:   notifyDate,
			DryRun: notifyDryRun,
		})
	},
}

func init() {
	notifyCmd.Flags().StringVar(&notifyDate, "date", "", "Report day (YYYY-MM-DD, defaults to today)")
	notifyCmd.Flags().BoolVar(&notifyDryRun, "dry-run", false, "Print the messages instead of sending them")
}
