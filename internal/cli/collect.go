package cli

import (
	"github.com/spf13/cobra"

	"house-finance/internal/app"
)

var (
	collectStart  string
	collectMonths int
)

var collectCmd = &cobra.Command{
	Use:   "collect [source...]",
	Short: "Scrape sources once and store their transactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Collect(cmd.Context(), app.CollectOptions{
			Sources:   args,
			StartDate: collectStart,
			Months:    collectMonths,
		})
	},
}

func init() {
	collectCmd.Flags().StringVar(&collectStart, "start-date", "", "Scrape start date (YYYY-MM-DD, defaults to the source lookback)")
	collectCmd.Flags().IntVar(&collectMonths, "months", 0, "Months to scrape (defaults to config)")
}
