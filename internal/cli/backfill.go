package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"house-finance/internal/app"
)

var (
	backfillFields []string
	backfillStart  string
	backfillMonths int
)

var backfillCmd = &cobra.Command{
	Use:   "backfill <source>",
	Short: "Re-scrape a source and update selected fields of stored transactions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(backfillFields) == 0 {
			return fmt.Errorf("--fields must be provided")
		}

		return getApp().Backfill(cmd.Context(), app.BackfillOptions{
			Source:    args[0],
			Fields:    backfillFields,
			StartDate: backfillStart,
			Months:    backfillMonths,
		})
	},
}

func init() {
	backfillCmd.Flags().StringSliceVar(&backfillFields, "fields", nil, "Columns to update, e.g. category_raw,type")
	backfillCmd.Flags().StringVar(&backfillStart, "start-date", "", "Scrape start date (YYYY-MM-DD)")
	backfillCmd.Flags().IntVar(&backfillMonths, "months", 0, "Months to scrape (defaults to config)")
}
