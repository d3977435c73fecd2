package cli

import (
	"github.com/spf13/cobra"

	"house-finance/internal/app"
)

var (
	classifyStart  string
	classifyMonths int
	classifyDryRun bool
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Label stored transactions with the category model",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Classify(cmd.Context(), app.ClassifyOptions{
			StartDate: classifyStart,
			Months:    classifyMonths,
			DryRun:    classifyDryRun,
		})
	},
}

func init() {
	classifyCmd.Flags().StringVar(&classifyStart, "start-date", "", "Window start (YYYY-MM-DD, defaults to the first of this month)")
	classifyCmd.Flags().IntVar(&classifyMonths, "months", 0, "Window length in months (defaults to config)")
	classifyCmd.Flags().BoolVar(&classifyDryRun, "dry-run", false, "Print predictions without storing them")
}
