package app

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"house-finance/internal/fetcher"
	"house-finance/internal/prediction"
)

// Classify labels transactions in [start, start+months). A dry run prints the
// outputs instead of storing them.
func (a *App) Classify(ctx context.Context, opts ClassifyOptions) error {
	months := opts.Months
	if months == 0 {
		months = a.Config.Classifier.MonthsAhead
	}
	now := a.now()
	if opts.StartDate == "" {
		now = firstOfMonth(now)
	}
	from, to, err := fetcher.DateRange(opts.StartDate, months, now)
	if err != nil {
		return err
	}

	store, closeStore, err := a.requireStore(ctx, "classify")
	if err != nil {
		return err
	}
	defer closeStore()

	c, err := a.newClassifier(store)
	if err != nil {
		return err
	}

	if !opts.DryRun {
		res, err := c.Run(ctx, from, to)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "run %s: %d rows, %d overruled, %d stored\n", res.RunID, res.Rows, res.Overruled, res.Stored)
		return nil
	}

	txns, err := store.ListTransactionsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(txns) == 0 {
		fmt.Fprintln(a.Out, "no transactions found")
		return nil
	}
	outputs, err := c.Predict(ctx, txns)
	if err != nil {
		return err
	}
	return renderOutputs(a.Out, outputs)
}

func renderOutputs(out io.Writer, outputs []prediction.Output) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tCategory\tProba\tOverruled")
	for _, o := range outputs {
		category := "-"
		if o.PredictedCategory != nil {
			category = strconv.Itoa(*o.PredictedCategory)
		}
		fmt.Fprintf(writer, "%s\t%s\t%.3f\t%t\n", o.ID, category, o.Proba, o.Overruled)
	}
	return writer.Flush()
}
