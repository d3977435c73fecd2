package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"house-finance/internal/storage"
)

// Show prints the most recent transactions.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.requireStore(ctx, "show transactions")
	if err != nil {
		return err
	}
	defer closeStore()

	txns, err := store.ListRecentTransactions(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(txns) == 0 {
		fmt.Fprintln(a.Out, "no transactions found")
		return nil
	}
	return renderTransactions(a.Out, txns)
}

func renderTransactions(out io.Writer, txns []storage.StoredTransaction) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Date\tProcessed\tAccount\tAmount\tCategory\tDescription\tSource")

	for _, t := range txns {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.Date,
			t.ProcessedDate,
			t.AccountNumber,
			t.ChargedAmount.StringFixed(2),
			sanitizeInline(deref(t.CategoryRaw)),
			sanitizeInline(t.Description),
			t.Source,
		)
	}
	return writer.Flush()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	return cleaned
}
