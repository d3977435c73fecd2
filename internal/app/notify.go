package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"house-finance/internal/alerting"
	"house-finance/internal/ingest"
)

// Notify sends the month-to-date progress report for a day, today by default.
// A dry run prints the messages instead.
func (a *App) Notify(ctx context.Context, opts NotifyOptions) error {
	day := a.now()
	if opts.Date != "" {
		parsed, err := time.ParseInLocation(ingest.DateLayout, opts.Date, a.Config.Location())
		if err != nil {
			return fmt.Errorf("invalid date %q: %w", opts.Date, err)
		}
		day = parsed
	}

	var notifier alerting.Notifier
	if !opts.DryRun {
		if notifier = a.newNotifier(); notifier == nil {
			return errors.New("telegram not enabled; use --dry-run to print the report")
		}
	}

	store, closeStore, err := a.requireStore(ctx, "build the report")
	if err != nil {
		return err
	}
	defer closeStore()

	reporter := a.newReporter(store, notifier)
	report, err := reporter.Build(ctx, day)
	if err != nil {
		return err
	}
	if opts.DryRun {
		fmt.Fprintln(a.Out, strings.Join(report.Messages(), "\n\n---\n\n"))
		return nil
	}
	return alerting.SendReport(ctx, notifier, report)
}

func (a *App) now() time.Time {
	return time.Now().In(a.Config.Location())
}

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
