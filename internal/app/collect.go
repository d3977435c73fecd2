package app

import (
	"context"
	"errors"
	"fmt"

	"house-finance/internal/service"
)

// Collect runs the selected sources once, or every source when none is named.
func (a *App) Collect(ctx context.Context, opts CollectOptions) error {
	store, closeStore, err := a.requireStore(ctx, "collect")
	if err != nil {
		return err
	}
	defer closeStore()

	collector := a.newCollector(store)
	names := opts.Sources
	if len(names) == 0 {
		names = collector.Sources()
	}
	if len(names) == 0 {
		return errors.New("no sources configured")
	}

	var errs []error
	for _, name := range names {
		res, err := collector.Collect(ctx, name, service.CollectOptions{StartDate: opts.StartDate, Months: opts.Months})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		fmt.Fprintf(a.Out, "%s: inserted %d, skipped %d, balance %t\n", name, res.Inserted, res.Skipped, res.Balance)
	}
	return errors.Join(errs...)
}

// Backfill rewrites selected fields of already stored transactions.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	if len(opts.Fields) == 0 {
		return errors.New("at least one field to update is required")
	}

	store, closeStore, err := a.requireStore(ctx, "backfill")
	if err != nil {
		return err
	}
	defer closeStore()

	updated, err := a.newCollector(store).Backfill(ctx, opts.Source, opts.Fields, service.CollectOptions{
		StartDate: opts.StartDate,
		Months:    opts.Months,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "%s: updated %d transactions\n", opts.Source, updated)
	return nil
}
