package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"house-finance/internal/alerting"
	"house-finance/internal/ingest"
	"house-finance/internal/storage"
)

// Reporter sends the month-to-date spending report.
type Reporter struct {
	expenses    storage.ExpenseStore
	notifier    alerting.Notifier
	categorizer *alerting.Categorizer
	limits      map[string]float64
	loc         *time.Location
	now         func() time.Time
	logger      zerolog.Logger
}

// NewReporter builds a reporter. A nil notifier makes Send build the report
// without delivering it.
func NewReporter(expenses storage.ExpenseStore, notifier alerting.Notifier, limits map[string]float64, personal map[string]string, loc *time.Location, logger zerolog.Logger) *Reporter {
	if loc == nil {
		loc = time.UTC
	}
	return &Reporter{
		expenses:    expenses,
		notifier:    notifier,
		categorizer: alerting.NewCategorizer(personal),
		limits:      limits,
		loc:         loc,
		now:         time.Now,
		logger:      logger.With().Str("component", "reporter").Logger(),
	}
}

// Build aggregates expenses from the first of day's month through day.
func (r *Reporter) Build(ctx context.Context, day time.Time) (alerting.Report, error) {
	day = day.In(r.loc)
	first := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, r.loc)

	rows, err := r.expenses.MonthToDateExpenses(ctx, first, day)
	if err != nil {
		return alerting.Report{}, fmt.Errorf("load month to date expenses: %w", err)
	}
	spends := make([]alerting.Spend, 0, len(rows))
	for _, row := range rows {
		spends = append(spends, alerting.Spend{
			CategoryID:    row.CategoryID,
			AccountNumber: row.AccountNumber,
			Amount:        row.Total,
		})
	}
	return alerting.BuildReport(day.Format(ingest.DateLayout), spends, r.limits, r.categorizer), nil
}

// Send builds today's report and pushes it.
func (r *Reporter) Send(ctx context.Context) (alerting.Report, error) {
	report, err := r.Build(ctx, r.now())
	if err != nil {
		return report, err
	}
	if r.notifier == nil {
		r.logger.Debug().Str("date", report.Date).Msg("notifier disabled, report not sent")
		return report, nil
	}
	if err := alerting.SendReport(ctx, r.notifier, report); err != nil {
		return report, err
	}
	expense, limit := report.Totals()
	r.logger.Info().
		Str("date", report.Date).
		Int("categories", len(report.Lines)).
		Str("expense", expense.StringFixed(2)).
		Str("limit", limit.StringFixed(2)).
		Msg("progress report sent")
	return report, nil
}
