package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"house-finance/internal/alerting"
	"house-finance/internal/ingest"
	"house-finance/internal/storage"
)

// Export writes categorized expenses as CSV and/or a PNG bar chart of spend
// per high-level category. The window defaults to month to date.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	opts.MaxRows = a.Config.ResolveMaxRows(opts.MaxRows)

	from, to, err := a.exportWindow(opts)
	if err != nil {
		return err
	}

	store, closeStore, err := a.requireStore(ctx, "export")
	if err != nil {
		return err
	}
	defer closeStore()

	if opts.CSVPath != "" {
		rows, err := store.ListExpensesBetween(ctx, from, to, opts.MaxRows)
		if err != nil {
			return err
		}
		path := a.exportPath(opts.CSVPath)
		if err := writeExpensesCSV(path, rows); err != nil {
			return err
		}
		a.Logger.Info().Str("path", path).Int("rows", len(rows)).Msg("expenses exported")
	}

	if opts.PNGPath != "" {
		report, err := a.newReporter(store, nil).Build(ctx, to)
		if err != nil {
			return err
		}
		path := a.exportPath(opts.PNGPath)
		if err := writeSpendPNG(path, report); err != nil {
			return err
		}
		a.Logger.Info().Str("path", path).Int("categories", len(report.Lines)).Msg("spend chart exported")
	}
	return nil
}

func (a *App) exportWindow(opts ExportOptions) (time.Time, time.Time, error) {
	loc := a.Config.Location()
	to := a.now()
	if opts.To != "" {
		parsed, err := time.ParseInLocation(ingest.DateLayout, opts.To, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to value: %w", err)
		}
		to = parsed
	}
	from := firstOfMonth(to)
	if opts.From != "" {
		parsed, err := time.ParseInLocation(ingest.DateLayout, opts.From, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from value: %w", err)
		}
		from = parsed
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, errors.New("from must not be after to")
	}
	return from, to, nil
}

// exportPath places relative paths under the configured export directory.
func (a *App) exportPath(path string) string {
	if filepath.IsAbs(path) || a.Config.Export.Directory == "" {
		return path
	}
	return filepath.Join(a.Config.Export.Directory, path)
}

func writeExpensesCSV(path string, rows []storage.ExpenseRow) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"id", "date", "account_number", "amount", "category_id", "description"}); err != nil {
		return err
	}
	for _, row := range rows {
		category := ""
		if row.CategoryID != nil {
			category = strconv.Itoa(*row.CategoryID)
		}
		record := []string{
			row.ID,
			row.Date,
			row.AccountNumber,
			row.Amount.StringFixed(2),
			category,
			row.Description,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// writeSpendPNG labels bars with category slugs; the bundled chart font has
// no Hebrew glyphs.
func writeSpendPNG(path string, report alerting.Report) error {
	bars := make([]chart.Value, 0, len(report.Lines))
	top := 0.0
	for _, line := range report.Lines {
		v := line.Expense.InexactFloat64()
		if v > top {
			top = v
		}
		if l := line.Limit.InexactFloat64(); l > top {
			top = l
		}
		bars = append(bars, chart.Value{Label: string(line.Category), Value: v})
	}
	if top <= 0 {
		return errors.New("no expenses to chart")
	}

	if err := ensureDir(path); err != nil {
		return err
	}

	graph := chart.BarChart{
		Title:    "Spend " + report.Date,
		Width:    1280,
		Height:   720,
		BarWidth: 80,
		Background: chart.Style{
			Padding: chart.Box{Top: 40},
		},
		UseBaseValue: true,
		BaseValue:    0,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: top * 1.1},
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		Bars: bars,
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
