package alerting

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const progressCells = 20

var (
	hundred = decimal.NewFromInt(100)
	cells   = decimal.NewFromInt(progressCells)
)

// Spend is the month-to-date expense of one account and category.
type Spend struct {
	CategoryID    *int
	AccountNumber string
	Amount        decimal.Decimal
}

// ProgressLine is one high-level category against its monthly limit.
type ProgressLine struct {
	Category HighLevelCategory
	Expense  decimal.Decimal
	Limit    decimal.Decimal
}

// HasLimit reports whether a positive limit is configured.
func (l ProgressLine) HasLimit() bool {
	return l.Limit.IsPositive()
}

// Remaining is the limit minus the expense; negative when over budget.
func (l ProgressLine) Remaining() decimal.Decimal {
	return l.Limit.Sub(l.Expense)
}

// Message renders the line as a progress bar.
func (l ProgressLine) Message() string {
	return progressMessage(l.Category.Label(), l.Expense, l.Limit)
}

// Report is the monthly progress summary for one day.
type Report struct {
	Date  string
	Lines []ProgressLine
}

// BuildReport groups spends into high-level categories. Every category with
// a limit gets a line, spent or not; categories without a limit appear only
// when they have expenses.
func BuildReport(date string, spends []Spend, limits map[string]float64, categorizer *Categorizer) Report {
	totals := make(map[HighLevelCategory]decimal.Decimal)
	for slug, limit := range limits {
		if limit > 0 {
			totals[HighLevelCategory(slug)] = decimal.Zero
		}
	}
	for _, s := range spends {
		cat := categorizer.Categorize(s.CategoryID, s.AccountNumber)
		totals[cat] = totals[cat].Add(s.Amount)
	}

	cats := make([]HighLevelCategory, 0, len(totals))
	for cat := range totals {
		cats = append(cats, cat)
	}
	sortCategories(cats)

	report := Report{Date: date, Lines: make([]ProgressLine, 0, len(cats))}
	for _, cat := range cats {
		line := ProgressLine{Category: cat, Expense: totals[cat]}
		if limit, ok := limits[string(cat)]; ok && limit > 0 {
			line.Limit = decimal.NewFromFloat(limit)
		}
		report.Lines = append(report.Lines, line)
	}
	return report
}

// Totals sums expenses of all lines and limits of the limited ones.
func (r Report) Totals() (expense, limit decimal.Decimal) {
	for _, l := range r.Lines {
		expense = expense.Add(l.Expense)
		if l.HasLimit() {
			limit = limit.Add(l.Limit)
		}
	}
	return expense, limit
}

// StatusMessage renders the overall header message.
func (r Report) StatusMessage() string {
	expense, limit := r.Totals()
	return fmt.Sprintf("Status - %s\n\n", r.Date) + progressMessage(`סה"כ`, expense, limit)
}

// Messages returns the status message followed by one message per line.
func (r Report) Messages() []string {
	out := make([]string, 0, len(r.Lines)+1)
	out = append(out, r.StatusMessage())
	for _, l := range r.Lines {
		out = append(out, l.Message())
	}
	return out
}

// ProgressBar renders expense/limit in 20 cells, clamped to the bar width.
func ProgressBar(expense, limit decimal.Decimal) string {
	filled := 0
	if limit.IsPositive() {
		filled = int(expense.Div(limit).Mul(cells).Floor().IntPart())
	}
	if filled < 0 {
		filled = 0
	}
	if filled > progressCells {
		filled = progressCells
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", progressCells-filled)
}

func progressMessage(title string, expense, limit decimal.Decimal) string {
	if !limit.IsPositive() {
		return fmt.Sprintf("%s\n\n%s ₪ (no limit)", title, expense.StringFixed(1))
	}
	pct := expense.Div(limit).Mul(hundred)
	return fmt.Sprintf("%s\n\n%s\n\n%s ₪ / %s ₪ (%s%%)",
		title, ProgressBar(expense, limit), expense.StringFixed(1), limit.StringFixed(1), pct.StringFixed(1))
}

// SendReport delivers the report messages in order and stops at the first failure.
func SendReport(ctx context.Context, notifier Notifier, report Report) error {
	for i, text := range report.Messages() {
		if err := notifier.Notify(ctx, Notification{Text: text}); err != nil {
			return fmt.Errorf("send report message %d: %w", i, err)
		}
	}
	return nil
}
