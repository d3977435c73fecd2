package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func ptr(v int) *int { return &v }

func TestTelegramNotifierSuccess(t *testing.T) {
	var received sendMessageRequest
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	require.NoError(t, notifier.Notify(context.Background(), Notification{Text: "שלום"}))

	assert.Equal(t, "/bottoken/sendMessage", path)
	assert.Equal(t, "chat", received.ChatID)
	assert.Equal(t, "שלום", received.Text)
}

func TestTelegramNotifierErrors(t *testing.T) {
	tests := map[string]http.HandlerFunc{
		"ok false": func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "chat not found"})
		},
		"bad status": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "Unauthorized"})
		},
	}
	for name, handler := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(handler)
			defer srv.Close()

			notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
			assert.Error(t, notifier.Notify(context.Background(), Notification{Text: "x"}))
		})
	}
}

func TestTelegramNotifierRejectsEmptyText(t *testing.T) {
	notifier := NewTelegramNotifier("token", "chat", "http://127.0.0.1:1", time.Second, testLogger())
	assert.Error(t, notifier.Notify(context.Background(), Notification{Text: "  "}))
}

func TestTelegramNotifierRedactsToken(t *testing.T) {
	notifier := NewTelegramNotifier("s3cr3t-token", "chat", "http://127.0.0.1:1", 200*time.Millisecond, testLogger())
	err := notifier.Notify(context.Background(), Notification{Text: "x"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "s3cr3t-token")
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		expense, limit float64
		filled         int
	}{
		{0, 1000, 0},
		{500, 1000, 10},
		{999, 1000, 19},
		{1000, 1000, 20},
		{2500, 1000, 20},
		{-10, 1000, 0},
		{10, 0, 0},
	}
	for _, tt := range tests {
		bar := ProgressBar(decimal.NewFromFloat(tt.expense), decimal.NewFromFloat(tt.limit))
		assert.Equal(t, tt.filled, strings.Count(bar, "█"), "expense %v limit %v", tt.expense, tt.limit)
		assert.Equal(t, 20, len([]rune(bar)))
	}
}

func TestCategorizer(t *testing.T) {
	c := NewCategorizer(map[string]string{"1029": "variable_noam", "5094": "variable_eden"})

	assert.Equal(t, GroceriesCategory, c.Categorize(ptr(20), "1029"))
	assert.Equal(t, FixedCategory, c.Categorize(ptr(44), "5094"))
	assert.Equal(t, VariableNoamCategory, c.Categorize(ptr(8), "1029"))
	assert.Equal(t, VariableEdenCategory, c.Categorize(nil, "5094"))
	assert.Equal(t, VariableMutualCategory, c.Categorize(ptr(8), "555"))
	assert.Equal(t, VariableMutualCategory, c.Categorize(ptr(16), "1029"))
}

func TestBuildReport(t *testing.T) {
	limits := map[string]float64{"groceries": 2600, "transportation": 850, "variable_noam": 2000}
	spends := []Spend{
		{CategoryID: ptr(20), AccountNumber: "1029", Amount: decimal.NewFromInt(1000)},
		{CategoryID: ptr(21), AccountNumber: "5094", Amount: decimal.NewFromInt(300)},
		{CategoryID: ptr(8), AccountNumber: "1029", Amount: decimal.NewFromInt(500)},
		{CategoryID: nil, AccountNumber: "555", Amount: decimal.NewFromInt(70)},
	}
	report := BuildReport("2024-03-10", spends, limits, NewCategorizer(map[string]string{"1029": "variable_noam"}))

	require.Len(t, report.Lines, 4)
	assert.Equal(t, GroceriesCategory, report.Lines[0].Category)
	assert.True(t, report.Lines[0].Expense.Equal(decimal.NewFromInt(1300)))
	assert.True(t, report.Lines[0].Remaining().Equal(decimal.NewFromInt(1300)))

	assert.Equal(t, TransportationCategory, report.Lines[1].Category)
	assert.True(t, report.Lines[1].Expense.IsZero())

	assert.Equal(t, VariableMutualCategory, report.Lines[2].Category)
	assert.False(t, report.Lines[2].HasLimit())
	assert.Equal(t, VariableNoamCategory, report.Lines[3].Category)

	expense, limit := report.Totals()
	assert.True(t, expense.Equal(decimal.NewFromInt(1870)))
	assert.True(t, limit.Equal(decimal.NewFromInt(5450)))
}

func TestReportMessages(t *testing.T) {
	report := Report{Date: "2024-03-10", Lines: []ProgressLine{
		{Category: GroceriesCategory, Expense: decimal.NewFromInt(1300), Limit: decimal.NewFromInt(2600)},
		{Category: VariableMutualCategory, Expense: decimal.NewFromInt(70)},
	}}

	msgs := report.Messages()
	require.Len(t, msgs, 3)
	assert.True(t, strings.HasPrefix(msgs[0], "Status - 2024-03-10\n\n"))
	assert.Contains(t, msgs[0], "1370.0 ₪ / 2600.0 ₪ (52.7%)")
	assert.Equal(t, "🥕 הוצאות סופר 🍏\n\n██████████░░░░░░░░░░\n\n1300.0 ₪ / 2600.0 ₪ (50.0%)", msgs[1])
	assert.Contains(t, msgs[2], "70.0 ₪ (no limit)")
}

type recordingNotifier struct {
	texts  []string
	failAt int
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	if r.failAt > 0 && len(r.texts)+1 == r.failAt {
		return errors.New("boom")
	}
	r.texts = append(r.texts, n.Text)
	return nil
}

func TestSendReport(t *testing.T) {
	report := Report{Date: "2024-03-10", Lines: []ProgressLine{
		{Category: GroceriesCategory, Expense: decimal.NewFromInt(1), Limit: decimal.NewFromInt(2)},
		{Category: FixedCategory, Expense: decimal.NewFromInt(1), Limit: decimal.NewFromInt(2)},
	}}

	rec := &recordingNotifier{}
	require.NoError(t, SendReport(context.Background(), rec, report))
	assert.Len(t, rec.texts, 3)

	failing := &recordingNotifier{failAt: 2}
	err := SendReport(context.Background(), failing, report)
	require.Error(t, err)
	assert.Len(t, failing.texts, 1)
}
