package fetcher

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"house-finance/internal/ingest"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestResolveWindow(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

	w, err := ResolveWindow("", 1, 31, now)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-13", w.StartDate())
	assert.Equal(t, 1, w.Months)

	w, err = ResolveWindow("", 2, 30, now)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-14", w.StartDate())
	assert.Equal(t, "2024-04-14", w.End().Format(ingest.DateLayout))

	w, err = ResolveWindow("2023-11-01", 24, 31, now)
	require.NoError(t, err)
	assert.Equal(t, "2023-11-01", w.StartDate())
}

func TestResolveWindowRejects(t *testing.T) {
	now := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	_, err := ResolveWindow("", 0, 31, now)
	assert.ErrorIs(t, err, ingest.ErrValidation)

	_, err = ResolveWindow("15/03/2024", 1, 31, now)
	assert.ErrorIs(t, err, ingest.ErrValidation)

	_, err = ResolveWindow("1999-12-31", 1, 31, now)
	assert.ErrorIs(t, err, ingest.ErrValidation)

	_, err = ResolveWindow("2000-06-01", 1, 31, now)
	assert.ErrorIs(t, err, ingest.ErrValidation)
}

func TestDateRange(t *testing.T) {
	now := time.Date(2024, 1, 31, 18, 0, 0, 0, time.UTC)

	from, to, err := DateRange("", 1, now)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-31", from.Format(ingest.DateLayout))
	assert.Equal(t, "2024-02-29", to.Format(ingest.DateLayout))

	from, to, err = DateRange("2023-08-01", 5, now)
	require.NoError(t, err)
	assert.Equal(t, "2023-08-01", from.Format(ingest.DateLayout))
	assert.Equal(t, "2024-01-01", to.Format(ingest.DateLayout))

	assert.Equal(t, "2023-02-28", AddMonths(time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC), 2).Format(ingest.DateLayout))

	_, _, err = DateRange("", -1, now)
	assert.ErrorIs(t, err, ingest.ErrValidation)
}

func window() Window {
	return Window{Start: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), Months: 2}
}

func TestScraperDecodesStdout(t *testing.T) {
	s := NewScraper(ScraperOptions{
		Name:    "echo",
		Command: "sh",
		Args:    []string{"-c", `echo '[{"chargedAmount": -18.30, "txns": []}]'`, "sh"},
		Timeout: 5 * time.Second,
	}, noopLogger())

	payload, err := s.Fetch(context.Background(), window())
	require.NoError(t, err)

	list, ok := payload.([]any)
	require.True(t, ok)
	require.Len(t, list, 1)
	rec := list[0].(map[string]any)
	assert.Equal(t, json.Number("-18.30"), rec["chargedAmount"])
}

func TestScraperPassesWindowAndCredentials(t *testing.T) {
	s := NewScraper(ScraperOptions{
		Name:    "args",
		Command: "sh",
		// Prints the positional args it received as a JSON array.
		Args:        []string{"-c", `printf '['; sep=''; for a in "$@"; do printf '%s"%s"' "$sep" "$a"; sep=','; done; printf ']'`, "sh"},
		Credentials: map[string]string{"password": "TEST_PASS", "id": "TEST_ID"},
		PassMonths:  true,
	}, noopLogger())
	s.lookupEnv = func(name string) (string, bool) {
		return map[string]string{"TEST_ID": "123", "TEST_PASS": "secret"}[name], true
	}

	payload, err := s.Fetch(context.Background(), window())
	require.NoError(t, err)
	assert.Equal(t, []any{"--date", "2024-02-01", "--months", "2", "--id", "123", "--password", "secret"}, payload)
}

func TestScraperMissingCredential(t *testing.T) {
	s := NewScraper(ScraperOptions{
		Name:        "missing",
		Command:     "sh",
		Credentials: map[string]string{"password": "HOUSEFIN_TEST_UNSET_VARIABLE"},
	}, noopLogger())
	s.lookupEnv = func(string) (string, bool) { return "", false }

	_, err := s.Fetch(context.Background(), window())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HOUSEFIN_TEST_UNSET_VARIABLE")
}

func TestScraperFailure(t *testing.T) {
	tests := map[string]string{
		"non-zero exit": `exit 3`,
		"stderr output": `echo '[]'; echo 'login failed' >&2`,
	}
	for name, script := range tests {
		t.Run(name, func(t *testing.T) {
			s := NewScraper(ScraperOptions{Name: name, Command: "sh", Args: []string{"-c", script, "sh"}}, noopLogger())
			_, err := s.Fetch(context.Background(), window())
			assert.ErrorIs(t, err, ErrScraperFailed)
		})
	}
}

func TestScraperInvalidJSON(t *testing.T) {
	s := NewScraper(ScraperOptions{Name: "junk", Command: "sh", Args: []string{"-c", "echo not-json", "sh"}}, noopLogger())
	_, err := s.Fetch(context.Background(), window())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrScraperFailed)
}

func TestScraperTimeout(t *testing.T) {
	s := NewScraper(ScraperOptions{
		Name:    "slow",
		Command: "sh",
		Args:    []string{"-c", "sleep 5", "sh"},
		Timeout: 100 * time.Millisecond,
	}, noopLogger())
	_, err := s.Fetch(context.Background(), window())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDescribeFailureTrimsOnRuneBoundary(t *testing.T) {
	// Hebrew letters are two bytes each; an odd offset lands mid-rune.
	stderr := []byte("x" + strings.Repeat("ש", maxStderr))

	msg := describeFailure(nil, stderr)
	require.True(t, strings.HasSuffix(msg, "..."))
	trimmed := strings.TrimSuffix(msg, "...")
	assert.True(t, utf8.ValidString(trimmed))
	assert.LessOrEqual(t, len(trimmed), maxStderr)
	assert.Equal(t, maxStderr-1, len(trimmed))
}
