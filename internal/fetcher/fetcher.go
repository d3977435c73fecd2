package fetcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"house-finance/internal/ingest"
)

// minScrapeYear bounds how far back a scrape window may start.
const minScrapeYear = 2000

// PayloadFetcher retrieves one raw scraper payload for a window.
type PayloadFetcher interface {
	Fetch(ctx context.Context, window Window) (any, error)
}

// Window is the date range a scraper is asked for: Start plus Months.
type Window struct {
	Start  time.Time
	Months int
}

// StartDate formats the window start the way the scrapers expect it.
func (w Window) StartDate() string {
	return w.Start.Format(ingest.DateLayout)
}

// End returns Start plus Months calendar months.
func (w Window) End() time.Time {
	return AddMonths(w.Start, w.Months)
}

// AddMonths shifts t by n calendar months, clamping to the last day of the
// target month (Jan 31 + 1 month is Feb 29 in a leap year).
func AddMonths(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > last {
		day = last
	}
	return first.AddDate(0, 0, day-1)
}

// ResolveWindow validates scrape parameters. An empty start defaults to now
// minus lookbackDays; months below one are rejected.
func ResolveWindow(start string, months, lookbackDays int, now time.Time) (Window, error) {
	if months < 1 {
		return Window{}, fmt.Errorf("%w: months to scrape %d must be at least 1", ingest.ErrValidation, months)
	}

	var begin time.Time
	if strings.TrimSpace(start) == "" {
		y, m, d := now.AddDate(0, 0, -lookbackDays).Date()
		begin = time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	} else {
		parsed, err := time.ParseInLocation(ingest.DateLayout, strings.TrimSpace(start), now.Location())
		if err != nil {
			return Window{}, fmt.Errorf("%w: start date %q: expected YYYY-MM-DD", ingest.ErrValidation, start)
		}
		begin = parsed
	}

	if begin.Year() <= minScrapeYear {
		return Window{}, fmt.Errorf("%w: start date %s must be after %d", ingest.ErrValidation, begin.Format(ingest.DateLayout), minScrapeYear)
	}
	return Window{Start: begin, Months: months}, nil
}

// DateRange returns [start, start+months) as dates. An empty start means today.
func DateRange(start string, months int, now time.Time) (time.Time, time.Time, error) {
	if months < 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: months %d cannot be negative", ingest.ErrValidation, months)
	}
	begin := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if strings.TrimSpace(start) != "" {
		parsed, err := time.ParseInLocation(ingest.DateLayout, strings.TrimSpace(start), now.Location())
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: start date %q: expected YYYY-MM-DD", ingest.ErrValidation, start)
		}
		begin = parsed
	}
	return begin, AddMonths(begin, months), nil
}
