// Package dates handles the YYYY-MM-DD calendar days used across the API.
package dates

import (
	"fmt"
	"iter"
	"time"
)

const Layout = "2006-01-02"

// Parse reads a YYYY-MM-DD day as midnight UTC.
func Parse(s string) (time.Time, error) {
	d, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q must be YYYY-MM-DD", s)
	}
	return d, nil
}

func Format(t time.Time) string {
	return t.Format(Layout)
}

// Today is the current local calendar day.
func Today() string {
	return time.Now().Format(Layout)
}

// Days yields every calendar day from start to end inclusive, ascending.
// Nothing is yielded when start is after end.
func Days(start, end time.Time) iter.Seq[time.Time] {
	start = truncateDay(start)
	end = truncateDay(end)
	return func(yield func(time.Time) bool) {
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			if !yield(d) {
				return
			}
		}
	}
}

// MonthBounds returns the first and last day of the given month.
func MonthBounds(year int, month time.Month) (time.Time, time.Time) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return first, first.AddDate(0, 1, -1)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
