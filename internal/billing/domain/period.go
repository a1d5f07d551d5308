package domain

import (
	"fmt"
	"strings"
	"time"
)

const periodKeyLayout = "2006-01"

// PeriodKey returns the YYYY-MM key of t in UTC.
func PeriodKey(t time.Time) string {
	return t.UTC().Format(periodKeyLayout)
}

// PeriodBounds returns the first instant of the month and the first instant
// of the following month, both UTC.
func PeriodBounds(key string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(periodKeyLayout, strings.TrimSpace(key), time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriodKey, key)
	}
	return start, start.AddDate(0, 1, 0), nil
}

// LastMillisecond is the inclusive upper bound stored on closed periods.
func LastMillisecond(next time.Time) time.Time {
	return next.Add(-time.Millisecond)
}
