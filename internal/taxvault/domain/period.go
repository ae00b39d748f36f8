package domain

import (
	"errors"
	"time"
)

var ErrInvalidPeriod = errors.New("invalid_period")

// PeriodOf returns the YYYY-MM period key for a point in time.
func PeriodOf(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// ParsePeriod validates a YYYY-MM key and returns the period's first day.
func ParsePeriod(period string) (time.Time, error) {
	start, err := time.Parse("2006-01", period)
	if err != nil {
		return time.Time{}, ErrInvalidPeriod
	}
	return start.UTC(), nil
}

// PeriodBounds returns [start, end) for a period key.
func PeriodBounds(period string) (time.Time, time.Time, error) {
	start, err := ParsePeriod(period)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(0, 1, 0), nil
}
