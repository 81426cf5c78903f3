// Package timesheet holds the domain state of a member-month timesheet:
// work entries, absences, and the monthly approval record.
package timesheet

import (
	"fmt"
	"time"
)

// QuarterHoursPerDay is the daily cap: 24 hours in quarter-hour units.
const QuarterHoursPerDay = 24 * 4

// DateLayout is the wire form of per-record dates.
const DateLayout = "2006-01-02"

// MonthLayout is the wire form of fiscal months.
const MonthLayout = "2006-01"

// ParseMonth validates a YYYY-MM fiscal month string.
func ParseMonth(value string) (time.Time, error) {
	parsed, err := time.Parse(MonthLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse month %q: %w", value, err)
	}
	return parsed, nil
}

// ParseDate validates a YYYY-MM-DD date string.
func ParseDate(value string) (time.Time, error) {
	parsed, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", value, err)
	}
	return parsed, nil
}

// DateInMonth reports whether the date string falls inside the month string.
func DateInMonth(date, month string) bool {
	return len(date) >= len(month) && date[:len(month)] == month
}

// ExpectedQuarterHours returns the expected working time for a fiscal month:
// one 8-hour day per weekday.
func ExpectedQuarterHours(month string) (int, error) {
	start, err := ParseMonth(month)
	if err != nil {
		return 0, err
	}
	end := start.AddDate(0, 1, 0)
	weekdays := 0
	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		switch day.Weekday() {
		case time.Saturday, time.Sunday:
		default:
			weekdays++
		}
	}
	return weekdays * 8 * 4, nil
}
