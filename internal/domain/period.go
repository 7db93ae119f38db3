package domain

import (
	"time"
)

// Period identifies a scoring window for a leaderboard.
type Period string

const (
	PeriodAllTime Period = "ALL_TIME"
	PeriodMonthly Period = "MONTHLY"
	PeriodWeekly  Period = "WEEKLY"
)

// Periods lists every scoring window, in the order standings are written.
var Periods = []Period{PeriodAllTime, PeriodMonthly, PeriodWeekly}

// ParsePeriod validates a period string from the outside world.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodAllTime, PeriodMonthly, PeriodWeekly:
		return Period(s), nil
	default:
		return "", ErrInvalidPeriod
	}
}

// WindowStart returns the start of the qualifying activity window for the
// period as of now. The second return value is false for ALL_TIME, which has
// no window: every user with an entry counts.
//
// MONTHLY is calendar-month-to-date in UTC; WEEKLY is a rolling trailing
// 7 days. A user counts toward a windowed period only if they have an
// accepted solve at or after the returned instant.
func (p Period) WindowStart(now time.Time) (time.Time, bool) {
	now = now.UTC()
	switch p {
	case PeriodMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), true
	case PeriodWeekly:
		return now.Add(-7 * 24 * time.Hour), true
	default:
		return time.Time{}, false
	}
}

// DayOf truncates a timestamp to its UTC calendar day. Challenge dates and
// streak days share this boundary.
func DayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NextReset returns the next UTC midnight after now.
func NextReset(now time.Time) time.Time {
	return DayOf(now).Add(24 * time.Hour)
}
