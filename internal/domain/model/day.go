package model

import "time"

// Day truncates t to midnight of its calendar day in t's own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DayIn returns midnight of t's calendar day interpreted in loc.
func DayIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// DayKey formats the calendar day of t, ignoring its location.
func DayKey(t time.Time) string { return t.Format(time.DateOnly) }

// ParseDay parses a YYYY-MM-DD date as midnight in loc. Provider timestamps
// with a time part are accepted and truncated.
func ParseDay(s string, loc *time.Location) (time.Time, error) {
	if len(s) > len(time.DateOnly) {
		s = s[:len(time.DateOnly)]
	}
	return time.ParseInLocation(time.DateOnly, s, loc)
}
