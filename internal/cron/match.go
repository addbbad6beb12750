package cron

import "time"

// Matches reports whether the broken-down local time t falls inside
// the set described by e, per spec.md §4.1. Sunday is normalized from
// Go's 0 to AFD's 7 before checking DayOfWeek.
func Matches(t time.Time, e Entry) bool {
	minute := t.Minute()
	if !e.Minute.has(minute) && !e.ContinuousMinute.has(minute) {
		return false
	}
	if !e.Hour.has(t.Hour()) {
		return false
	}
	if !e.DayOfMonth.has(t.Day()) {
		return false
	}
	if !e.Month.has(int(t.Month())) {
		return false
	}
	dow := int(t.Weekday())
	if dow == 0 {
		dow = 7
	}
	if !e.DayOfWeek.has(dow) {
		return false
	}
	return true
}

// IsNever reports whether e can never match anything, i.e. some field
// is an empty set (spec.md §3: "An empty set in any field means
// never").
func IsNever(e Entry) bool {
	return (e.Minute.isEmpty() && e.ContinuousMinute.isEmpty()) ||
		e.Hour.isEmpty() || e.DayOfMonth.isEmpty() || e.Month.isEmpty() || e.DayOfWeek.isEmpty()
}
