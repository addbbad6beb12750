package cron

import (
	"errors"
	"time"
)

// ErrNoSuccessor is returned by NextAfter when no matching moment
// exists within the configured year bound, per spec.md §4.1.
var ErrNoSuccessor = errors.New("cron: no successor within year bound")

// DefaultYearBound is the number of calendar years NextAfter will scan
// before giving up, guarding against entries like "31 Feb" that can
// never occur (spec.md §4.1 "Known pathological case").
const DefaultYearBound = 8

// NextAfter returns the smallest t >= now+1min such that Matches(t, e)
// holds, or ErrNoSuccessor if none is found within yearBound calendar
// years of now.
//
// Calendar arithmetic (month lengths, leap years) is delegated to
// time.Time.AddDate, which already implements the Gregorian rule
// spec.md §4.1 describes by hand (leap iff div-by-4 and not
// div-by-100 or div-by-400) — reimplementing it would only be able to
// disagree with the standard library, never improve on it.
func NextAfter(now time.Time, e Entry, yearBound int) (time.Time, error) {
	if IsNever(e) {
		return time.Time{}, ErrNoSuccessor
	}
	if yearBound <= 0 {
		yearBound = DefaultYearBound
	}

	loc := now.Location()
	cursor := now.Truncate(time.Minute).Add(time.Minute)
	maxYear := now.Year() + yearBound

	day := time.Date(cursor.Year(), cursor.Month(), cursor.Day(), 0, 0, 0, 0, loc)
	minHour, minMinute := cursor.Hour(), cursor.Minute()
	first := true

	for day.Year() <= maxYear {
		if dayMatches(day, e) {
			startHour, startMinute := 0, 0
			if first {
				startHour, startMinute = minHour, minMinute
			}
			if hour, minute, ok := firstMinuteInDay(e, startHour, startMinute); ok {
				return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc), nil
			}
		}
		first = false
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}, ErrNoSuccessor
}

func dayMatches(day time.Time, e Entry) bool {
	if !e.Month.has(int(day.Month())) {
		return false
	}
	if !e.DayOfMonth.has(day.Day()) {
		return false
	}
	dow := int(day.Weekday())
	if dow == 0 {
		dow = 7
	}
	return e.DayOfWeek.has(dow)
}

// firstMinuteInDay finds the earliest (hour, minute) >= (fromHour,
// fromMinute) allowed by e within a single day.
func firstMinuteInDay(e Entry, fromHour, fromMinute int) (hour, minute int, ok bool) {
	for h := fromHour; h <= 23; h++ {
		if !e.Hour.has(h) {
			continue
		}
		start := 0
		if h == fromHour {
			start = fromMinute
		}
		for m := start; m <= 59; m++ {
			if e.Minute.has(m) || e.ContinuousMinute.has(m) {
				return h, m, true
			}
		}
	}
	return 0, 0, false
}
