// Package schedtime evaluates the operator's time-window input in
// queries (spec.md §4.6): a sibling of the cron parser in
// internal/cron, but for a single point in time rather than a
// recurring set.
package schedtime

import (
	"fmt"
	"strconv"
	"time"
)

// ErrInvalid is returned for any input that fails a range check;
// spec.md §4.6: "On any violation the field is marked invalid and the
// query is not executed."
type ErrInvalid struct {
	Input  string
	Reason string
}

func (e *ErrInvalid) Error() string {
	return fmt.Sprintf("schedtime: invalid time window %q: %s", e.Input, e.Reason)
}

// Evaluate interprets raw against "now" (UTC) per spec.md §4.6's
// length-driven form dispatch:
//
//	""             -> now
//	"hhmm"         -> today at hour:minute UTC
//	"DDhhmm"       -> this month, day/hour/minute UTC
//	"MMDDhhmm"     -> this year, month/day/hour/minute UTC
//	"-mm"/"-hhmm"/"-DDhhmm" -> relative offset subtracted from now
func Evaluate(raw string, now time.Time) (time.Time, error) {
	now = now.UTC()

	if raw == "" {
		return now, nil
	}

	if raw[0] == '-' {
		return evaluateRelative(raw[1:], now)
	}

	switch len(raw) {
	case 4: // hhmm
		hour, minute, err := parseHHMM(raw)
		if err != nil {
			return time.Time{}, err
		}
		return time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC), nil
	case 6: // DDhhmm
		day, err := parseField(raw[0:2], 0, 31, "day")
		if err != nil {
			return time.Time{}, err
		}
		hour, minute, err := parseHHMM(raw[2:])
		if err != nil {
			return time.Time{}, err
		}
		day = resolveZero(day, now.Day())
		return time.Date(now.Year(), now.Month(), day, hour, minute, 0, 0, time.UTC), nil
	case 8: // MMDDhhmm
		month, err := parseField(raw[0:2], 0, 12, "month")
		if err != nil {
			return time.Time{}, err
		}
		day, err := parseField(raw[2:4], 0, 31, "day")
		if err != nil {
			return time.Time{}, err
		}
		hour, minute, err := parseHHMM(raw[4:])
		if err != nil {
			return time.Time{}, err
		}
		month = resolveZero(month, int(now.Month()))
		day = resolveZero(day, now.Day())
		return time.Date(now.Year(), time.Month(month), day, hour, minute, 0, 0, time.UTC), nil
	default:
		return time.Time{}, &ErrInvalid{Input: raw, Reason: "unrecognized length (want 0, 4, 6, or 8 digits)"}
	}
}

func evaluateRelative(raw string, now time.Time) (time.Time, error) {
	switch len(raw) {
	case 2: // -mm
		minute, err := parseField(raw, 0, 59, "minute")
		if err != nil {
			return time.Time{}, err
		}
		return now.Add(-time.Duration(minute) * time.Minute), nil
	case 4: // -hhmm
		hour, minute, err := parseHHMM(raw)
		if err != nil {
			return time.Time{}, err
		}
		offset := time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute
		return now.Add(-offset), nil
	case 6: // -DDhhmm
		day, err := parseField(raw[0:2], 0, 31, "day")
		if err != nil {
			return time.Time{}, err
		}
		hour, minute, err := parseHHMM(raw[2:])
		if err != nil {
			return time.Time{}, err
		}
		offset := time.Duration(day)*24*time.Hour + time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute
		return now.Add(-offset), nil
	default:
		return time.Time{}, &ErrInvalid{Input: "-" + raw, Reason: "unrecognized relative-offset length (want 2, 4, or 6 digits)"}
	}
}

func parseHHMM(s string) (hour, minute int, err error) {
	if len(s) != 4 {
		return 0, 0, &ErrInvalid{Input: s, Reason: "hhmm field must be exactly 4 digits"}
	}
	hour, err = parseField(s[0:2], 0, 23, "hour")
	if err != nil {
		return 0, 0, err
	}
	minute, err = parseField(s[2:4], 0, 59, "minute")
	if err != nil {
		return 0, 0, err
	}
	return hour, minute, nil
}

func parseField(s string, lo, hi int, name string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, &ErrInvalid{Input: s, Reason: fmt.Sprintf("%s field is not numeric", name)}
	}
	if v < lo || v > hi {
		return 0, &ErrInvalid{Input: s, Reason: fmt.Sprintf("%s field out of range [%d,%d]", name, lo, hi)}
	}
	return v, nil
}

// resolveZero implements "0 interpreted as current" for month/day
// fields (spec.md §4.6 Range checks).
func resolveZero(parsed, current int) int {
	if parsed == 0 {
		return current
	}
	return parsed
}

// Format renders t back into the %m%d%H%M form the operator's input
// field is repopulated with after an empty ("now") query, per
// spec.md §4.6.
func Format(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%02d%02d%02d%02d", int(t.Month()), t.Day(), t.Hour(), t.Minute())
}
