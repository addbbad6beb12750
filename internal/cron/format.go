package cron

import (
	"fmt"
	"strings"
)

// Format renders e back into a five-field descriptor. It does not
// attempt to reconstruct range/step compression — it lists sorted
// values, comma-separated, or "*" for a full domain (a full minute set
// held in Minute rather than ContinuousMinute is written "0-59", since
// "*" parses into ContinuousMinute) — so Parse(Format(e))
// yields an Entry with identical bit sets to e even though the text may
// differ from whatever text originally produced e (spec.md §8
// round-trip property is about bitset equivalence, not text
// equivalence).
func Format(e Entry) string {
	minute := formatField64(uint64(e.Minute)|uint64(e.ContinuousMinute), 0, 59)
	if minute == "*" && e.ContinuousMinute.isEmpty() {
		minute = "0-59"
	}
	hour := formatField64(uint64(e.Hour), 0, 23)
	dom := formatField64(uint64(e.DayOfMonth), 1, 31)
	month := formatField64(uint64(e.Month), 1, 12)
	dow := formatField64(uint64(e.DayOfWeek), 1, 7)
	return strings.Join([]string{minute, hour, dom, month, dow}, " ")
}

func formatField64(bits uint64, lo, hi int) string {
	full := true
	var values []string
	for v := lo; v <= hi; v++ {
		if bits&(1<<uint(v)) != 0 {
			values = append(values, fmt.Sprintf("%d", v))
		} else {
			full = false
		}
	}
	if full {
		return "*"
	}
	if len(values) == 0 {
		return "" // empty set: "never" (spec.md §3)
	}
	return strings.Join(values, ",")
}
