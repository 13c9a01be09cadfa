// Package schedule evaluates the five-field cron expressions attached to
// scheduled reports.
package schedule

import (
	"strconv"
	"strings"
	"time"
)

// Horizon bounds how far ahead NextRun searches.
const Horizon = 730 * 24 * time.Hour

// expression holds the parsed fields; a nil field matches anything.
type expression struct {
	minute, hour, dom, month, dow *int
}

// Valid reports whether expr has exactly five whitespace separated fields.
func Valid(expr string) bool {
	_, ok := parse(expr)
	return ok
}

// NextRun returns the first minute strictly after from that matches expr.
// Each field is '*' or a single integer; a field that does not parse or falls
// outside its range matches anything. Day of week counts Monday as 0. The
// search stops after Horizon and reports false when nothing matched.
func NextRun(expr string, from time.Time) (time.Time, bool) {
	e, ok := parse(expr)
	if !ok {
		return time.Time{}, false
	}

	limit := from.Add(Horizon)
	candidate := from.Add(time.Minute).Truncate(time.Minute)
	for !candidate.After(limit) {
		switch {
		case !matches(e.minute, candidate.Minute()), !matches(e.hour, candidate.Hour()):
			candidate = candidate.Add(time.Minute)
		case !matches(e.month, int(candidate.Month())):
			candidate = time.Date(candidate.Year(), candidate.Month()+1, 1, 0, 0, 0, 0, candidate.Location())
		case !matches(e.dom, candidate.Day()), !matches(e.dow, weekday(candidate)):
			candidate = time.Date(candidate.Year(), candidate.Month(), candidate.Day()+1, 0, 0, 0, 0, candidate.Location())
		default:
			return candidate, true
		}
	}
	return time.Time{}, false
}

func parse(expr string) (expression, bool) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return expression{}, false
	}
	return expression{
		minute: parseField(parts[0], 0, 59),
		hour:   parseField(parts[1], 0, 23),
		dom:    parseField(parts[2], 1, 31),
		month:  parseField(parts[3], 1, 12),
		dow:    parseField(parts[4], 0, 6),
	}, true
}

func parseField(raw string, lo, hi int) *int {
	if raw == "*" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		return nil
	}
	return &v
}

func matches(f *int, value int) bool {
	return f == nil || *f == value
}

// weekday maps time.Weekday onto Monday = 0 .. Sunday = 6.
func weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
