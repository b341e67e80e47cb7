package scheduler

import (
	"strings"
	"time"

	"github.com/vmunix/mvarr/internal/config"
)

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// nextFire computes when a trigger fires next, strictly after the given
// time. A disabled trigger returns the zero time (never fires).
//
// hourly fires at the top of every hour; daily fires every day at the
// configured time; weekly fires once a week on the first configured day
// (Sunday when none is given); custom fires at the configured time on each
// listed weekday.
func nextFire(t config.Trigger, after time.Time) time.Time {
	if !t.Enabled {
		return time.Time{}
	}

	switch t.Cadence {
	case config.CadenceHourly:
		return after.Truncate(time.Hour).Add(time.Hour)

	case config.CadenceDaily:
		return nextAtTime(t.At, after, nil)

	case config.CadenceWeekly:
		days := []time.Weekday{time.Sunday}
		if parsed := parseDays(t.Days); len(parsed) > 0 {
			days = parsed[:1]
		}
		return nextAtTime(t.At, after, days)

	case config.CadenceCustom:
		return nextAtTime(t.At, after, parseDays(t.Days))
	}
	return time.Time{}
}

// nextAtTime finds the next occurrence of the HH:MM time, restricted to the
// given weekdays (nil = every day), strictly after the reference time.
func nextAtTime(at string, after time.Time, days []time.Weekday) time.Time {
	hour, minute := parseTimeOfDay(at)

	allowed := func(d time.Weekday) bool {
		if len(days) == 0 {
			return true
		}
		for _, day := range days {
			if day == d {
				return true
			}
		}
		return false
	}

	candidate := time.Date(after.Year(), after.Month(), after.Day(), hour, minute, 0, 0, after.Location())
	// At most 8 days covers every weekday restriction.
	for i := 0; i < 8; i++ {
		if candidate.After(after) && allowed(candidate.Weekday()) {
			return candidate
		}
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// parseTimeOfDay parses "HH:MM". Config validation guarantees the shape;
// malformed input degrades to midnight.
func parseTimeOfDay(at string) (hour, minute int) {
	parsed, err := time.Parse("15:04", at)
	if err != nil {
		return 0, 0
	}
	return parsed.Hour(), parsed.Minute()
}

func parseDays(names []string) []time.Weekday {
	var days []time.Weekday
	for _, name := range names {
		if d, ok := weekdayNames[strings.ToLower(name)]; ok {
			days = append(days, d)
		}
	}
	return days
}
