// Package occurrence projects a schedule rule onto the calendar.
package occurrence

import (
	"time"

	"github.com/hray3182/chime/internal/models"
)

// scanDays covers two full weeks, enough for any non-empty weekly rule.
const scanDays = 14

// Occurrence is one concrete instance of a schedule.
type Occurrence struct {
	At        time.Time
	Key       string // calendar date of At, identifies which occurrence flags refer to
	Recurring bool
}

// Next returns the next occurrence of s relative to ref, evaluated in ref's
// location. A one-off schedule always yields its single instant, even when it
// lies in the past; staleness is the caller's concern. The second return value
// is false only for malformed input.
func Next(s *models.Schedule, ref time.Time) (Occurrence, bool) {
	hour, min, ok := models.ParseClock(s.Time)
	if !ok {
		return Occurrence{}, false
	}
	loc := ref.Location()

	if s.Repeat == nil {
		day, err := time.ParseInLocation(models.DateLayout, s.Date, loc)
		if err != nil {
			return Occurrence{}, false
		}
		at := time.Date(day.Year(), day.Month(), day.Day(), hour, min, 0, 0, loc)
		return Occurrence{At: at, Key: at.Format(models.DateLayout)}, true
	}

	days := make(map[time.Weekday]bool, len(s.Repeat.Days))
	for _, d := range s.Repeat.Days {
		days[time.Weekday(d)] = true
	}

	for i := 0; i < scanDays; i++ {
		candidate := time.Date(ref.Year(), ref.Month(), ref.Day()+i, hour, min, 0, 0, loc)
		if !days[candidate.Weekday()] || candidate.Before(ref) {
			continue
		}
		return Occurrence{At: candidate, Key: candidate.Format(models.DateLayout), Recurring: true}, true
	}
	return Occurrence{}, false
}
