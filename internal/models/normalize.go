package models

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ParseClock parses "HH:MM" to hours and minutes
func ParseClock(clock string) (hour, min int, ok bool) {
	t, err := time.Parse(ClockLayout, strings.TrimSpace(clock))
	if err != nil {
		return 0, 0, false
	}
	return t.Hour(), t.Minute(), true
}

// NormalizeRepeat returns nil for anything that is not a weekly rule with at
// least one valid weekday. Days come back sorted and de-duplicated.
func NormalizeRepeat(r *Repeat) *Repeat {
	if r == nil || r.Kind != RepeatWeekly {
		return nil
	}
	seen := make(map[int]bool, 7)
	days := make([]int, 0, len(r.Days))
	for _, d := range r.Days {
		if d < 0 || d > 6 || seen[d] {
			continue
		}
		seen[d] = true
		days = append(days, d)
	}
	if len(days) == 0 {
		return nil
	}
	sort.Ints(days)
	return &Repeat{Kind: RepeatWeekly, Days: days}
}

// Normalize fills in missing fields and repairs shapes that cannot be
// trusted after a round trip through storage. Unparseable date or time
// values are kept as-is; they simply never produce an occurrence.
func Normalize(s Schedule, now time.Time) Schedule {
	s = s.Clone()
	if strings.TrimSpace(s.ID) == "" {
		s.ID = uuid.NewString()
	}
	s.Title = strings.TrimSpace(s.Title)
	s.Date = strings.TrimSpace(s.Date)
	s.Time = strings.TrimSpace(s.Time)
	if h, m, ok := ParseClock(s.Time); ok {
		s.Time = time.Date(2000, 1, 1, h, m, 0, 0, time.UTC).Format(ClockLayout)
	}
	s.Repeat = NormalizeRepeat(s.Repeat)
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}
	return s
}

// Validate reports whether user input is complete enough to ever fire.
func (s *Schedule) Validate() string {
	if s.Title == "" {
		return "title is required"
	}
	if _, _, ok := ParseClock(s.Time); !ok {
		return "time must be HH:MM"
	}
	if s.Repeat == nil {
		if _, err := time.Parse(DateLayout, s.Date); err != nil {
			return "date must be YYYY-MM-DD for a one-off schedule"
		}
	}
	return ""
}
