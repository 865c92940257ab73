package rrule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/hray3182/chime/internal/models"
	"github.com/hray3182/chime/internal/occurrence"
)

// weekdays is indexed by models day number (0 = Sunday)
var weekdays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

var weekdayCodes = map[rrule.Weekday]string{
	rrule.MO: "MO",
	rrule.TU: "TU",
	rrule.WE: "WE",
	rrule.TH: "TH",
	rrule.FR: "FR",
	rrule.SA: "SA",
	rrule.SU: "SU",
}

var weekdayNamesJA = [7]string{"日曜日", "月曜日", "火曜日", "水曜日", "木曜日", "金曜日", "土曜日"}

// RRuleBuilder creates an RRULE string from components
type RRuleBuilder struct {
	Freq      rrule.Frequency
	ByHour    []int
	ByMinute  []int
	ByWeekday []rrule.Weekday
}

func (b *RRuleBuilder) Build(dtstart time.Time) (*rrule.RRule, error) {
	opt := rrule.ROption{
		Freq:    b.Freq,
		Dtstart: dtstart,
	}

	if len(b.ByHour) > 0 {
		opt.Byhour = b.ByHour
	}
	if len(b.ByMinute) > 0 {
		opt.Byminute = b.ByMinute
		opt.Bysecond = []int{0}
	}
	if len(b.ByWeekday) > 0 {
		opt.Byweekday = b.ByWeekday
	}

	return rrule.NewRRule(opt)
}

func (b *RRuleBuilder) String() string {
	freqMap := map[rrule.Frequency]string{
		rrule.DAILY:  "DAILY",
		rrule.WEEKLY: "WEEKLY",
	}
	parts := []string{fmt.Sprintf("FREQ=%s", freqMap[b.Freq])}

	if len(b.ByWeekday) > 0 {
		days := make([]string, len(b.ByWeekday))
		for i, d := range b.ByWeekday {
			days[i] = weekdayCodes[d]
		}
		parts = append(parts, fmt.Sprintf("BYDAY=%s", strings.Join(days, ",")))
	}
	if len(b.ByHour) > 0 {
		parts = append(parts, "BYHOUR="+joinInts(b.ByHour))
	}
	if len(b.ByMinute) > 0 {
		parts = append(parts, "BYMINUTE="+joinInts(b.ByMinute))
	}

	return strings.Join(parts, ";")
}

// ErrNotRecurring is returned for schedules without a weekly rule
var ErrNotRecurring = errors.New("schedule is not recurring")

// ForSchedule returns the builder describing a weekly schedule
func ForSchedule(s *models.Schedule) (*RRuleBuilder, error) {
	if s.Repeat == nil {
		return nil, ErrNotRecurring
	}
	hour, min, ok := models.ParseClock(s.Time)
	if !ok {
		return nil, fmt.Errorf("invalid time %q", s.Time)
	}
	b := &RRuleBuilder{
		Freq:     rrule.WEEKLY,
		ByHour:   []int{hour},
		ByMinute: []int{min},
	}
	for _, d := range s.Repeat.Days {
		if d < 0 || d > 6 {
			continue
		}
		b.ByWeekday = append(b.ByWeekday, weekdays[d])
	}
	if len(b.ByWeekday) == 0 {
		return nil, errors.New("weekly rule has no weekdays")
	}
	return b, nil
}

// Between returns the occurrences of s in [from, to], in from's location.
// One-off schedules yield at most their single instant.
func Between(s *models.Schedule, from, to time.Time) ([]time.Time, error) {
	if s.Repeat == nil {
		occ, ok := occurrence.Next(s, from)
		if !ok || occ.At.Before(from) || occ.At.After(to) {
			return nil, nil
		}
		return []time.Time{occ.At}, nil
	}

	b, err := ForSchedule(s)
	if err != nil {
		return nil, err
	}
	dtstart := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	rule, err := b.Build(dtstart)
	if err != nil {
		return nil, fmt.Errorf("failed to build RRULE: %w", err)
	}
	return rule.Between(from, to, true), nil
}

// WeekdayPhrase describes weekly days, e.g. "毎週月曜日・水曜日"
func WeekdayPhrase(days []int) string {
	if len(days) == 7 {
		return "毎日"
	}
	names := make([]string, 0, len(days))
	for _, d := range days {
		if d >= 0 && d <= 6 {
			names = append(names, weekdayNamesJA[d])
		}
	}
	if len(names) == 0 {
		return ""
	}
	return "毎週" + strings.Join(names, "・")
}

func joinInts(values []int) string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(out, ",")
}
