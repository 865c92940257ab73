package models

import (
	"encoding/json"
	"time"
)

const (
	RepeatWeekly = "weekly"

	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// Repeat is a weekly recurrence rule. Days holds weekday numbers, 0 = Sunday.
type Repeat struct {
	Kind string `json:"kind"`
	Days []int  `json:"days"`
}

type Schedule struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	Date              string    `json:"date"` // YYYY-MM-DD, ignored when Repeat is set
	Time              string    `json:"time"` // HH:MM local wall clock
	Repeat            *Repeat   `json:"repeat,omitempty"`
	PreNotified       bool      `json:"pre_notified"`
	StartNotified     bool      `json:"start_notified"`
	LastOccurrenceKey string    `json:"last_occurrence_key,omitempty"` // date the flags belong to
	TTSMessage        string    `json:"tts_message,omitempty"`
	TTSLeadMessage    string    `json:"tts_lead_message,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`

	// LegacyNotified is the old stored "notified" flag. It is read only so
	// corrupted records can be repaired and is never written back.
	LegacyNotified bool `json:"-"`
}

// IsRecurring returns true if this schedule has a weekly rule
func (s *Schedule) IsRecurring() bool {
	return s.Repeat != nil
}

// Notified is derived from the two sub-flags and never stored.
func (s *Schedule) Notified() bool {
	return s.PreNotified || s.StartNotified
}

// ResetNotifications clears the flags so the schedule is evaluated from scratch.
func (s *Schedule) ResetNotifications() {
	s.PreNotified = false
	s.StartNotified = false
	s.LastOccurrenceKey = ""
}

// Clone returns a deep copy; the Repeat days slice is not shared.
func (s Schedule) Clone() Schedule {
	if s.Repeat != nil {
		r := *s.Repeat
		r.Days = append([]int(nil), s.Repeat.Days...)
		s.Repeat = &r
	}
	return s
}

func (s *Schedule) UnmarshalJSON(data []byte) error {
	type alias Schedule
	aux := struct {
		*alias
		Notified bool            `json:"notified"`
		Repeat   json.RawMessage `json:"repeat"`
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.LegacyNotified = aux.Notified
	s.Repeat = decodeRepeat(aux.Repeat)
	return nil
}

// decodeRepeat is lenient: anything that is not a usable object becomes nil,
// days given as numeric strings are accepted.
func decodeRepeat(raw json.RawMessage) *Repeat {
	if len(raw) == 0 {
		return nil
	}
	var aux struct {
		Kind string            `json:"kind"`
		Days []json.RawMessage `json:"days"`
	}
	if err := json.Unmarshal(raw, &aux); err != nil {
		return nil
	}
	r := &Repeat{Kind: aux.Kind}
	for _, d := range aux.Days {
		var n json.Number
		if err := json.Unmarshal(d, &n); err != nil {
			var str string
			if err := json.Unmarshal(d, &str); err != nil {
				continue
			}
			n = json.Number(str)
		}
		v, err := n.Int64()
		if err != nil {
			continue
		}
		r.Days = append(r.Days, int(v))
	}
	return r
}
