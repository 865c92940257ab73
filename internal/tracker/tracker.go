// Package tracker owns the per-occurrence notification flags of a schedule.
package tracker

import (
	"time"

	"github.com/hray3182/chime/internal/models"
	"github.com/hray3182/chime/internal/occurrence"
)

// Rearm points the flags of a recurring schedule at occurrenceKey. When the
// key changes both flags are cleared together with the key update and true is
// returned. One-off schedules and empty keys are left alone.
func Rearm(s *models.Schedule, occurrenceKey string) bool {
	if s.Repeat == nil || occurrenceKey == "" {
		return false
	}
	if occurrenceKey == s.LastOccurrenceKey {
		return false
	}
	s.LastOccurrenceKey = occurrenceKey
	s.PreNotified = false
	s.StartNotified = false
	return true
}

// Repair heals records stored with notified=true but neither sub-flag set.
// A still-upcoming occurrence only had its lead reminder; anything else is
// treated as fully handled. The occurrence key is left to Rearm: a stale key
// means the old flag belonged to an earlier cycle and is cleared there.
func Repair(s *models.Schedule, now time.Time) bool {
	if !s.LegacyNotified || s.PreNotified || s.StartNotified {
		s.LegacyNotified = false
		return false
	}
	s.LegacyNotified = false

	occ, ok := occurrence.Next(s, now)
	if ok && occ.At.After(now) {
		s.PreNotified = true
	} else {
		s.PreNotified = true
		s.StartNotified = true
	}
	return true
}
