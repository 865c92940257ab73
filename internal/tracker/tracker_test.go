package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hray3182/chime/internal/models"
)

func weeklyMonday() *models.Schedule {
	return &models.Schedule{ID: "w", Time: "09:00", Repeat: &models.Repeat{Kind: models.RepeatWeekly, Days: []int{1}}}
}

func TestRearmResetsOnNewKey(t *testing.T) {
	s := weeklyMonday()
	s.LastOccurrenceKey = "2026-10-12"
	s.PreNotified = true
	s.StartNotified = true

	assert.True(t, Rearm(s, "2026-10-19"))
	assert.Equal(t, "2026-10-19", s.LastOccurrenceKey)
	assert.False(t, s.PreNotified)
	assert.False(t, s.StartNotified)
}

func TestRearmIdempotent(t *testing.T) {
	s := weeklyMonday()
	assert.True(t, Rearm(s, "2026-10-12"))

	s.PreNotified = true
	assert.False(t, Rearm(s, "2026-10-12"))
	assert.True(t, s.PreNotified)
	assert.False(t, s.StartNotified)
}

func TestRearmIgnoresOneOffAndEmptyKey(t *testing.T) {
	oneOff := &models.Schedule{ID: "o", Date: "2026-10-12", Time: "09:00", PreNotified: true}
	assert.False(t, Rearm(oneOff, "2026-10-13"))
	assert.True(t, oneOff.PreNotified)
	assert.Empty(t, oneOff.LastOccurrenceKey)

	s := weeklyMonday()
	s.StartNotified = true
	assert.False(t, Rearm(s, ""))
	assert.True(t, s.StartNotified)
}

func TestRepair(t *testing.T) {
	now := time.Date(2026, 10, 12, 8, 0, 0, 0, time.UTC)

	upcoming := &models.Schedule{Date: "2026-10-12", Time: "09:00", LegacyNotified: true}
	assert.True(t, Repair(upcoming, now))
	assert.True(t, upcoming.PreNotified)
	assert.False(t, upcoming.StartNotified)
	assert.False(t, upcoming.LegacyNotified)

	past := &models.Schedule{Date: "2026-10-11", Time: "09:00", LegacyNotified: true}
	assert.True(t, Repair(past, now))
	assert.True(t, past.PreNotified)
	assert.True(t, past.StartNotified)

	recurring := weeklyMonday()
	recurring.LegacyNotified = true
	assert.True(t, Repair(recurring, now))
	assert.True(t, recurring.PreNotified)
	assert.Empty(t, recurring.LastOccurrenceKey)
}

func TestRepairKeepsKeyForRearm(t *testing.T) {
	now := time.Date(2026, 10, 12, 8, 0, 0, 0, time.UTC)

	// Flag from last week's cycle: the new occurrence re-arms.
	stale := weeklyMonday()
	stale.LastOccurrenceKey = "2026-10-05"
	stale.LegacyNotified = true
	assert.True(t, Repair(stale, now))
	assert.Equal(t, "2026-10-05", stale.LastOccurrenceKey)
	assert.True(t, Rearm(stale, "2026-10-12"))
	assert.False(t, stale.PreNotified)
	assert.False(t, stale.StartNotified)

	// Flag already tied to the current occurrence: the repair survives.
	current := weeklyMonday()
	current.LastOccurrenceKey = "2026-10-12"
	current.LegacyNotified = true
	assert.True(t, Repair(current, now))
	assert.False(t, Rearm(current, "2026-10-12"))
	assert.True(t, current.PreNotified)
	assert.False(t, current.StartNotified)
}

func TestRepairLeavesConsistentRecords(t *testing.T) {
	now := time.Date(2026, 10, 12, 8, 0, 0, 0, time.UTC)

	s := &models.Schedule{Date: "2026-10-12", Time: "09:00", LegacyNotified: true, PreNotified: true}
	assert.False(t, Repair(s, now))
	assert.False(t, s.StartNotified)

	clean := &models.Schedule{Date: "2026-10-12", Time: "09:00"}
	assert.False(t, Repair(clean, now))
	assert.False(t, clean.Notified())
}
