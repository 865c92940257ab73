package scheduler

import (
	"time"

	"github.com/hray3182/chime/internal/dispatch"
	"github.com/hray3182/chime/internal/models"
	"github.com/hray3182/chime/internal/occurrence"
	"github.com/hray3182/chime/internal/tracker"
)

// Options are the firing thresholds.
type Options struct {
	LeadMinutes     int
	Cooldown        time.Duration
	DispatchTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		LeadMinutes:     5,
		Cooldown:        2 * time.Minute,
		DispatchTimeout: 30 * time.Second,
	}
}

// Transaction is the outcome of one pass: the schedules whose notification
// state changed and the reminders to deliver.
type Transaction struct {
	Dirty    []models.Schedule
	Requests []dispatch.Request
}

// Evaluate runs the firing rules over a snapshot. It does not touch the
// input slice and has no side effects. Flags are recorded before delivery,
// so a failed dispatch is never retried.
func Evaluate(schedules []models.Schedule, now time.Time, opts Options) Transaction {
	var tx Transaction

	for _, s := range schedules {
		sc := s.Clone()
		// Looking back by the cooldown keeps a weekly occurrence that started
		// seconds ago current, so a late tick can still deliver its start.
		occ, ok := occurrence.Next(&sc, now.Add(-opts.Cooldown))
		if !ok {
			continue
		}

		dirty := tracker.Rearm(&sc, occ.Key)
		kind, changed := decide(&sc, occ, now, opts)
		if changed {
			dirty = true
		}
		if kind != "" {
			tx.Requests = append(tx.Requests, dispatch.Request{
				Kind:       kind,
				Schedule:   sc.Clone(),
				Occurrence: occ,
				Now:        now,
			})
		}
		if dirty {
			tx.Dirty = append(tx.Dirty, sc)
		}
	}

	return tx
}

// decide applies the first matching rule and updates the flags of sc.
func decide(sc *models.Schedule, occ occurrence.Occurrence, now time.Time, opts Options) (dispatch.Kind, bool) {
	timeDiff := occ.At.Sub(now)
	onBoundary := now.Second() == 0
	minutesLeft := floorMinutes(occ.At.Sub(truncateMinute(now)))

	// Missed while not running: mark handled without firing late.
	if timeDiff < -opts.Cooldown && (!sc.PreNotified || !sc.StartNotified) {
		sc.PreNotified = true
		sc.StartNotified = true
		return "", true
	}

	if onBoundary && minutesLeft == opts.LeadMinutes && !sc.PreNotified {
		sc.PreNotified = true
		return dispatch.KindLead, true
	}

	startWindow := (onBoundary && minutesLeft == 0) || (timeDiff > -opts.Cooldown && timeDiff <= 0)
	if startWindow && !sc.StartNotified {
		sc.StartNotified = true
		sc.PreNotified = true
		return dispatch.KindStart, true
	}

	return "", false
}

func truncateMinute(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location())
}

func floorMinutes(d time.Duration) int {
	m := d / time.Minute
	if d < 0 && d%time.Minute != 0 {
		m--
	}
	return int(m)
}
