package api

import (
	"fmt"
	"net/http"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/sirupsen/logrus"

	"github.com/hray3182/chime/internal/models"
	"github.com/hray3182/chime/internal/occurrence"
	"github.com/hray3182/chime/internal/rrule"
)

// Floating local time: calendar clients show the same wall clock the
// reminders fire at, whatever zone they run in.
const icsLocalLayout = "20060102T150405"

func (s *Server) handleICS(w http.ResponseWriter, _ *http.Request) {
	cal := s.Calendar(s.store.List())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="chime.ics"`)
	if _, err := w.Write([]byte(cal.Serialize())); err != nil {
		logrus.WithError(err).Error("Failed to write calendar")
	}
}

// Calendar renders schedules as VEVENTs. Weekly schedules carry an RRULE;
// every event gets a display alarm at the lead time.
func (s *Server) Calendar(schedules []models.Schedule) *ics.Calendar {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//chime//schedule reminders//JA")
	stamp := s.now().UTC()

	for _, sc := range schedules {
		start, ok := firstOccurrence(&sc, s.now().Location())
		if !ok {
			continue
		}

		event := cal.AddEvent(sc.ID + "@chime")
		event.SetDtStampTime(stamp)
		if !sc.CreatedAt.IsZero() {
			event.SetCreatedTime(sc.CreatedAt)
		}
		if !sc.UpdatedAt.IsZero() {
			event.SetModifiedAt(sc.UpdatedAt)
		}
		event.SetProperty(ics.ComponentPropertyDtStart, start.Format(icsLocalLayout))
		event.SetSummary(sc.Title)
		if sc.Description != "" {
			event.SetDescription(sc.Description)
		}

		if sc.IsRecurring() {
			b, err := rrule.ForSchedule(&sc)
			if err != nil {
				logrus.WithError(err).WithField("schedule_id", sc.ID).Warn("Skipping RRULE in calendar export")
			} else {
				event.AddProperty(ics.ComponentPropertyRrule, b.String())
			}
		}

		if s.leadMinutes > 0 {
			alarm := event.AddAlarm()
			alarm.SetAction(ics.ActionDisplay)
			alarm.SetTrigger(fmt.Sprintf("-PT%dM", s.leadMinutes))
			alarm.SetProperty(ics.ComponentPropertyDescription, sc.Title)
		}
	}
	return cal
}

// firstOccurrence anchors DTSTART: the first instance on or after the day
// the schedule was created.
func firstOccurrence(sc *models.Schedule, loc *time.Location) (time.Time, bool) {
	ref := sc.CreatedAt
	if ref.IsZero() {
		ref = time.Now()
	}
	ref = ref.In(loc)
	ref = time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, loc)
	occ, ok := occurrence.Next(sc, ref)
	if !ok {
		return time.Time{}, false
	}
	return occ.At, true
}
