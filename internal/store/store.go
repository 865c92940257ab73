// Package store holds the canonical in-memory schedule list. Memory is
// authoritative; disk writes happen asynchronously and are coalesced.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hray3182/chime/internal/events"
	"github.com/hray3182/chime/internal/models"
	"github.com/hray3182/chime/internal/tracker"
)

var (
	ErrNotFound        = errors.New("schedule not found")
	ErrInvalidSchedule = errors.New("invalid schedule")
)

// Persister is the local persisted store.
type Persister interface {
	Load(ctx context.Context) ([]models.Schedule, error)
	Save(ctx context.Context, schedules []models.Schedule) error
}

type Store struct {
	mu        sync.Mutex
	schedules []models.Schedule

	persister Persister
	bus       *events.Bus
	now       func() time.Time

	saveCh chan struct{}
}

func New(persister Persister, bus *events.Bus, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	if bus == nil {
		bus = events.NewBus()
	}
	return &Store{
		persister: persister,
		bus:       bus,
		now:       now,
		saveCh:    make(chan struct{}, 1),
	}
}

func (s *Store) Bus() *events.Bus {
	return s.bus
}

// Load replaces the in-memory list with the persisted one. A failing load is
// logged and leaves an empty list. Every record is normalized and legacy
// "notified" flags are repaired once here.
func (s *Store) Load(ctx context.Context) {
	loaded, err := s.persister.Load(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to load schedules, starting with an empty list")
		loaded = nil
	}

	out, repaired := prepare(loaded, s.now())

	s.mu.Lock()
	s.schedules = out
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{"count": len(out), "repaired": repaired}).Info("Schedules loaded")
	if repaired > 0 {
		s.requestSave()
	}
	s.bus.Publish(events.Change{Source: events.SourceLoad})
}

// List returns copies of all schedules in insertion order.
func (s *Store) List() []models.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Schedule, len(s.schedules))
	for i, sc := range s.schedules {
		out[i] = sc.Clone()
	}
	return out
}

func (s *Store) Get(id string) (models.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return models.Schedule{}, ErrNotFound
	}
	return s.schedules[i].Clone(), nil
}

// Input is the user-editable part of a schedule.
type Input struct {
	Title          string
	Description    string
	Date           string
	Time           string
	Repeat         *models.Repeat
	TTSMessage     string
	TTSLeadMessage string
}

func (s *Store) Add(in Input) (models.Schedule, error) {
	sc, err := build(in, s.now())
	if err != nil {
		return models.Schedule{}, err
	}

	s.mu.Lock()
	s.schedules = append(s.schedules, sc)
	s.mu.Unlock()

	s.changed(events.SourceUser, []string{sc.ID})
	return sc.Clone(), nil
}

// AddMany creates several schedules at once with a single save and change event.
func (s *Store) AddMany(inputs []Input) ([]models.Schedule, error) {
	now := s.now()
	created := make([]models.Schedule, 0, len(inputs))
	for i, in := range inputs {
		sc, err := build(in, now)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		created = append(created, sc)
	}

	s.mu.Lock()
	ids := make([]string, len(created))
	for i, sc := range created {
		s.schedules = append(s.schedules, sc)
		ids[i] = sc.ID
	}
	s.mu.Unlock()

	s.changed(events.SourceUser, ids)
	return cloneAll(created), nil
}

func build(in Input, now time.Time) (models.Schedule, error) {
	sc := models.Normalize(models.Schedule{
		Title:          in.Title,
		Description:    in.Description,
		Date:           in.Date,
		Time:           in.Time,
		Repeat:         in.Repeat,
		TTSMessage:     in.TTSMessage,
		TTSLeadMessage: in.TTSLeadMessage,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, now)
	if in.Repeat != nil && sc.Repeat == nil {
		return models.Schedule{}, fmt.Errorf("%w: repeat needs at least one weekday 0-6", ErrInvalidSchedule)
	}
	if msg := sc.Validate(); msg != "" {
		return models.Schedule{}, fmt.Errorf("%w: %s", ErrInvalidSchedule, msg)
	}
	return sc, nil
}

// Update carries optional field changes. Nil pointers are left untouched;
// ClearRepeat turns a recurring schedule into a one-off.
type Update struct {
	Title          *string
	Description    *string
	Date           *string
	Time           *string
	Repeat         *models.Repeat
	ClearRepeat    bool
	TTSMessage     *string
	TTSLeadMessage *string
}

// Update applies fields to the latest stored version of id. Any edit resets
// the notification flags and occurrence key so the schedule is re-evaluated.
func (s *Store) Update(id string, u Update) (models.Schedule, error) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return models.Schedule{}, ErrNotFound
	}
	sc := s.schedules[i].Clone()

	setString(&sc.Title, u.Title)
	setString(&sc.Description, u.Description)
	setString(&sc.Date, u.Date)
	setString(&sc.Time, u.Time)
	setString(&sc.TTSMessage, u.TTSMessage)
	setString(&sc.TTSLeadMessage, u.TTSLeadMessage)
	if u.ClearRepeat {
		sc.Repeat = nil
	} else if u.Repeat != nil {
		sc.Repeat = models.NormalizeRepeat(u.Repeat)
		if sc.Repeat == nil {
			s.mu.Unlock()
			return models.Schedule{}, fmt.Errorf("%w: repeat needs at least one weekday 0-6", ErrInvalidSchedule)
		}
	}

	now := s.now()
	sc = models.Normalize(sc, now)
	if msg := sc.Validate(); msg != "" {
		s.mu.Unlock()
		return models.Schedule{}, fmt.Errorf("%w: %s", ErrInvalidSchedule, msg)
	}
	sc.ResetNotifications()
	sc.UpdatedAt = now
	s.schedules[i] = sc
	s.mu.Unlock()

	s.changed(events.SourceUser, []string{id})
	return sc.Clone(), nil
}

func (s *Store) Remove(id string) error {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	s.schedules = append(s.schedules[:i], s.schedules[i+1:]...)
	s.mu.Unlock()

	s.changed(events.SourceUser, []string{id})
	return nil
}

// ApplyPass merges the notification state of a poller pass back into the
// list. Schedules deleted or edited since the pass took its snapshot are
// skipped. Everything that did apply is saved once and announced once.
func (s *Store) ApplyPass(updates []models.Schedule) int {
	if len(updates) == 0 {
		return 0
	}

	s.mu.Lock()
	var ids []string
	for _, u := range updates {
		i := s.indexOf(u.ID)
		if i < 0 {
			logrus.WithField("schedule_id", u.ID).Debug("Schedule vanished during pass, skipping")
			continue
		}
		cur := &s.schedules[i]
		if !cur.UpdatedAt.Equal(u.UpdatedAt) {
			logrus.WithField("schedule_id", u.ID).Debug("Schedule edited during pass, skipping")
			continue
		}
		cur.PreNotified = u.PreNotified
		cur.StartNotified = u.StartNotified
		cur.LastOccurrenceKey = u.LastOccurrenceKey
		ids = append(ids, u.ID)
	}
	s.mu.Unlock()

	if len(ids) > 0 {
		s.changed(events.SourcePoller, ids)
	}
	return len(ids)
}

// ReplaceIfEmpty installs schedules, e.g. a remote backup, only while the
// list is still empty. The check and the swap happen under one lock so a
// concurrent Add is never overwritten. Records go through the same
// normalization and repair as a load.
func (s *Store) ReplaceIfEmpty(schedules []models.Schedule) bool {
	out, repaired := prepare(schedules, s.now())

	s.mu.Lock()
	if len(s.schedules) > 0 {
		s.mu.Unlock()
		return false
	}
	s.schedules = out
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{"count": len(out), "repaired": repaired}).Info("Schedules replaced")
	s.changed(events.SourceLoad, nil)
	return true
}

// prepare normalizes stored records, drops duplicate ids and repairs legacy
// notified flags.
func prepare(loaded []models.Schedule, now time.Time) ([]models.Schedule, int) {
	out := make([]models.Schedule, 0, len(loaded))
	seen := make(map[string]bool, len(loaded))
	repaired := 0
	for _, raw := range loaded {
		sc := models.Normalize(raw, now)
		if seen[sc.ID] {
			logrus.WithField("schedule_id", sc.ID).Warn("Dropping schedule with duplicate id")
			continue
		}
		seen[sc.ID] = true
		if tracker.Repair(&sc, now) {
			repaired++
		}
		out = append(out, sc)
	}
	return out, repaired
}

// Run writes the list to disk whenever it changed, until ctx is done. It
// flushes one last time on the way out.
func (s *Store) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if err := s.Flush(context.WithoutCancel(ctx)); err != nil {
				logrus.WithError(err).Error("Final schedule save failed")
			}
			return
		case <-s.saveCh:
			if err := s.Flush(ctx); err != nil {
				logrus.WithError(err).Error("Failed to save schedules")
			}
		}
	}
}

// Flush saves the current list synchronously.
func (s *Store) Flush(ctx context.Context) error {
	return s.persister.Save(ctx, s.List())
}

func (s *Store) changed(source events.Source, ids []string) {
	s.requestSave()
	s.bus.Publish(events.Change{Source: source, IDs: ids})
}

// requestSave is non-blocking; a pending save already covers this change.
func (s *Store) requestSave() {
	select {
	case s.saveCh <- struct{}{}:
	default:
	}
}

func (s *Store) indexOf(id string) int {
	for i := range s.schedules {
		if s.schedules[i].ID == id {
			return i
		}
	}
	return -1
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func cloneAll(in []models.Schedule) []models.Schedule {
	out := make([]models.Schedule, len(in))
	for i, sc := range in {
		out[i] = sc.Clone()
	}
	return out
}
