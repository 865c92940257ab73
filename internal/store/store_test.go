package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hray3182/chime/internal/events"
	"github.com/hray3182/chime/internal/localstore"
	"github.com/hray3182/chime/internal/models"
)

type memPersister struct {
	mu      sync.Mutex
	loaded  []models.Schedule
	loadErr error
	saves   [][]models.Schedule
}

func (m *memPersister) Load(ctx context.Context) ([]models.Schedule, error) {
	return m.loaded, m.loadErr
}

func (m *memPersister) Save(ctx context.Context, schedules []models.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, schedules)
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestStore(p Persister) (*Store, *clock) {
	c := &clock{t: time.Date(2026, 10, 12, 8, 0, 0, 0, time.UTC)}
	return New(p, events.NewBus(), c.now), c
}

func weekly(days ...int) *models.Repeat {
	return &models.Repeat{Kind: models.RepeatWeekly, Days: days}
}

func TestAddValidates(t *testing.T) {
	s, _ := newTestStore(&memPersister{})

	_, err := s.Add(Input{Title: "", Time: "09:00", Date: "2026-10-12"})
	assert.True(t, errors.Is(err, ErrInvalidSchedule))

	_, err = s.Add(Input{Title: "x", Time: "09:00", Repeat: weekly(9)})
	assert.True(t, errors.Is(err, ErrInvalidSchedule))

	sc, err := s.Add(Input{Title: "朝会", Time: "9:00", Repeat: weekly(1, 1)})
	require.NoError(t, err)
	assert.NotEmpty(t, sc.ID)
	assert.Equal(t, "09:00", sc.Time)
	assert.Equal(t, []int{1}, sc.Repeat.Days)
	assert.Len(t, s.List(), 1)
}

func TestListReturnsCopies(t *testing.T) {
	s, _ := newTestStore(&memPersister{})
	_, err := s.Add(Input{Title: "a", Time: "09:00", Repeat: weekly(1)})
	require.NoError(t, err)

	list := s.List()
	list[0].Title = "changed"
	list[0].Repeat.Days[0] = 4

	again := s.List()
	assert.Equal(t, "a", again[0].Title)
	assert.Equal(t, []int{1}, again[0].Repeat.Days)
}

func TestUpdateResetsFlags(t *testing.T) {
	s, c := newTestStore(&memPersister{})
	sc, err := s.Add(Input{Title: "a", Time: "09:00", Repeat: weekly(1)})
	require.NoError(t, err)

	notified := sc
	notified.PreNotified = true
	notified.StartNotified = true
	notified.LastOccurrenceKey = "2026-10-12"
	require.Equal(t, 1, s.ApplyPass([]models.Schedule{notified}))

	c.t = c.t.Add(time.Minute)
	title := "b"
	updated, err := s.Update(sc.ID, Update{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "b", updated.Title)
	assert.False(t, updated.PreNotified)
	assert.False(t, updated.StartNotified)
	assert.Empty(t, updated.LastOccurrenceKey)
	assert.Equal(t, c.t, updated.UpdatedAt)
}

func TestUpdateRepeat(t *testing.T) {
	s, _ := newTestStore(&memPersister{})
	sc, err := s.Add(Input{Title: "a", Time: "09:00", Repeat: weekly(1)})
	require.NoError(t, err)

	_, err = s.Update(sc.ID, Update{Repeat: &models.Repeat{Kind: models.RepeatWeekly}})
	assert.True(t, errors.Is(err, ErrInvalidSchedule))

	// Clearing the repeat needs a date to stay valid.
	_, err = s.Update(sc.ID, Update{ClearRepeat: true})
	assert.True(t, errors.Is(err, ErrInvalidSchedule))

	date := "2026-10-20"
	updated, err := s.Update(sc.ID, Update{ClearRepeat: true, Date: &date})
	require.NoError(t, err)
	assert.Nil(t, updated.Repeat)

	_, err = s.Update("missing", Update{Date: &date})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemove(t *testing.T) {
	s, _ := newTestStore(&memPersister{})
	a, _ := s.Add(Input{Title: "a", Time: "09:00", Date: "2026-10-12"})
	b, _ := s.Add(Input{Title: "b", Time: "10:00", Date: "2026-10-12"})

	require.NoError(t, s.Remove(a.ID))
	assert.ErrorIs(t, s.Remove(a.ID), ErrNotFound)

	list := s.List()
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)
}

func TestApplyPassSkipsDeletedAndEdited(t *testing.T) {
	s, c := newTestStore(&memPersister{})
	a, _ := s.Add(Input{Title: "a", Time: "09:00", Date: "2026-10-12"})
	b, _ := s.Add(Input{Title: "b", Time: "10:00", Date: "2026-10-12"})
	d, _ := s.Add(Input{Title: "d", Time: "11:00", Date: "2026-10-12"})
	snapshot := s.List()

	require.NoError(t, s.Remove(a.ID))
	c.t = c.t.Add(time.Second)
	title := "b2"
	_, err := s.Update(b.ID, Update{Title: &title})
	require.NoError(t, err)

	changes, cancel := s.Bus().Subscribe()
	defer cancel()

	for i := range snapshot {
		snapshot[i].PreNotified = true
	}
	assert.Equal(t, 1, s.ApplyPass(snapshot))

	got, err := s.Get(d.ID)
	require.NoError(t, err)
	assert.True(t, got.PreNotified)
	got, _ = s.Get(b.ID)
	assert.False(t, got.PreNotified)

	change := <-changes
	assert.Equal(t, events.SourcePoller, change.Source)
	assert.Equal(t, []string{d.ID}, change.IDs)
}

func TestApplyPassEmitsOnce(t *testing.T) {
	p := &memPersister{}
	s, _ := newTestStore(p)
	_, err := s.AddMany([]Input{
		{Title: "a", Time: "09:00", Date: "2026-10-12"},
		{Title: "b", Time: "10:00", Date: "2026-10-12"},
	})
	require.NoError(t, err)
	<-s.saveCh

	changes, cancel := s.Bus().Subscribe()
	defer cancel()

	snapshot := s.List()
	for i := range snapshot {
		snapshot[i].StartNotified = true
	}
	assert.Equal(t, 2, s.ApplyPass(snapshot))

	change := <-changes
	assert.Len(t, change.IDs, 2)
	select {
	case extra := <-changes:
		t.Fatalf("expected one change event, got another %+v", extra)
	default:
	}
	assert.Len(t, s.saveCh, 1)
}

func TestLoadNormalizesAndRepairs(t *testing.T) {
	p := &memPersister{loaded: []models.Schedule{
		{ID: "a", Title: "a", Time: "9:00", Repeat: &models.Repeat{Kind: models.RepeatWeekly}},
		{ID: "a", Title: "dup", Time: "09:00"},
		{ID: "b", Title: "b", Date: "2026-10-11", Time: "09:00", LegacyNotified: true},
		{Title: "no id", Date: "2026-10-12", Time: "bad"},
	}}
	s, c := newTestStore(p)
	s.Load(context.Background())

	list := s.List()
	require.Len(t, list, 3)
	assert.Nil(t, list[0].Repeat)
	assert.Equal(t, "09:00", list[0].Time)
	assert.True(t, list[1].PreNotified)
	assert.True(t, list[1].StartNotified)
	assert.NotEmpty(t, list[2].ID)
	assert.Equal(t, c.t, list[2].CreatedAt)
	assert.Len(t, s.saveCh, 1)
}

func TestLoadFailureFallsBackToEmpty(t *testing.T) {
	s, _ := newTestStore(&memPersister{loadErr: errors.New("disk gone")})
	s.Load(context.Background())
	assert.Empty(t, s.List())
}

func TestReplaceIfEmptyNormalizesLikeLoad(t *testing.T) {
	s, _ := newTestStore(&memPersister{})

	ok := s.ReplaceIfEmpty([]models.Schedule{
		{ID: "a", Title: "a", Time: "9:00", Repeat: weekly(1)},
		{ID: "a", Title: "dup", Time: "09:00", Repeat: weekly(2)},
		{ID: "b", Title: "b", Date: "2026-10-11", Time: "09:00", LegacyNotified: true},
	})
	require.True(t, ok)

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Title)
	assert.Equal(t, "09:00", list[0].Time)
	assert.False(t, list[1].LegacyNotified)
	assert.True(t, list[1].PreNotified)
	assert.True(t, list[1].StartNotified)
	assert.Len(t, s.saveCh, 1)
}

func TestReplaceIfEmptyKeepsExistingSchedules(t *testing.T) {
	s, _ := newTestStore(&memPersister{})
	_, err := s.Add(Input{Title: "朝会", Time: "09:00", Repeat: weekly(1)})
	require.NoError(t, err)

	ok := s.ReplaceIfEmpty([]models.Schedule{{ID: "r", Title: "歯医者", Date: "2026-10-20", Time: "15:30"}})
	assert.False(t, ok)
	list := s.List()
	require.Len(t, list, 1)
	assert.Equal(t, "朝会", list[0].Title)
}

func TestReplaceIfEmptyRacingAdd(t *testing.T) {
	for i := 0; i < 50; i++ {
		s, _ := newTestStore(&memPersister{})
		var wg sync.WaitGroup
		var replaced bool
		wg.Add(2)
		go func() {
			defer wg.Done()
			replaced = s.ReplaceIfEmpty([]models.Schedule{{ID: "r", Title: "歯医者", Date: "2026-10-20", Time: "15:30"}})
		}()
		go func() {
			defer wg.Done()
			_, err := s.Add(Input{Title: "朝会", Time: "09:00", Repeat: weekly(1)})
			assert.NoError(t, err)
		}()
		wg.Wait()

		titles := make(map[string]bool)
		for _, sc := range s.List() {
			titles[sc.Title] = true
		}
		assert.True(t, titles["朝会"], "local add lost")
		assert.Equal(t, replaced, titles["歯医者"])
	}
}

func TestRunFlushesToSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := localstore.Open(ctx, filepath.Join(t.TempDir(), "chime.db"))
	require.NoError(t, err)
	defer db.Close()

	s, _ := newTestStore(db)
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		s.Run(runCtx)
		close(done)
	}()

	_, err = s.Add(Input{Title: "朝会", Time: "09:00", Repeat: weekly(1)})
	require.NoError(t, err)
	cancel()
	<-done

	reloaded, _ := newTestStore(db)
	reloaded.Load(ctx)
	list := reloaded.List()
	require.Len(t, list, 1)
	assert.Equal(t, "朝会", list[0].Title)
}
