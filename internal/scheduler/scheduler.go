package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hray3182/chime/internal/dispatch"
	"github.com/hray3182/chime/internal/models"
)

// Store is the part of the schedule store a pass needs.
type Store interface {
	List() []models.Schedule
	ApplyPass(updates []models.Schedule) int
}

type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) error
}

type Scheduler struct {
	store      Store
	dispatcher Dispatcher
	opts       Options
	now        func() time.Time
	notifyCh   chan struct{}
}

func New(store Store, dispatcher Dispatcher, opts Options, now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		store:      store,
		dispatcher: dispatcher,
		opts:       opts,
		now:        now,
		notifyCh:   make(chan struct{}, 1),
	}
}

// Notify triggers an immediate pass. Non-blocking if a pass is already pending.
func (s *Scheduler) Notify() {
	select {
	case s.notifyCh <- struct{}{}:
	default:
		// Channel already has a pending notification, skip
	}
}

// Start runs one pass right away and then one at every minute boundary until
// ctx is cancelled. The next wait is armed only after a pass has completed,
// so passes never overlap. A pass that is running when ctx is cancelled is
// allowed to finish.
func (s *Scheduler) Start(ctx context.Context) {
	logrus.WithFields(logrus.Fields{
		"lead_minutes": s.opts.LeadMinutes,
		"cooldown":     s.opts.Cooldown,
	}).Info("Scheduler started")

	s.runPass(ctx)

	timer := time.NewTimer(untilNextMinute(s.now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Scheduler stopped")
			return
		case <-timer.C:
			s.runPass(ctx)
		case <-s.notifyCh:
			logrus.Debug("Scheduler triggered by notification")
			s.runPass(ctx)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
		timer.Reset(untilNextMinute(s.now()))
	}
}

func (s *Scheduler) runPass(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("panic", r).Error("Scheduler pass panicked")
		}
	}()
	s.Tick(context.WithoutCancel(ctx), s.now())
}

// Tick performs one evaluation pass at now: it delivers every reminder the
// firing rules ask for and then hands all changed schedules to the store in
// a single batch.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) Transaction {
	tx := Evaluate(s.store.List(), now, s.opts)

	for _, req := range tx.Requests {
		s.deliver(ctx, req)
	}

	if applied := s.store.ApplyPass(tx.Dirty); applied > 0 {
		logrus.WithFields(logrus.Fields{
			"dirty":   len(tx.Dirty),
			"applied": applied,
		}).Debug("Pass updated schedules")
	}
	return tx
}

func (s *Scheduler) deliver(ctx context.Context, req dispatch.Request) {
	fields := logrus.Fields{
		"schedule_id": req.Schedule.ID,
		"kind":        req.Kind,
		"occurrence":  req.Occurrence.At.Format("2006-01-02 15:04"),
	}

	if s.opts.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.DispatchTimeout)
		defer cancel()
	}

	if err := s.dispatcher.Dispatch(ctx, req); err != nil {
		// The flag stays set: no retry, so a flapping output cannot cause a storm.
		logrus.WithError(err).WithFields(fields).Error("Failed to deliver reminder")
		return
	}
	logrus.WithFields(fields).Info("Sent reminder")
}

func untilNextMinute(now time.Time) time.Duration {
	next := truncateMinute(now).Add(time.Minute)
	return next.Sub(now)
}
