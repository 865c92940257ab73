// Package remotesync mirrors the local schedule collection to a remote store.
// The local store stays authoritative; the remote copy is overwritten. The
// only time data flows back is when the local store starts out empty.
package remotesync

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/hray3182/chime/internal/models"
)

type Source interface {
	List() []models.Schedule
	ReplaceIfEmpty(schedules []models.Schedule) bool
}

type Remote interface {
	Replace(ctx context.Context, schedules []models.Schedule) ([]models.Schedule, error)
	List(ctx context.Context) ([]models.Schedule, error)
}

type Syncer struct {
	source  Source
	remote  Remote
	timeout time.Duration
}

func New(source Source, remote Remote, timeout time.Duration) *Syncer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Syncer{source: source, remote: remote, timeout: timeout}
}

// Push sends the current snapshot to the remote store.
func (s *Syncer) Push(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	local := s.source.List()
	remote, err := s.remote.Replace(ctx, local)
	if err != nil {
		return fmt.Errorf("remote replace: %w", err)
	}
	if len(remote) != len(local) {
		logrus.WithFields(logrus.Fields{
			"local":  len(local),
			"remote": len(remote),
		}).Warn("Remote schedule count differs after sync")
	}
	return nil
}

// Restore copies the remote schedules into an empty local store and reports
// how many were adopted. A non-empty local store is left alone.
func (s *Syncer) Restore(ctx context.Context) (int, error) {
	if len(s.source.List()) > 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	remote, err := s.remote.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("remote list: %w", err)
	}
	if len(remote) == 0 {
		return 0, nil
	}
	if !s.source.ReplaceIfEmpty(remote) {
		logrus.Info("Local schedules appeared during restore, keeping them")
		return 0, nil
	}
	return len(remote), nil
}

// Start restores an empty local store, pushes once, and then pushes on every
// tick of the cron expression until ctx is cancelled.
// A push still running when the next tick fires makes that tick a no-op.
func (s *Syncer) Start(ctx context.Context, expr string) error {
	logger := cron.PrintfLogger(logrus.StandardLogger())
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(logger)))

	if _, err := c.AddFunc(expr, func() { s.pushAndLog(ctx) }); err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", expr, err)
	}

	if n, err := s.Restore(ctx); err != nil {
		logrus.WithError(err).Warn("Remote restore failed")
	} else if n > 0 {
		logrus.WithField("count", n).Info("Restored schedules from remote")
	}
	s.pushAndLog(ctx)
	c.Start()
	logrus.WithField("cron", expr).Info("Remote sync started")

	<-ctx.Done()
	<-c.Stop().Done()
	logrus.Info("Remote sync stopped")
	return nil
}

func (s *Syncer) pushAndLog(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := s.Push(ctx); err != nil {
		logrus.WithError(err).Error("Remote sync failed")
		return
	}
	logrus.Debug("Remote sync completed")
}
