// Package speech speaks reminder texts one at a time.
package speech

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hray3182/chime/internal/dispatch"
)

var ErrQueueFull = errors.New("speech queue is full")

// Engine turns text into audible speech and returns when it has finished.
type Engine interface {
	Speak(ctx context.Context, text string, opts dispatch.VoiceOptions) error
}

type job struct {
	text string
	opts dispatch.VoiceOptions
}

// Queue plays submissions in order on a single worker so that two reminders
// never talk over each other.
type Queue struct {
	engine  Engine
	jobs    chan job
	timeout time.Duration
}

func NewQueue(engine Engine, size int, timeout time.Duration) *Queue {
	if size <= 0 {
		size = 16
	}
	return &Queue{
		engine:  engine,
		jobs:    make(chan job, size),
		timeout: timeout,
	}
}

// Submit enqueues text without waiting for it to be spoken.
func (q *Queue) Submit(ctx context.Context, text string, opts dispatch.VoiceOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.jobs <- job{text: text, opts: opts}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run speaks queued texts until ctx is cancelled. Texts still queued at that
// point are dropped.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-q.jobs:
			q.speak(ctx, j)
		}
	}
}

// Drain speaks whatever is queued right now and returns once the queue is
// empty. Used by one-shot runs that exit after a single pass.
func (q *Queue) Drain(ctx context.Context) {
	for {
		select {
		case j := <-q.jobs:
			q.speak(ctx, j)
		default:
			return
		}
	}
}

func (q *Queue) speak(ctx context.Context, j job) {
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}
	start := time.Now()
	if err := q.engine.Speak(ctx, j.text, j.opts); err != nil {
		logrus.WithError(err).WithField("text", j.text).Warn("Failed to speak reminder")
		return
	}
	logrus.WithField("duration", time.Since(start)).Debug("Spoke reminder")
}
