// Package dispatch turns a firing decision into a desktop notification and a
// spoken reminder.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hray3182/chime/internal/models"
	"github.com/hray3182/chime/internal/occurrence"
)

type Kind string

const (
	KindLead  Kind = "lead"
	KindStart Kind = "start"
)

// Request is one reminder the poller decided to deliver.
type Request struct {
	Kind       Kind
	Schedule   models.Schedule
	Occurrence occurrence.Occurrence
	Now        time.Time
}

type Notification struct {
	Title string
	Body  string
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type VoiceOptions struct {
	Voice string
	Speed float64
}

type Speaker interface {
	Submit(ctx context.Context, text string, opts VoiceOptions) error
}

type Dispatcher struct {
	notifier Notifier
	speaker  Speaker
	voice    VoiceOptions
}

// New builds a dispatcher. Either collaborator may be nil to disable it.
func New(notifier Notifier, speaker Speaker, voice VoiceOptions) *Dispatcher {
	return &Dispatcher{
		notifier: notifier,
		speaker:  speaker,
		voice:    voice,
	}
}

// Dispatch always attempts both the notification and the speech submission;
// their errors are joined.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) error {
	var errs []error

	if d.notifier != nil {
		if err := d.notifier.Notify(ctx, d.Notification(req)); err != nil {
			errs = append(errs, fmt.Errorf("notification: %w", err))
		}
	}
	if d.speaker != nil {
		if err := d.speaker.Submit(ctx, d.SpeechText(req), d.voice); err != nil {
			errs = append(errs, fmt.Errorf("speech: %w", err))
		}
	}

	return errors.Join(errs...)
}
