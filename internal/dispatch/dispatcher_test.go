package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hray3182/chime/internal/models"
	"github.com/hray3182/chime/internal/occurrence"
)

type fakeNotifier struct {
	got []Notification
	err error
}

func (f *fakeNotifier) Notify(ctx context.Context, n Notification) error {
	f.got = append(f.got, n)
	return f.err
}

type fakeSpeaker struct {
	texts []string
	opts  []VoiceOptions
	err   error
}

func (f *fakeSpeaker) Submit(ctx context.Context, text string, opts VoiceOptions) error {
	f.texts = append(f.texts, text)
	f.opts = append(f.opts, opts)
	return f.err
}

var loc = time.FixedZone("JST", 9*60*60)

func morningMeeting() models.Schedule {
	return models.Schedule{
		ID:     "m",
		Title:  "朝会",
		Time:   "09:00",
		Repeat: &models.Repeat{Kind: models.RepeatWeekly, Days: []int{1, 3}},
	}
}

func request(kind Kind, s models.Schedule, now time.Time) Request {
	occ, _ := occurrence.Next(&s, now)
	return Request{Kind: kind, Schedule: s, Occurrence: occ, Now: now}
}

func TestLeadTemplateToday(t *testing.T) {
	d := New(nil, nil, VoiceOptions{})
	now := time.Date(2026, 10, 12, 8, 55, 0, 0, loc)
	req := request(KindLead, morningMeeting(), now)

	assert.Equal(t, "まもなく「朝会」の時間です。毎週月曜日・水曜日、今日の09:00に始まります。", d.SpeechText(req))

	n := d.Notification(req)
	assert.Equal(t, "まもなく: 朝会", n.Title)
	assert.Equal(t, "今日の09:00 開始（あと5分）\n毎週月曜日・水曜日", n.Body)
}

func TestStartTemplateOtherDay(t *testing.T) {
	d := New(nil, nil, VoiceOptions{})
	s := models.Schedule{ID: "o", Title: "歯医者", Date: "2026-10-20", Time: "15:30", Description: "保険証"}
	now := time.Date(2026, 10, 12, 8, 0, 0, 0, loc)
	req := request(KindStart, s, now)

	assert.Equal(t, "10月20日の15:30になりました。「歯医者」の時間です。", d.SpeechText(req))
	n := d.Notification(req)
	assert.Equal(t, "開始: 歯医者", n.Title)
	assert.Equal(t, "15:30 になりました\n\n保険証", n.Body)
}

func TestCachedMessagesWin(t *testing.T) {
	d := New(nil, nil, VoiceOptions{})
	s := morningMeeting()
	s.TTSMessage = "朝会を始めましょう"
	s.TTSLeadMessage = "  "
	now := time.Date(2026, 10, 12, 8, 55, 0, 0, loc)

	assert.Equal(t, "朝会を始めましょう", d.SpeechText(request(KindStart, s, now)))
	assert.Contains(t, d.SpeechText(request(KindLead, s, now)), "まもなく「朝会」")
}

func TestDispatchCallsBoth(t *testing.T) {
	n := &fakeNotifier{}
	sp := &fakeSpeaker{}
	voice := VoiceOptions{Voice: "alloy", Speed: 1.1}
	d := New(n, sp, voice)

	now := time.Date(2026, 10, 12, 9, 0, 0, 0, loc)
	require.NoError(t, d.Dispatch(context.Background(), request(KindStart, morningMeeting(), now)))

	require.Len(t, n.got, 1)
	assert.Equal(t, "開始: 朝会", n.got[0].Title)
	require.Len(t, sp.texts, 1)
	assert.Equal(t, voice, sp.opts[0])
}

func TestDispatchJoinsErrors(t *testing.T) {
	notifyErr := errors.New("dbus down")
	speechErr := errors.New("queue full")
	n := &fakeNotifier{err: notifyErr}
	sp := &fakeSpeaker{err: speechErr}
	d := New(n, sp, VoiceOptions{})

	now := time.Date(2026, 10, 12, 9, 0, 0, 0, loc)
	err := d.Dispatch(context.Background(), request(KindStart, morningMeeting(), now))

	require.Error(t, err)
	assert.ErrorIs(t, err, notifyErr)
	assert.ErrorIs(t, err, speechErr)
	// The speech submission is still attempted after the notification failed.
	assert.Len(t, sp.texts, 1)
}
