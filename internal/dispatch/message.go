package dispatch

import (
	"fmt"
	"strings"
	"time"

	"github.com/hray3182/chime/internal/models"
	"github.com/hray3182/chime/internal/rrule"
)

// SpeechText prefers the cached message of the schedule and falls back to
// a template.
func (d *Dispatcher) SpeechText(req Request) string {
	s := req.Schedule
	switch req.Kind {
	case KindLead:
		if msg := strings.TrimSpace(s.TTSLeadMessage); msg != "" {
			return msg
		}
		return fmt.Sprintf("まもなく「%s」の時間です。%s%sに始まります。", s.Title, recurrencePrefix(s), d.when(req))
	default:
		if msg := strings.TrimSpace(s.TTSMessage); msg != "" {
			return msg
		}
		return fmt.Sprintf("%s%sになりました。「%s」の時間です。", recurrencePrefix(s), d.when(req), s.Title)
	}
}

// Notification builds the desktop notification title and body.
func (d *Dispatcher) Notification(req Request) Notification {
	s := req.Schedule
	clock := req.Occurrence.At.Format(models.ClockLayout)

	var n Notification
	switch req.Kind {
	case KindLead:
		n.Title = "まもなく: " + s.Title
		n.Body = fmt.Sprintf("%s 開始", d.when(req))
		if mins := int(req.Occurrence.At.Sub(req.Now).Round(time.Minute).Minutes()); mins > 0 {
			n.Body += fmt.Sprintf("（あと%d分）", mins)
		}
	default:
		n.Title = "開始: " + s.Title
		n.Body = clock + " になりました"
	}
	if s.Repeat != nil {
		n.Body += "\n" + rrule.WeekdayPhrase(s.Repeat.Days)
	}
	if desc := strings.TrimSpace(s.Description); desc != "" {
		n.Body += "\n\n" + desc
	}
	return n
}

// when renders the occurrence as "今日の09:00" or "10月20日の09:00".
func (d *Dispatcher) when(req Request) string {
	at := req.Occurrence.At
	clock := at.Format(models.ClockLayout)
	now := req.Now.In(at.Location())
	if at.Year() == now.Year() && at.YearDay() == now.YearDay() {
		return "今日の" + clock
	}
	return fmt.Sprintf("%d月%d日の%s", int(at.Month()), at.Day(), clock)
}

func recurrencePrefix(s models.Schedule) string {
	if s.Repeat == nil {
		return ""
	}
	phrase := rrule.WeekdayPhrase(s.Repeat.Days)
	if phrase == "" {
		return ""
	}
	return phrase + "、"
}
