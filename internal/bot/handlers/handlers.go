package handlers

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/hray3182/chime/internal/format"
	"github.com/hray3182/chime/internal/models"
	"github.com/hray3182/chime/internal/occurrence"
	"github.com/hray3182/chime/internal/rrule"
	"github.com/hray3182/chime/internal/store"
)

type ScheduleStore interface {
	List() []models.Schedule
	Add(in store.Input) (models.Schedule, error)
	Remove(id string) error
}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Handlers struct {
	api    sender
	store  ScheduleStore
	chatID int64
	now    func() time.Time
}

func New(api *tgbotapi.BotAPI, st ScheduleStore, chatID int64) *Handlers {
	return &Handlers{api: api, store: st, chatID: chatID, now: time.Now}
}

// HandleCommand answers commands from the owner's chat and ignores the rest.
func (h *Handlers) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil || msg.Chat.ID != h.chatID {
		logrus.WithField("chat_id", chatID(msg)).Warn("Ignoring command from unknown chat")
		return
	}

	switch msg.Command() {
	case "start", "help":
		h.handleHelp(msg)
	case "add":
		h.handleAdd(msg)
	case "list":
		h.handleList(msg)
	case "delete":
		h.handleDelete(msg)
	case "upcoming":
		h.handleUpcoming(msg)
	default:
		h.sendMessage("不明なコマンドです。/help で使い方を確認してください")
	}
}

func chatID(msg *tgbotapi.Message) int64 {
	if msg.Chat == nil {
		return 0
	}
	return msg.Chat.ID
}

func (h *Handlers) sendMessage(text string) {
	parsed := format.ParseMarkdown(text)
	msg := tgbotapi.NewMessage(h.chatID, parsed.Text)
	msg.Entities = parsed.Entities
	if _, err := h.api.Send(msg); err != nil {
		logrus.WithError(err).Error("Failed to send message")
	}
}

func (h *Handlers) handleHelp(msg *tgbotapi.Message) {
	h.sendMessage(`**コマンド一覧**

/add <日付> <時刻> <タイトル> - 予定を追加
  例: /add 2026-10-20 15:30 歯医者
  例: /add 月水 09:00 朝会 (毎週)
/list - 予定の一覧
/delete <ID> - 予定を削除 (IDは先頭数文字で可)
/upcoming - 7日以内の予定`)
}

func (h *Handlers) handleAdd(msg *tgbotapi.Message) {
	parts := strings.Fields(msg.CommandArguments())
	if len(parts) < 3 {
		h.sendMessage("使い方: /add <日付|曜日> <時刻> <タイトル>\n例: /add 月水 09:00 朝会")
		return
	}

	in := store.Input{Time: parts[1], Title: strings.Join(parts[2:], " ")}
	if _, err := time.Parse(models.DateLayout, parts[0]); err == nil {
		in.Date = parts[0]
	} else if days, ok := ParseDays(parts[0]); ok {
		in.Repeat = &models.Repeat{Kind: models.RepeatWeekly, Days: days}
	} else {
		h.sendMessage("日付は YYYY-MM-DD、曜日は 月水金 のように指定してください")
		return
	}

	sc, err := h.store.Add(in)
	if err != nil {
		h.sendMessage("追加できませんでした: " + err.Error())
		return
	}
	h.sendMessage(fmt.Sprintf("✅ 追加しました\n%s", h.describe(sc)))
}

func (h *Handlers) handleList(msg *tgbotapi.Message) {
	schedules := h.store.List()
	if len(schedules) == 0 {
		h.sendMessage("予定はありません")
		return
	}

	var sb strings.Builder
	sb.WriteString("**予定一覧**\n")
	for _, sc := range schedules {
		sb.WriteString("\n" + h.describe(sc) + "\n")
	}
	h.sendMessage(sb.String())
}

func (h *Handlers) handleDelete(msg *tgbotapi.Message) {
	prefix := strings.TrimPrefix(strings.TrimSpace(msg.CommandArguments()), "#")
	if prefix == "" {
		h.sendMessage("使い方: /delete <ID>")
		return
	}

	var matches []models.Schedule
	for _, sc := range h.store.List() {
		if strings.HasPrefix(sc.ID, prefix) {
			matches = append(matches, sc)
		}
	}
	switch len(matches) {
	case 0:
		h.sendMessage("該当する予定がありません")
		return
	case 1:
	default:
		h.sendMessage(fmt.Sprintf("%d件が一致しました。IDをもう少し長く指定してください", len(matches)))
		return
	}

	if err := h.store.Remove(matches[0].ID); err != nil {
		h.sendMessage("削除できませんでした: " + err.Error())
		return
	}
	h.sendMessage(fmt.Sprintf("🗑 「%s」を削除しました", matches[0].Title))
}

func (h *Handlers) handleUpcoming(msg *tgbotapi.Message) {
	now := h.now()
	type item struct {
		at    time.Time
		title string
	}
	var items []item
	for _, sc := range h.store.List() {
		times, err := rrule.Between(&sc, now, now.AddDate(0, 0, 7))
		if err != nil {
			continue
		}
		for _, at := range times {
			items = append(items, item{at: at, title: sc.Title})
		}
	}
	if len(items) == 0 {
		h.sendMessage("7日以内の予定はありません")
		return
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].at.Before(items[j].at) })

	var sb strings.Builder
	sb.WriteString("**7日以内の予定**\n")
	for _, it := range items {
		sb.WriteString(fmt.Sprintf("\n%s %s %s", it.at.Format("01/02"), weekdayJA[it.at.Weekday()], it.at.Format(models.ClockLayout)))
		sb.WriteString("  " + it.title)
	}
	h.sendMessage(sb.String())
}

// describe renders one schedule as "#id title" plus its rule and next time.
func (h *Handlers) describe(sc models.Schedule) string {
	id := sc.ID
	if len(id) > 8 {
		id = id[:8]
	}
	rule := sc.Date + " " + sc.Time
	if sc.IsRecurring() {
		rule = rrule.WeekdayPhrase(sc.Repeat.Days) + " " + sc.Time
	}
	line := fmt.Sprintf("`#%s` **%s**\n  %s", id, sc.Title, rule)
	if occ, ok := occurrence.Next(&sc, h.now()); ok && !occ.At.Before(h.now()) {
		line += "  (次回 " + occ.At.Format("01/02 15:04") + ")"
	}
	return line
}

var weekdayJA = [7]string{"(日)", "(月)", "(火)", "(水)", "(木)", "(金)", "(土)"}

var dayAliases = map[string]int{
	"日": 0, "月": 1, "火": 2, "水": 3, "木": 4, "金": 5, "土": 6,
	"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
}

// ParseDays reads weekday lists such as "月水金", "月,水", "mon,wed",
// "0,3" or "毎日".
func ParseDays(s string) ([]int, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "毎日" || s == "daily" {
		return []int{0, 1, 2, 3, 4, 5, 6}, true
	}
	s = strings.TrimPrefix(s, "毎週")

	var days []int
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '、' || r == '・' }) {
		if d, ok := dayAliases[tok]; ok {
			days = append(days, d)
			continue
		}
		if n, err := strconv.Atoi(tok); err == nil && n >= 0 && n <= 6 {
			days = append(days, n)
			continue
		}
		// "月水金" style: one weekday per rune, optionally suffixed with 曜 or 曜日
		tok = strings.NewReplacer("曜日", "", "曜", "").Replace(tok)
		if tok == "" {
			return nil, false
		}
		for _, r := range tok {
			d, ok := dayAliases[string(r)]
			if !ok {
				return nil, false
			}
			days = append(days, d)
		}
	}

	rep := models.NormalizeRepeat(&models.Repeat{Kind: models.RepeatWeekly, Days: days})
	if rep == nil {
		return nil, false
	}
	return rep.Days, true
}
