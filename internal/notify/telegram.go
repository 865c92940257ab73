package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hray3182/chime/internal/dispatch"
	"github.com/hray3182/chime/internal/format"
)

// sender is the part of *tgbotapi.BotAPI used here
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram mirrors reminders into a chat.
type Telegram struct {
	api    sender
	chatID int64
}

func NewTelegram(api *tgbotapi.BotAPI, chatID int64) *Telegram {
	return &Telegram{api: api, chatID: chatID}
}

func (t *Telegram) Notify(ctx context.Context, n dispatch.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	parsed := format.Reminder(n.Title, n.Body)
	msg := tgbotapi.NewMessage(t.chatID, parsed.Text)
	msg.Entities = parsed.Entities
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
