package admin

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const pollTimeout = 60

// TelegramBot serves the admin text commands over a Telegram bot using long
// polling. The sender identity is the numeric Telegram user id.
type TelegramBot struct {
	api *tgbotapi.BotAPI
	svc *Service
}

func NewTelegramBot(token string, svc *Service) (*TelegramBot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}
	return &TelegramBot{api: api, svc: svc}, nil
}

// Run handles updates until ctx is done.
func (b *TelegramBot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout

	updates := b.api.GetUpdatesChan(u)
	slog.InfoContext(ctx, "telegram: admin bot started", "bot", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil

		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.From == nil {
				continue
			}

			from := strconv.FormatInt(update.Message.From.ID, 10)
			reply := b.svc.Handle(ctx, from, update.Message.Text)

			msg := tgbotapi.NewMessage(update.Message.Chat.ID, reply)
			msg.ReplyToMessageID = update.Message.MessageID
			if _, err := b.api.Send(msg); err != nil {
				slog.WarnContext(ctx, "telegram: reply failed", "chat", update.Message.Chat.ID, "error", err)
			}
		}
	}
}
