package notify

import (
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier is a fire-and-forget alert sink. Implementations never return
// errors to callers; a lost alert must not take the pipeline down with it.
type Notifier interface {
	Send(text string)
}

// Noop discards all alerts. Used when Telegram is not configured.
type Noop struct{}

func (Noop) Send(string) {}

// Telegram sends alerts to a single chat. Failures are logged and
// swallowed.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger
}

func NewTelegram(token string, chatID int64, logger *slog.Logger) (*Telegram, error) {
	if logger == nil {
		logger = slog.Default()
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: bot, chatID: chatID, logger: logger}, nil
}

func (t *Telegram) Send(text string) {
	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Warn("telegram alert failed", "error", err)
	}
}
