package notify

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// TelegramSender is the part of tgbotapi.BotAPI used for delivery.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier delivers notifications to provider chats.
type TelegramNotifier struct {
	bot    TelegramSender
	logger *zerolog.Logger
}

func NewTelegramNotifier(bot TelegramSender, logger *zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, logger: logger}
}

// NewTelegramBot connects to the Bot API with the given token.
func NewTelegramBot(token string, debug bool) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = debug
	return bot, nil
}

// Send returns the Telegram message id as the delivery id.
func (n *TelegramNotifier) Send(ctx context.Context, template, recipient string, data map[string]string) (string, error) {
	chatID, err := strconv.ParseInt(address(recipient), 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid telegram chat id in %q: %w", recipient, err)
	}

	text, err := Render(template, data)
	if err != nil {
		return "", err
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	sent, err := n.bot.Send(msg)
	if err != nil {
		return "", fmt.Errorf("telegram send failed: %w", err)
	}

	n.logger.Debug().
		Int64("chat_id", chatID).
		Str("template", template).
		Int("message_id", sent.MessageID).
		Msg("Telegram notification delivered")
	return strconv.Itoa(sent.MessageID), nil
}
