package alert

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"

	"github.com/mailsight/mailsight/pkg/models"
)

// TelegramNotifier posts fired alerts to a Telegram chat. The chat is
// fixed by configuration rather than per rule: it is an operator
// channel, not a recipient list.
type TelegramNotifier struct {
	bot    *bot.Bot
	chatID int64
	logger *slog.Logger
}

// NewTelegramNotifier creates the Telegram channel
func NewTelegramNotifier(token string, chatID int64, logger *slog.Logger) (*TelegramNotifier, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramNotifier{
		bot:    b,
		chatID: chatID,
		logger: logger.With("channel", "telegram"),
	}, nil
}

func (n *TelegramNotifier) Name() string { return "telegram" }

// Send posts the alert text to the configured chat
func (n *TelegramNotifier) Send(ctx context.Context, rule *models.AlertRule, img *models.ImageRecord, keyword string) error {
	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: n.chatID,
		Text:   alertText(rule, img, keyword),
	})
	if err != nil {
		return fmt.Errorf("failed to send telegram alert: %w", err)
	}
	n.logger.Info("alert posted to telegram", "rule", rule.ID)
	return nil
}
