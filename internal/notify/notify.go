package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sendwatch/internal/config"
	"sendwatch/internal/domain"
	"sendwatch/internal/logging"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// LogNotifier writes alerts to the log.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	l := logging.Component(logger, "notify")
	return &LogNotifier{logger: l}
}

func (n *LogNotifier) Notify(_ context.Context, text string) error {
	n.logger.Info().Str("alert", text).Msg("operator alert")
	return nil
}

// TelegramNotifier sends alerts to a fixed set of chats.
type TelegramNotifier struct {
	bot     domain.TelegramSender
	chatIDs []int64
}

// NewTelegramBot connects to the Bot API.
func NewTelegramBot(cfg config.TelegramConfig) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = cfg.Debug
	return bot, nil
}

func NewTelegramNotifier(bot domain.TelegramSender, chatIDs []int64) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chatIDs: append([]int64(nil), chatIDs...)}
}

func (n *TelegramNotifier) Notify(ctx context.Context, text string) error {
	var errs []error
	for _, chatID := range n.chatIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(chatID, text)
		msg.DisableWebPagePreview = true
		if _, err := n.bot.Send(msg); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

// Multi fans an alert out to several notifiers.
type Multi []domain.Notifier

func (m Multi) Notify(ctx context.Context, text string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FormatChanged is the summary line of a statistics refresh.
func FormatChanged(changed []string) string {
	if len(changed) == 0 {
		return "All tasks are already up to date"
	}
	return fmt.Sprintf("%d tasks updated:\n%s", len(changed), bullets(changed))
}

// FormatDiff is the summary of an added/removed task check.
func FormatDiff(added, removed []string) string {
	return fmt.Sprintf("Added %d:\n%s\n\nRemoved %d:\n%s",
		len(added), bullets(added), len(removed), bullets(removed))
}

func bullets(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(item)
	}
	return b.String()
}
