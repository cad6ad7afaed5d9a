package notify

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"

	"github.com/vpanel/economy-engine/internal/model"
)

// TelegramDispatcher announces settlements to a group chat and raises
// alerts to an operator chat. The draw announcement is pinned so the
// day's results stay visible.
type TelegramDispatcher struct {
	b           *bot.Bot
	groupChatID int64
	adminChatID int64
}

// NewTelegram creates a Telegram dispatcher. adminChatID may equal
// groupChatID when no separate operator chat exists.
func NewTelegram(token string, groupChatID, adminChatID int64) (*TelegramDispatcher, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("notify: telegram init: %w", err)
	}
	return &TelegramDispatcher{b: b, groupChatID: groupChatID, adminChatID: adminChatID}, nil
}

func (t *TelegramDispatcher) DrawReport(ctx context.Context, report *model.DrawReport) error {
	msg, err := t.b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.groupChatID,
		Text:   FormatReport(report),
	})
	if err != nil {
		return fmt.Errorf("notify: telegram send: %w", err)
	}

	// Pinning is cosmetic; its failure does not fail the delivery.
	_, _ = t.b.PinChatMessage(ctx, &bot.PinChatMessageParams{
		ChatID:              t.groupChatID,
		MessageID:           msg.ID,
		DisableNotification: true,
	})
	return nil
}

func (t *TelegramDispatcher) Alert(ctx context.Context, subject string, alertErr error) error {
	_, err := t.b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.adminChatID,
		Text:   fmt.Sprintf("ALERT %s\n%v", subject, alertErr),
	})
	if err != nil {
		return fmt.Errorf("notify: telegram alert: %w", err)
	}
	return nil
}
