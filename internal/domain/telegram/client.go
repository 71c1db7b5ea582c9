package telegram

import "context"

// Notifier posts plain-text messages to a Telegram chat.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}
