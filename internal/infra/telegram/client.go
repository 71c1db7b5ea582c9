package telegram

import (
	"context"
	"strings"

	"gopkg.in/telebot.v3"
)

// maxMessageRunes is the Telegram limit for a single text message.
const maxMessageRunes = 4096

// sender is the part of *telebot.Bot used for outgoing messages.
type sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// ChatNotifier sends messages through a telebot bot, splitting long text.
type ChatNotifier struct {
	bot sender
}

func NewChatNotifier(b *telebot.Bot) *ChatNotifier {
	return &ChatNotifier{bot: b}
}

// Notify sends text to chatID in as many messages as the size limit requires.
func (n *ChatNotifier) Notify(ctx context.Context, chatID int64, text string) error {
	chat := &telebot.Chat{ID: chatID}
	for _, part := range splitMessage(text, maxMessageRunes) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := n.bot.Send(chat, part, &telebot.SendOptions{DisableWebPagePreview: true}); err != nil {
			return err
		}
	}
	return nil
}

// splitMessage cuts text into chunks of at most limit runes, preferring line breaks.
func splitMessage(text string, limit int) []string {
	var parts []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if curLen > 0 {
			parts = append(parts, cur.String())
			cur.Reset()
			curLen = 0
		}
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		runes := []rune(line)
		if curLen+len(runes) > limit {
			flush()
		}
		for len(runes) > limit {
			parts = append(parts, string(runes[:limit]))
			runes = runes[limit:]
		}
		cur.WriteString(string(runes))
		curLen += len(runes)
	}
	flush()
	if len(parts) == 0 {
		parts = []string{text}
	}
	return parts
}
