// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func RegisterBotCommands(
	b *telebot.Bot,
	adminTelegramID int64,
	baseLogger *logrus.Entry,
) {
	startHelpLogger := baseLogger.WithField("handler_group", "start_help")

	b.Handle("/start", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/start").WithField("sender_id", senderID)
		logCtx.Info("Processing /start command")

		if senderID == adminTelegramID {
			return c.Send("Hello, admin! Scheduled run summaries will be posted here. Use /help for the command list.")
		}
		logCtx.Info("User is not the admin")
		return c.Send("This bot is for squad administrators only. Problems are delivered to members by email.")
	})

	b.Handle("/help", func(c telebot.Context) error {
		senderID := c.Sender().ID
		if senderID != adminTelegramID {
			return c.Send("No commands are available to you.")
		}

		var helpText strings.Builder
		helpText.WriteString("Admin commands:\n\n")
		helpText.WriteString("`/recommend <team_id> [squad_id]`\n - Create today's batch now and email it to the members.\n\n")
		helpText.WriteString("`/deliveries <batch_id>`\n - Show each member's delivery status for a batch.\n\n")
		helpText.WriteString("`/solved <record_id>`\n - Mark one member problem record as solved.\n\n")
		helpText.WriteString("`/help`\n - Show this message.")
		return c.Send(helpText.String(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
	})
}
