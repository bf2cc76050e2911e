package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const helpText = `📖 *Commands*

📊 /stock - current shop stock
🌤️ /weather - active in-game weather
🔔 /autostock - pick items to be notified about
❓ /help - this message`

const adminHelpText = `

👑 *Admin*

📈 /stats - user and subscription counts
📣 /broadcast - message every known user
🚫 /cancel - abort a pending broadcast`

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	switch cmd := msg.Command(); cmd {
	case "start":
		b.reply(chatID, "👋 *Welcome!*\n\nI watch the shop and tell you when items restock."+helpText[2:])

	case "help":
		text := helpText
		if b.cfg.IsAdmin(userID) {
			text += adminHelpText
		}
		b.reply(chatID, text)

	case "stock", "weather", "autostock":
		if !b.allowCommand(userID) {
			b.reply(chatID, "⏳ Easy there, try again in a few seconds.")
			return
		}
		if !b.isMember(ctx, userID) {
			b.reply(chatID, b.joinPrompt())
			return
		}
		switch cmd {
		case "stock":
			b.cmdStock(ctx, chatID)
		case "weather":
			b.cmdWeather(ctx, chatID)
		case "autostock":
			b.cmdAutostock(ctx, chatID, userID)
		}

	case "stats":
		if !b.cfg.IsAdmin(userID) {
			return
		}
		b.cmdStats(ctx, chatID)

	case "broadcast":
		if !b.cfg.IsAdmin(userID) {
			return
		}
		b.setPending(userID)
		b.reply(chatID, "📣 Send the message to broadcast, or /cancel to abort.")

	case "cancel":
		if b.clearPending(userID) {
			b.reply(chatID, "Broadcast cancelled.")
		}

	default:
		b.reply(chatID, "Unknown command. Try /help.")
	}
}

func (b *Bot) joinPrompt() string {
	text := "🔒 *Subscribe to use the bot:*\n"
	for _, ch := range b.cfg.RequiredChannels {
		text += fmt.Sprintf("\n👉 %s", ch)
	}
	return text + "\n\nThen try the command again."
}

func (b *Bot) cmdStock(ctx context.Context, chatID int64) {
	_, rows, err := b.source.FetchStock(ctx)
	if err != nil {
		b.logger.Warn("stock fetch failed", "error", err)
		b.reply(chatID, "❌ *Could not fetch stock data*")
		return
	}
	b.reply(chatID, b.format.StockMessage(rows))
}

func (b *Bot) cmdWeather(ctx context.Context, chatID int64) {
	row, err := b.source.FetchWeather(ctx)
	if err != nil {
		b.logger.Warn("weather fetch failed", "error", err)
		b.reply(chatID, "❌ *Could not fetch weather data*")
		return
	}
	b.reply(chatID, b.format.WeatherMessage(row))
}

func (b *Bot) cmdAutostock(ctx context.Context, chatID, userID int64) {
	msg := tgbotapi.NewMessage(chatID, menuText)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = mainMenu()
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("autostock menu failed", "chat", chatID, "error", err)
	}
}

func (b *Bot) cmdStats(ctx context.Context, chatID int64) {
	users, subs, err := b.users.Counts(ctx)
	if err != nil {
		b.logger.Warn("stats query failed", "error", err)
		b.reply(chatID, "❌ Stats unavailable.")
		return
	}
	text := fmt.Sprintf("📈 *Stats*\n\n👤 Users: *%d*\n🔔 Subscriptions: *%d*", users, subs)
	if b.feedGaps != nil {
		text += fmt.Sprintf("\n🕳 Feed parse gaps: *%d*", b.feedGaps())
	}
	b.reply(chatID, text)
}

func (b *Bot) runBroadcast(ctx context.Context, msg *tgbotapi.Message) {
	if b.notifier == nil {
		b.reply(msg.Chat.ID, "❌ Broadcast engine is not wired up.")
		return
	}

	b.reply(msg.Chat.ID, "📣 Broadcasting…")
	sent, failed, err := b.notifier.Broadcast(ctx, msg.Text)
	if err != nil {
		b.logger.Error("broadcast failed", "error", err)
		b.reply(msg.Chat.ID, "❌ Broadcast failed: could not load the user list.")
		return
	}
	b.logger.Info("broadcast done", "sent", sent, "failed", failed)
	b.reply(msg.Chat.ID, fmt.Sprintf("✅ Broadcast done.\n\nDelivered: *%d*\nFailed: *%d*", sent, failed))
}
