package bot

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"pvb-stock-bot/internal/catalog"
)

// Menu navigation callback ids. Item toggles use hashed ids instead, see
// callbackID.
const (
	cbSeeds = "as_seeds"
	cbGear  = "as_gear"
	cbList  = "as_list"
	cbBack  = "as_back"
)

const menuText = "🔔 *AUTOSTOCK*\n\nPick a category.\n⏰ Checks run every 5 minutes at :15"

// callbackID derives a short stable id for an item. Callback data is capped
// at 64 bytes by Telegram, so buttons carry a hash and the bot keeps the
// reverse table.
func callbackID(item string) string {
	h := fnv.New32a()
	h.Write([]byte(item))
	return fmt.Sprintf("a:%08x", h.Sum32())
}

func mainMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🌱 Seeds", cbSeeds)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⚔️ Gear", cbGear)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📋 My autostocks", cbList)),
	)
}

// categoryPage renders one category's toggle page: ✅ on tracked items, ➕ on
// the rest, one item per row, back button last.
func (b *Bot) categoryPage(cat catalog.Category, subscribed []string) tgbotapi.InlineKeyboardMarkup {
	subs := make(map[string]struct{}, len(subscribed))
	for _, item := range subscribed {
		subs[item] = struct{}{}
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, it := range b.catalog.Items(cat) {
		status := "➕"
		if _, ok := subs[it.Name]; ok {
			status = "✅"
		}
		label := fmt.Sprintf("%s %s %s", status, it.Emoji, it.Name)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, callbackID(it.Name))))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", cbBack)))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// trackedList renders the "my autostocks" page body.
func (b *Bot) trackedList(items []string) string {
	if len(items) == 0 {
		return "📋 *MY AUTOSTOCKS*\n\n_Nothing tracked yet_"
	}
	var lines []string
	for _, name := range items {
		emoji, price := "📦", "Unknown"
		if it, ok := b.catalog.Item(name); ok {
			emoji, price = it.Emoji, it.Price
		}
		lines = append(lines, fmt.Sprintf("%s *%s* (%s)", emoji, name, price))
	}
	return "📋 *MY AUTOSTOCKS*\n\n" + strings.Join(lines, "\n")
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil {
		return
	}
	b.recordUser(ctx, cb.From)
	if cb.Message == nil {
		return
	}
	chatID, messageID := cb.Message.Chat.ID, cb.Message.MessageID

	switch cb.Data {
	case cbSeeds, cbGear, cbList, cbBack:
		b.answerCallback(cb.ID, "")
	}

	switch cb.Data {
	case cbSeeds:
		items, err := b.subscriptions(ctx, cb.From.ID)
		if err != nil {
			return
		}
		b.editPage(chatID, messageID, "🌱 *SEEDS*\n\nTap to toggle:", b.categoryPage(catalog.CategorySeed, items))

	case cbGear:
		items, err := b.subscriptions(ctx, cb.From.ID)
		if err != nil {
			return
		}
		b.editPage(chatID, messageID, "⚔️ *GEAR*\n\nTap to toggle:", b.categoryPage(catalog.CategoryGear, items))

	case cbList:
		items, err := b.subscriptions(ctx, cb.From.ID)
		if err != nil {
			return
		}
		back := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", cbBack)))
		b.editPage(chatID, messageID, b.trackedList(items), back)

	case cbBack:
		b.editPage(chatID, messageID, menuText, mainMenu())

	default:
		b.handleToggle(ctx, cb)
	}
}

func (b *Bot) handleToggle(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	b.mu.Lock()
	item, ok := b.callbacks[cb.Data]
	b.mu.Unlock()
	if !ok {
		b.answerCallback(cb.ID, "Unknown item, reopen the menu with /autostock.")
		return
	}

	subscribed, err := b.subs.Toggle(ctx, cb.From.ID, item)
	if err != nil {
		b.logger.Warn("subscription toggle failed", "user", cb.From.ID, "item", item, "error", err)
		b.answerCallback(cb.ID, "Something went wrong, try again.")
		return
	}

	if subscribed {
		b.answerCallback(cb.ID, fmt.Sprintf("🔔 You now track %s", item))
	} else {
		b.answerCallback(cb.ID, fmt.Sprintf("🔕 You no longer track %s", item))
	}

	// Redraw the category page in place so the checkmark keeps up.
	it, ok := b.catalog.Item(item)
	if !ok || cb.Message == nil {
		return
	}
	items, err := b.subscriptions(ctx, cb.From.ID)
	if err != nil {
		return
	}
	edit := tgbotapi.NewEditMessageReplyMarkup(cb.Message.Chat.ID, cb.Message.MessageID,
		b.categoryPage(it.Category, items))
	if _, err := b.api.Request(edit); err != nil {
		b.logger.Warn("keyboard redraw failed", "chat", cb.Message.Chat.ID, "error", err)
	}
}

func (b *Bot) subscriptions(ctx context.Context, userID int64) ([]string, error) {
	items, err := b.subs.Items(ctx, userID)
	if err != nil {
		b.logger.Warn("subscription lookup failed", "user", userID, "error", err)
	}
	return items, err
}

func (b *Bot) editPage(chatID int64, messageID int, text string, markup tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, markup)
	edit.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Request(edit); err != nil {
		b.logger.Warn("menu edit failed", "chat", chatID, "error", err)
	}
}

func (b *Bot) answerCallback(id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		b.logger.Warn("callback answer failed", "error", err)
	}
}
