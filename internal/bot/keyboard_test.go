package bot

import (
	"context"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pvb-stock-bot/internal/catalog"
)

func TestCallbackIDsAreShortAndUnique(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)

	seen := map[string]string{}
	for _, name := range cat.Names() {
		id := callbackID(name)
		assert.Len(t, id, 10)
		if prev, dup := seen[id]; dup {
			t.Fatalf("callback id collision: %q and %q", prev, name)
		}
		seen[id] = name
	}
}

func pageLabels(kb tgbotapi.InlineKeyboardMarkup) []string {
	var labels []string
	for _, row := range kb.InlineKeyboard {
		for _, btn := range row {
			labels = append(labels, btn.Text)
		}
	}
	return labels
}

func TestCategoryPageMarksSubscriptions(t *testing.T) {
	fx := newBotFixture(t, nil)

	kb := fx.bot.categoryPage(catalog.CategorySeed, []string{"Mr Carrot"})
	labels := pageLabels(kb)

	// All seeds plus the back button.
	assert.Len(t, labels, len(fx.bot.catalog.Items(catalog.CategorySeed))+1)
	assert.Contains(t, labels, "✅ 🥕 Mr Carrot")
	assert.Contains(t, labels, "➕ 🌵 Cactus")
	assert.Equal(t, "⬅️ Back", labels[len(labels)-1])
}

func TestTrackedList(t *testing.T) {
	fx := newBotFixture(t, nil)

	assert.Contains(t, fx.bot.trackedList(nil), "Nothing tracked yet")

	text := fx.bot.trackedList([]string{"Tomatrio"})
	assert.Contains(t, text, "🍅 *Tomatrio* ($125m)")
}

func menuCallback(data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:   "cb-1",
		From: &tgbotapi.User{ID: memberID},
		Data: data,
		Message: &tgbotapi.Message{
			MessageID: 7,
			Chat:      &tgbotapi.Chat{ID: memberID},
		},
	}
}

func TestCallbackNavigation(t *testing.T) {
	fx := newBotFixture(t, nil)
	ctx := context.Background()

	fx.bot.handleCallback(ctx, menuCallback(cbSeeds))

	// One answer plus one page edit.
	require.Len(t, fx.api.requests, 2)
	edit, ok := fx.api.requests[1].(tgbotapi.EditMessageTextConfig)
	require.True(t, ok)
	assert.Contains(t, edit.Text, "SEEDS")
}

func TestCallbackTogglesSubscription(t *testing.T) {
	fx := newBotFixture(t, nil)
	ctx := context.Background()

	cb := menuCallback(callbackID("Tomatrio"))

	fx.bot.handleCallback(ctx, cb)
	fx.bot.subs.Flush()

	items, err := fx.bot.subs.Items(ctx, memberID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Tomatrio"}, items)

	// The answer and the keyboard redraw both went out.
	assert.Len(t, fx.api.requests, 2)

	fx.bot.handleCallback(ctx, cb)
	fx.bot.subs.Flush()

	items, err = fx.bot.subs.Items(ctx, memberID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCallbackUnknownID(t *testing.T) {
	fx := newBotFixture(t, nil)

	fx.bot.handleCallback(context.Background(), menuCallback("a:deadbeef"))

	require.Len(t, fx.api.requests, 1)
	answer, ok := fx.api.requests[0].(tgbotapi.CallbackConfig)
	require.True(t, ok)
	assert.Contains(t, answer.Text, "Unknown item")
}
