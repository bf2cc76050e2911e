// Package bot is the Telegram command surface: long polling, the command
// handlers, the autostock keyboard and the membership gate.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"pvb-stock-bot/internal/cache"
	"pvb-stock-bot/internal/catalog"
	"pvb-stock-bot/internal/config"
	"pvb-stock-bot/internal/notify"
	"pvb-stock-bot/internal/stock"
	"pvb-stock-bot/internal/store"
)

// telegramAPI is the slice of tgbotapi.BotAPI the bot actually uses, split
// out so tests can substitute a fake.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChatMember(cfg tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
	GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
}

// StockSource answers the /stock and /weather commands. Backed by the feed
// client when one is configured, by the last held snapshot otherwise.
type StockSource interface {
	FetchStock(ctx context.Context) (stock.Snapshot, []stock.Row, error)
	FetchWeather(ctx context.Context) (*stock.Row, error)
}

// Bot handles Telegram updates and doubles as the notify.Sender used for
// alerts and broadcasts.
type Bot struct {
	api      telegramAPI
	cfg      config.TelegramConfig
	catalog  *catalog.Catalog
	format   *stock.Formatter
	source   StockSource
	subs     *store.SubscriptionCache
	users    store.UserStore
	notifier *notify.Notifier
	member   cache.Cache
	logger   *slog.Logger
	self     string
	feedGaps func() int64

	now func() time.Time

	mu        sync.Mutex
	lastCmd   map[int64]time.Time
	pending   map[int64]struct{}
	callbacks map[string]string
}

// New connects to Telegram and builds the command surface.
func New(cfg config.TelegramConfig, cat *catalog.Catalog, format *stock.Formatter,
	source StockSource, subs *store.SubscriptionCache, users store.UserStore,
	member cache.Cache, logger *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	logger.Info("authorized on telegram", "account", api.Self.UserName)

	b := newBot(api, cfg, cat, format, source, subs, users, member, logger)
	b.self = "@" + api.Self.UserName
	return b, nil
}

// Username returns the bot's Telegram handle for display purposes.
func (b *Bot) Username() string {
	return b.self
}

func newBot(api telegramAPI, cfg config.TelegramConfig, cat *catalog.Catalog,
	format *stock.Formatter, source StockSource, subs *store.SubscriptionCache,
	users store.UserStore, member cache.Cache, logger *slog.Logger) *Bot {
	b := &Bot{
		api:       api,
		cfg:       cfg,
		catalog:   cat,
		format:    format,
		source:    source,
		subs:      subs,
		users:     users,
		member:    member,
		logger:    logger.With("component", "bot"),
		now:       time.Now,
		lastCmd:   make(map[int64]time.Time),
		pending:   make(map[int64]struct{}),
		callbacks: make(map[string]string),
	}
	for _, name := range cat.Names() {
		b.callbacks[callbackID(name)] = name
	}
	return b
}

// SetNotifier hands the bot its broadcast engine. Separate from New because
// the notifier in turn needs the bot as its Sender.
func (b *Bot) SetNotifier(n *notify.Notifier) {
	b.notifier = n
}

// SetFeedGaps wires the feed parser's unresolved-line counter into /stats.
func (b *Bot) SetFeedGaps(fn func() int64) {
	b.feedGaps = fn
}

// Run consumes updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, upd)
		}
	}
}

// SendMarkdown implements notify.Sender.
func (b *Bot) SendMarkdown(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) handleUpdate(ctx context.Context, upd tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("update handler panicked", "panic", r)
		}
	}()

	switch {
	case upd.CallbackQuery != nil:
		b.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil:
		b.handleMessage(ctx, upd.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.From.IsBot {
		return
	}
	b.recordUser(ctx, msg.From)

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	if b.takePending(msg.From.ID) {
		b.runBroadcast(ctx, msg)
	}
}

// recordUser keeps the bot_users table current. Every interaction counts as
// a sighting.
func (b *Bot) recordUser(ctx context.Context, from *tgbotapi.User) {
	u := store.User{
		UserID:    from.ID,
		Username:  from.UserName,
		FirstName: from.FirstName,
		LastSeen:  b.now(),
	}
	if err := b.users.UpsertUser(ctx, u); err != nil {
		b.logger.Warn("user upsert failed", "user", from.ID, "error", err)
	}
}

// allowCommand enforces the per-user command cooldown. Admins are exempt.
func (b *Bot) allowCommand(userID int64) bool {
	if b.cfg.IsAdmin(userID) {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if last, ok := b.lastCmd[userID]; ok && now.Sub(last) < b.cfg.CommandCooldown {
		return false
	}
	if len(b.lastCmd) > 10000 {
		for id, last := range b.lastCmd {
			if now.Sub(last) >= b.cfg.CommandCooldown {
				delete(b.lastCmd, id)
			}
		}
	}
	b.lastCmd[userID] = now
	return true
}

// isMember checks the required-channel gate, caching the verdict so a chatty
// user costs one API round trip per channel per TTL, not per command.
func (b *Bot) isMember(ctx context.Context, userID int64) bool {
	if len(b.cfg.RequiredChannels) == 0 {
		return true
	}

	key := fmt.Sprintf("member:%d", userID)
	if v, err := b.member.Get(ctx, key); err == nil {
		return string(v) == "1"
	}

	ok := true
	for _, ch := range b.cfg.RequiredChannels {
		m, err := b.api.GetChatMember(tgbotapi.GetChatMemberConfig{
			ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
				SuperGroupUsername: ch,
				UserID:             userID,
			},
		})
		if err != nil {
			// Fail open: a gate outage should not take the bot down with it.
			b.logger.Warn("membership check failed", "channel", ch, "user", userID, "error", err)
			continue
		}
		switch m.Status {
		case "member", "administrator", "creator":
		default:
			ok = false
		}
	}

	verdict := "0"
	if ok {
		verdict = "1"
	}
	if err := b.member.Set(ctx, key, []byte(verdict), b.cfg.MembershipTTL); err != nil {
		b.logger.Warn("membership cache write failed", "user", userID, "error", err)
	}
	return ok
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("reply failed", "chat", chatID, "error", err)
	}
}

// takePending consumes the user's pending-broadcast flag.
func (b *Bot) takePending(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.pending[userID]
	if ok {
		delete(b.pending, userID)
	}
	return ok
}

func (b *Bot) setPending(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[userID] = struct{}{}
}

func (b *Bot) clearPending(userID int64) bool {
	return b.takePending(userID)
}
