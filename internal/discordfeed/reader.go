package discordfeed

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	"pvb-stock-bot/internal/catalog"
	"pvb-stock-bot/internal/config"
	"pvb-stock-bot/internal/notify"
	"pvb-stock-bot/internal/stock"
)

// Reader is a read-only Discord session that watches one channel for the
// feed bot's restock embeds. It never posts.
type Reader struct {
	session  *discordgo.Session
	cfg      config.DiscordConfig
	catalog  *catalog.Catalog
	holder   *stock.Holder
	notifier *notify.Notifier
	logger   *slog.Logger

	// Restock lines we could not resolve to a catalog item. Surfaced on
	// /stats so a renamed item shows up before users complain.
	gaps atomic.Int64

	ctx context.Context
}

// NewReader builds the session without opening it; Run does the connect.
func NewReader(cfg config.DiscordConfig, cat *catalog.Catalog, holder *stock.Holder,
	notifier *notify.Notifier, logger *slog.Logger) (*Reader, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}

	r := &Reader{
		session:  session,
		cfg:      cfg,
		catalog:  cat,
		holder:   holder,
		notifier: notifier,
		logger:   logger.With("component", "discordfeed"),
	}

	session.AddHandler(r.onMessageCreated)
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentMessageContent
	return r, nil
}

// Run opens the gateway connection and blocks until the context ends.
func (r *Reader) Run(ctx context.Context) error {
	r.ctx = ctx
	if err := r.session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	r.logger.Info("watching restock channel", "channel", r.cfg.ChannelID)

	<-ctx.Done()
	return r.session.Close()
}

// Gaps returns how many feed lines failed to resolve since startup.
func (r *Reader) Gaps() int64 {
	return r.gaps.Load()
}

func (r *Reader) onMessageCreated(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.ChannelID != r.cfg.ChannelID || m.Author == nil || m.Author.ID != r.cfg.FeedBotID {
		return
	}

	for _, embed := range m.Embeds {
		if !IsRestock(embed) {
			continue
		}
		r.handleRestock(embed)
	}
}

func (r *Reader) handleRestock(embed *discordgo.MessageEmbed) {
	res := ParseEmbed(r.catalog, embed)
	for _, gap := range res.Gaps {
		r.gaps.Add(1)
		r.logger.Warn("unresolved restock line", "line", gap)
	}
	if len(res.Items) == 0 {
		return
	}

	snap := res.Snapshot()
	r.logger.Info("restock embed parsed", "items", len(res.Items), "gaps", len(res.Gaps))

	rows := make([]stock.Row, 0, len(res.Items))
	for _, it := range res.Items {
		typ := "gear"
		if item, ok := r.catalog.Item(it.Name); ok && item.Category == catalog.CategorySeed {
			typ = "seeds"
		}
		rows = append(rows, stock.Row{DisplayName: it.Name, Multiplier: it.Count, Type: typ, Active: true})
	}
	r.holder.Update(snap, rows)

	ctx := r.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	// An embed only names what just restocked, so it must not replace the
	// notifier's picture of the full shop.
	r.notifier.RunPartial(ctx, snap)
}
