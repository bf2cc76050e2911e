package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"pvb-stock-bot/internal/bot"
	"pvb-stock-bot/internal/cache"
	"pvb-stock-bot/internal/catalog"
	"pvb-stock-bot/internal/config"
	"pvb-stock-bot/internal/discordfeed"
	"pvb-stock-bot/internal/notify"
	"pvb-stock-bot/internal/poller"
	"pvb-stock-bot/internal/server"
	"pvb-stock-bot/internal/stock"
	"pvb-stock-bot/internal/store"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel()}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func logLevel() slog.Level {
	if os.Getenv("DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	cat, err := catalog.LoadFile(cfg.CatalogFile)
	if err != nil {
		return err
	}

	byteCache, err := newCache(cfg.Cache, logger)
	if err != nil {
		return err
	}

	st, err := newStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	subs := store.NewSubscriptionCache(st, cfg.Store.SubscriptionTTL, cfg.Notify.MaxEntries, logger)
	defer subs.Flush()

	format := stock.NewFormatter(cat, cfg.Location())
	holder := &stock.Holder{}

	// The Supabase feed is the primary stock source; without it the bot
	// serves whatever the passive Discord feed last saw.
	var source bot.StockSource = holder
	var feedClient *stock.Client
	if cfg.Supabase.URL != "" && cfg.Supabase.Key != "" {
		feedClient = stock.NewClient(cfg.Supabase, byteCache, logger)
		source = feedClient
	}

	tg, err := bot.New(cfg.Telegram, cat, format, source, subs, st, byteCache, logger)
	if err != nil {
		return err
	}

	throttle := notify.NewThrottle(cfg.Notify)
	notifier := notify.NewNotifier(cfg.Notify, cfg.Telegram.ChannelID, cat.WatchList(),
		tg, directory{subs, st}, throttle, format, logger)
	defer notifier.Flush()
	tg.SetNotifier(notifier)

	g, ctx := errgroup.WithContext(ctx)

	var status server.StatusSource = staticStatus{name: tg.Username()}
	if feedClient != nil {
		p := poller.New(feedClient, holder, notifier, throttle,
			cfg.Notify.CheckInterval, cfg.Notify.CheckDelay, tg.Username(), logger)
		status = p
		g.Go(func() error { return p.Run(ctx) })
	} else {
		logger.Warn("no supabase feed configured, relying on the discord feed only")
	}

	if cfg.Discord.Token != "" && cfg.Discord.ChannelID != "" && cfg.Discord.FeedBotID != "" {
		reader, err := discordfeed.NewReader(cfg.Discord, cat, holder, notifier, logger)
		if err != nil {
			return err
		}
		tg.SetFeedGaps(reader.Gaps)
		g.Go(func() error { return reader.Run(ctx) })
	}

	srv := server.New(cfg.Server, cfg.Location(), status, logger)
	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error { return tg.Run(ctx) })

	logger.Info("bot up", "account", tg.Username(), "store", cfg.Store.Type, "cache", cfg.Cache.Type)
	return g.Wait()
}

// directory joins the subscription cache and the user table into the
// audience lookup the notifier wants. Purges go through the cache so the
// mirror is cleared along with the rows.
type directory struct {
	*store.SubscriptionCache
	store.UserStore
}

// staticStatus stands in for the poller when no feed client is configured.
type staticStatus struct {
	name string
}

func (s staticStatus) Status() server.Status {
	return server.Status{BotName: s.name, Running: true}
}

func newCache(cfg config.CacheConfig, logger *slog.Logger) (cache.Cache, error) {
	switch cfg.Type {
	case "redis":
		c, err := cache.NewRedisCache(cfg.RedisAddress(), cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		logger.Info("using redis cache", "address", cfg.RedisAddress())
		return c, nil
	default:
		return cache.NewMemoryCache(), nil
	}
}

func newStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Type {
	case "supabase":
		return store.NewSupabaseStore(cfg.Supabase.URL, cfg.Supabase.Key, cfg.Supabase.Timeout), nil
	default:
		return store.NewSQLiteStore(cfg.Store.SQLitePath)
	}
}
