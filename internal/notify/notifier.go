package notify

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"pvb-stock-bot/internal/config"
	"pvb-stock-bot/internal/stock"
)

// Sender delivers one Markdown message to one chat. The Telegram bot
// implements it; tests substitute their own.
type Sender interface {
	SendMarkdown(ctx context.Context, chatID int64, text string) error
}

// Directory resolves notification audiences and removes users who turned
// out to be unreachable.
type Directory interface {
	ListSubscribers(ctx context.Context, item string) ([]int64, error)
	ListUserIDs(ctx context.Context) ([]int64, error)
	PurgeUser(ctx context.Context, userID int64) error
}

// Notifier turns a fresh stock snapshot into channel alerts and per-user
// direct messages. It keeps the previous snapshot to detect restocks and
// defers all rate limiting to the Throttle.
type Notifier struct {
	sender   Sender
	dir      Directory
	throttle *Throttle
	format   *stock.Formatter
	logger   *slog.Logger

	watch      []string
	channelID  int64
	batchSize  int
	batchPause time.Duration

	mu       sync.Mutex
	previous stock.Snapshot

	purges sync.WaitGroup
}

// NewNotifier wires the fan-out engine. channelID may be zero, which
// disables public alerts but leaves subscriptions working.
func NewNotifier(cfg config.NotifyConfig, channelID int64, watch []string,
	sender Sender, dir Directory, throttle *Throttle, format *stock.Formatter, logger *slog.Logger) *Notifier {
	return &Notifier{
		sender:     sender,
		dir:        dir,
		throttle:   throttle,
		format:     format,
		logger:     logger.With("component", "notifier"),
		watch:      watch,
		channelID:  channelID,
		batchSize:  cfg.BatchSize,
		batchPause: cfg.BatchPause,
	}
}

// Run processes one full snapshot: channel alerts for watch-list restocks,
// then the subscriber fan-out over everything in stock. Send failures are
// logged and never abort the cycle.
func (n *Notifier) Run(ctx context.Context, snap stock.Snapshot) {
	n.mu.Lock()
	prev := n.previous
	n.previous = snap
	n.mu.Unlock()

	n.notify(ctx, prev, snap, snap)
}

// RunPartial processes a snapshot that only names restocked items, merging
// it into the last full snapshot. Items the update omits keep their known
// quantities, so a partial update never makes an unchanged item look like a
// fresh restock to the next full snapshot.
func (n *Notifier) RunPartial(ctx context.Context, snap stock.Snapshot) {
	n.mu.Lock()
	prev := n.previous
	merged := make(stock.Snapshot, len(prev)+len(snap))
	for item, qty := range prev {
		merged[item] = qty
	}
	for item, qty := range snap {
		merged[item] = qty
	}
	n.previous = merged
	n.mu.Unlock()

	n.notify(ctx, prev, merged, snap)
}

// notify alerts the channel on prev->current watch-list deltas and fans out
// to subscribers of the freshly reported items.
func (n *Notifier) notify(ctx context.Context, prev, current, fresh stock.Snapshot) {
	for _, ch := range Changes(n.watch, prev, current) {
		if n.channelID == 0 || !n.throttle.TryChannel(ch.Item) {
			continue
		}
		if err := n.sender.SendMarkdown(ctx, n.channelID, n.format.ChannelAlert(ch.Item, ch.Count)); err != nil {
			// Free the slot so the alert can retry next cycle instead of
			// staying silent for the whole cooldown window.
			n.throttle.ReleaseChannel(ch.Item)
			n.logger.Error("channel alert failed", "item", ch.Item, "error", err)
			continue
		}
		n.logger.Info("channel alert sent", "item", ch.Item, "count", ch.Count)
	}

	n.fanOut(ctx, fresh)
}

// fanOut messages subscribers of every in-stock item. Repeats are suppressed
// by the fan-out and per-user cooldowns, not by snapshot deltas, so a user
// who subscribes mid-stock still gets told.
func (n *Notifier) fanOut(ctx context.Context, snap stock.Snapshot) {
	for item, count := range snap {
		if ctx.Err() != nil {
			return
		}
		if !n.throttle.TryFanout(item) {
			continue
		}

		ids, err := n.dir.ListSubscribers(ctx, item)
		if err != nil {
			n.logger.Error("subscriber lookup failed", "item", item, "error", err)
			continue
		}

		recipients := ids[:0:0]
		for _, id := range ids {
			if n.throttle.TryUser(id, item) {
				recipients = append(recipients, id)
			}
		}
		if len(recipients) == 0 {
			continue
		}

		sent, failed := n.sendBatches(ctx, recipients, n.format.AutostockAlert(item, count))
		n.logger.Info("autostock fan-out done", "item", item, "sent", sent, "failed", failed)
	}
}

// Broadcast sends an admin message to every known user and reports how many
// deliveries succeeded.
func (n *Notifier) Broadcast(ctx context.Context, text string) (sent, failed int, err error) {
	ids, err := n.dir.ListUserIDs(ctx)
	if err != nil {
		return 0, 0, err
	}
	sent, failed = n.sendBatches(ctx, ids, text)
	return sent, failed, nil
}

// sendBatches delivers text to every id, batchSize sends in flight at a
// time with a pause between batches to stay inside Telegram's rate limits.
func (n *Notifier) sendBatches(ctx context.Context, ids []int64, text string) (sent, failed int) {
	var ok, bad atomic.Int64

	for start := 0; start < len(ids); start += n.batchSize {
		if ctx.Err() != nil {
			break
		}
		end := min(start+n.batchSize, len(ids))

		var g errgroup.Group
		for _, id := range ids[start:end] {
			id := id
			g.Go(func() error {
				err := n.sender.SendMarkdown(ctx, id, text)
				if err == nil {
					ok.Add(1)
					return nil
				}
				bad.Add(1)
				if isBlockedErr(err) {
					n.purgeAsync(id)
				} else {
					n.logger.Warn("send failed", "user", id, "error", err)
				}
				return nil
			})
		}
		g.Wait()

		if end < len(ids) && n.batchPause > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(n.batchPause):
			}
		}
	}

	return int(ok.Load()), int(bad.Load())
}

// purgeAsync drops a user who blocked the bot, off the send path so one dead
// account never slows a batch down.
func (n *Notifier) purgeAsync(userID int64) {
	n.purges.Add(1)
	go func() {
		defer n.purges.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := n.dir.PurgeUser(ctx, userID); err != nil {
			n.logger.Error("blocked user purge failed", "user", userID, "error", err)
			return
		}
		n.throttle.ForgetUser(userID)
		n.logger.Info("purged blocked user", "user", userID)
	}()
}

// Flush waits for in-flight purges. Called on shutdown and by tests.
func (n *Notifier) Flush() {
	n.purges.Wait()
}

// isBlockedErr classifies a Telegram send error as "this user is gone".
// The API reports this only in human-readable descriptions.
func isBlockedErr(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"forbidden", "blocked", "deactivated", "chat not found"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
