// Package poller drives the periodic stock checks. Checks run shortly after
// each wall-clock interval boundary because that is when the upstream shop
// rotates its stock.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"pvb-stock-bot/internal/notify"
	"pvb-stock-bot/internal/server"
	"pvb-stock-bot/internal/stock"
)

// Feed is the fetch side of the stock client.
type Feed interface {
	FetchStock(ctx context.Context) (stock.Snapshot, []stock.Row, error)
}

// Poller fetches on a boundary-aligned schedule and feeds each snapshot to
// the notifier. It also reports liveness status for the HTTP endpoint.
type Poller struct {
	feed     Feed
	holder   *stock.Holder
	notifier *notify.Notifier
	throttle *notify.Throttle
	logger   *slog.Logger

	interval time.Duration
	delay    time.Duration
	botName  string

	now func() time.Time

	running  atomic.Bool
	checking atomic.Bool

	mu        sync.Mutex
	nextCheck time.Time
}

// New wires the polling loop. botName is only surfaced on the liveness
// endpoint.
func New(feed Feed, holder *stock.Holder, notifier *notify.Notifier,
	throttle *notify.Throttle, interval, delay time.Duration, botName string, logger *slog.Logger) *Poller {
	return &Poller{
		feed:     feed,
		holder:   holder,
		notifier: notifier,
		throttle: throttle,
		logger:   logger.With("component", "poller"),
		interval: interval,
		delay:    delay,
		botName:  botName,
		now:      time.Now,
	}
}

// Run checks once immediately, then on every interval boundary until the
// context ends.
func (p *Poller) Run(ctx context.Context) error {
	p.running.Store(true)
	defer p.running.Store(false)

	p.check(ctx)

	for {
		next := nextCheckTime(p.now(), p.interval, p.delay)
		p.mu.Lock()
		p.nextCheck = next
		p.mu.Unlock()

		timer := time.NewTimer(next.Sub(p.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		p.check(ctx)
		if removed := p.throttle.Sweep(); removed > 0 {
			p.logger.Debug("cooldown sweep", "removed", removed)
		}
	}
}

// Status implements server.StatusSource.
func (p *Poller) Status() server.Status {
	p.mu.Lock()
	next := p.nextCheck
	p.mu.Unlock()

	return server.Status{
		BotName:   p.botName,
		Running:   p.running.Load(),
		NextCheck: next,
	}
}

// check runs one fetch-and-notify cycle. Never more than one at a time: a
// slow fetch must not pile up with the next boundary.
func (p *Poller) check(ctx context.Context) {
	if !p.checking.CompareAndSwap(false, true) {
		p.logger.Warn("previous check still running, skipping")
		return
	}
	defer p.checking.Store(false)

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("check panicked", "panic", r)
		}
	}()

	snap, rows, err := p.feed.FetchStock(ctx)
	if err != nil {
		p.logger.Warn("stock fetch failed", "error", err)
		return
	}

	p.holder.Update(snap, rows)
	p.notifier.Run(ctx, snap)
	p.logger.Info("stock check done", "items", len(snap))
}

// nextCheckTime returns the first boundary strictly after now, plus the
// settle delay that lets the upstream finish writing its rows.
func nextCheckTime(now time.Time, interval, delay time.Duration) time.Time {
	return now.Truncate(interval).Add(interval).Add(delay)
}
