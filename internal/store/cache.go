package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// SubscriptionCache mirrors each user's subscription set in memory with a
// TTL. Reads inside the TTL reflect the last local write; the store write
// itself happens in the background. The consequence of losing a race here is
// at most one missed or one extra notification, so there is no transactional
// coupling between cache and store.
type SubscriptionCache struct {
	store  SubscriptionStore
	ttl    time.Duration
	max    int
	logger *slog.Logger

	now func() time.Time

	mu    sync.Mutex
	users map[int64]*cachedSubs

	writes sync.WaitGroup
}

type cachedSubs struct {
	items     map[string]struct{}
	fetchedAt time.Time
}

// NewSubscriptionCache wraps a store with an in-process mirror. max caps the
// number of cached users; when it is hit, entries past the TTL are swept.
func NewSubscriptionCache(s SubscriptionStore, ttl time.Duration, max int, logger *slog.Logger) *SubscriptionCache {
	return &SubscriptionCache{
		store:  s,
		ttl:    ttl,
		max:    max,
		logger: logger.With("component", "subscription-cache"),
		now:    time.Now,
		users:  make(map[int64]*cachedSubs),
	}
}

// Items returns the user's subscriptions, served from the mirror within the
// TTL and re-fetched from the store after it expires.
func (c *SubscriptionCache) Items(ctx context.Context, userID int64) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, err := c.ensureLocked(ctx, userID)
	if err != nil {
		return nil, err
	}

	items := make([]string, 0, len(entry.items))
	for item := range entry.items {
		items = append(items, item)
	}
	sort.Strings(items)
	return items, nil
}

// IsSubscribed reports whether the user currently tracks the item.
func (c *SubscriptionCache) IsSubscribed(ctx context.Context, userID int64, item string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, err := c.ensureLocked(ctx, userID)
	if err != nil {
		return false, err
	}
	_, ok := entry.items[item]
	return ok, nil
}

// Toggle flips the user's subscription to the item and returns the new
// state. The mirror is updated before Toggle returns; the store write runs
// in the background.
func (c *SubscriptionCache) Toggle(ctx context.Context, userID int64, item string) (bool, error) {
	c.mu.Lock()
	entry, err := c.ensureLocked(ctx, userID)
	if err != nil {
		c.mu.Unlock()
		return false, err
	}

	_, subscribed := entry.items[item]
	if subscribed {
		delete(entry.items, item)
	} else {
		entry.items[item] = struct{}{}
	}
	// Restart the staleness window so the local write stays visible.
	entry.fetchedAt = c.now()
	c.mu.Unlock()

	c.writes.Add(1)
	go func() {
		defer c.writes.Done()
		wctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var werr error
		if subscribed {
			werr = c.store.Remove(wctx, userID, item)
		} else {
			werr = c.store.Add(wctx, userID, item)
		}
		if werr != nil {
			c.logger.Error("subscription write failed", "user", userID, "item", item, "error", werr)
		}
	}()

	return !subscribed, nil
}

// ListSubscribers passes straight through to the store. Fan-out audiences
// are resolved per item, not per user, so the mirror has nothing to offer.
func (c *SubscriptionCache) ListSubscribers(ctx context.Context, item string) ([]int64, error) {
	return c.store.ListSubscribers(ctx, item)
}

// PurgeUser removes the user from the mirror and the store.
func (c *SubscriptionCache) PurgeUser(ctx context.Context, userID int64) error {
	c.mu.Lock()
	delete(c.users, userID)
	c.mu.Unlock()

	return c.store.PurgeUser(ctx, userID)
}

// Flush waits for pending background writes. Called on shutdown and by tests.
func (c *SubscriptionCache) Flush() {
	c.writes.Wait()
}

// ensureLocked loads the entry from the store when missing or stale.
// Callers hold c.mu.
func (c *SubscriptionCache) ensureLocked(ctx context.Context, userID int64) (*cachedSubs, error) {
	now := c.now()
	if entry, ok := c.users[userID]; ok && now.Sub(entry.fetchedAt) < c.ttl {
		return entry, nil
	}

	items, err := c.store.ListItems(ctx, userID)
	if err != nil {
		// Serve the stale entry rather than failing the command outright.
		if entry, ok := c.users[userID]; ok {
			c.logger.Warn("subscription refresh failed, serving stale entry", "user", userID, "error", err)
			return entry, nil
		}
		return nil, err
	}

	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	entry := &cachedSubs{items: set, fetchedAt: now}

	if len(c.users) >= c.max {
		c.sweepLocked(now)
	}
	c.users[userID] = entry
	return entry, nil
}

// sweepLocked drops entries past the TTL. Not LRU, just an age sweep; it
// only has to keep the map bounded.
func (c *SubscriptionCache) sweepLocked(now time.Time) {
	for id, entry := range c.users {
		if now.Sub(entry.fetchedAt) >= c.ttl {
			delete(c.users, id)
		}
	}
}
