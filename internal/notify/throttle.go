package notify

import (
	"sync"
	"time"

	"pvb-stock-bot/internal/config"
)

type userItemKey struct {
	userID int64
	item   string
}

// Throttle owns the three cooldown tables with try-acquire semantics: a
// successful Try* both checks and records, so callers never read-then-write.
// The guarantees are soft; losing a race costs at most one extra message.
type Throttle struct {
	channelCooldown time.Duration
	fanoutCooldown  time.Duration
	userCooldown    time.Duration
	sweepAge        time.Duration
	maxEntries      int

	now func() time.Time

	mu      sync.Mutex
	channel map[string]time.Time      // item -> last channel alert
	fanout  map[string]time.Time      // item -> last fan-out attempt
	user    map[userItemKey]time.Time // (user,item) -> last direct message
}

// NewThrottle builds a throttle from the notify configuration.
func NewThrottle(cfg config.NotifyConfig) *Throttle {
	return &Throttle{
		channelCooldown: cfg.ChannelCooldown,
		fanoutCooldown:  cfg.FanoutCooldown,
		userCooldown:    cfg.UserCooldown,
		sweepAge:        cfg.SweepAge,
		maxEntries:      cfg.MaxEntries,
		now:             time.Now,
		channel:         make(map[string]time.Time),
		fanout:          make(map[string]time.Time),
		user:            make(map[userItemKey]time.Time),
	}
}

// TryChannel acquires the public channel cooldown for an item. A gated
// alert is dropped, never queued.
func (t *Throttle) TryChannel(item string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return tryAcquire(t.channel, item, t.channelCooldown, t.now())
}

// ReleaseChannel frees an item's channel slot. Called when the send behind
// a successful TryChannel fails, so the cooldown only counts delivered
// alerts.
func (t *Throttle) ReleaseChannel(item string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.channel, item)
}

// TryFanout acquires the per-item gate on scanning subscribers at all,
// independent of any per-user state.
func (t *Throttle) TryFanout(item string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return tryAcquire(t.fanout, item, t.fanoutCooldown, t.now())
}

// TryUser acquires the per-user per-item cooldown, the authority for "this
// user already heard about this item recently". Users are throttled
// independently of each other.
func (t *Throttle) TryUser(userID int64, item string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if len(t.user) >= t.maxEntries {
		t.sweepUsersLocked(now)
	}
	return tryAcquire(t.user, userItemKey{userID, item}, t.userCooldown, now)
}

func tryAcquire[K comparable](table map[K]time.Time, key K, cooldown time.Duration, now time.Time) bool {
	if last, ok := table[key]; ok && now.Sub(last) < cooldown {
		return false
	}
	table[key] = now
	return true
}

// ForgetUser drops all cooldown entries for a user. Called when the user is
// purged after blocking the bot.
func (t *Throttle) ForgetUser(userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key := range t.user {
		if key.userID == userID {
			delete(t.user, key)
		}
	}
}

// Sweep drops per-user entries older than the sweep age and returns how
// many were removed. An age sweep, not LRU; it only bounds memory.
func (t *Throttle) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sweepUsersLocked(t.now())
}

func (t *Throttle) sweepUsersLocked(now time.Time) int {
	removed := 0
	for key, last := range t.user {
		if now.Sub(last) >= t.sweepAge {
			delete(t.user, key)
			removed++
		}
	}
	return removed
}
