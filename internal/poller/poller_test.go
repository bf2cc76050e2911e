package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pvb-stock-bot/internal/catalog"
	"pvb-stock-bot/internal/config"
	"pvb-stock-bot/internal/notify"
	"pvb-stock-bot/internal/stock"
)

func TestNextCheckTime(t *testing.T) {
	interval := 5 * time.Minute
	delay := 15 * time.Second

	tests := []struct {
		name string
		now  string
		want string
	}{
		{"mid window", "12:03:27", "12:05:15"},
		{"on the boundary", "12:05:00", "12:10:15"},
		{"inside the settle delay", "12:05:05", "12:10:15"},
		{"just before boundary", "12:04:59", "12:05:15"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now, err := time.Parse("15:04:05", tt.now)
			require.NoError(t, err)
			want, err := time.Parse("15:04:05", tt.want)
			require.NoError(t, err)

			assert.Equal(t, want, nextCheckTime(now, interval, delay))
		})
	}
}

type scriptedFeed struct {
	mu    sync.Mutex
	snaps []stock.Snapshot
	calls int
	err   error
}

func (f *scriptedFeed) FetchStock(ctx context.Context) (stock.Snapshot, []stock.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, nil, f.err
	}
	snap := f.snaps[0]
	if len(f.snaps) > 1 {
		f.snaps = f.snaps[1:]
	}
	rows := make([]stock.Row, 0, len(snap))
	for name, qty := range snap {
		rows = append(rows, stock.Row{DisplayName: name, Multiplier: qty, Type: "seeds"})
	}
	return snap, rows, nil
}

type countingSender struct {
	mu   sync.Mutex
	sent int
}

func (s *countingSender) SendMarkdown(ctx context.Context, chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent++
	return nil
}

type emptyDirectory struct{}

func (emptyDirectory) ListSubscribers(ctx context.Context, item string) ([]int64, error) {
	return nil, nil
}
func (emptyDirectory) ListUserIDs(ctx context.Context) ([]int64, error) { return nil, nil }
func (emptyDirectory) PurgeUser(ctx context.Context, userID int64) error {
	return nil
}

func newTestPoller(t *testing.T, feed Feed) (*Poller, *stock.Holder, *countingSender) {
	t.Helper()

	cat, err := catalog.Default()
	require.NoError(t, err)

	cfg := config.NotifyConfig{
		ChannelCooldown: 300 * time.Second,
		FanoutCooldown:  180 * time.Second,
		UserCooldown:    180 * time.Second,
		BatchSize:       10,
		SweepAge:        600 * time.Second,
		MaxEntries:      100,
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sender := &countingSender{}
	th := notify.NewThrottle(cfg)
	n := notify.NewNotifier(cfg, 555, cat.WatchList(), sender, emptyDirectory{}, th,
		stock.NewFormatter(cat, time.UTC), logger)

	holder := &stock.Holder{}
	return New(feed, holder, n, th, 5*time.Minute, 15*time.Second, "@test_bot", logger), holder, sender
}

func TestCheckUpdatesHolderAndNotifies(t *testing.T) {
	feed := &scriptedFeed{snaps: []stock.Snapshot{{"Mr Carrot": 2}}}
	p, holder, sender := newTestPoller(t, feed)

	p.check(context.Background())

	snap, rows := holder.Current()
	assert.Equal(t, 2, snap.Quantity("Mr Carrot"))
	assert.Len(t, rows, 1)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.Equal(t, 1, sender.sent)
}

func TestCheckKeepsLastSnapshotOnFetchFailure(t *testing.T) {
	feed := &scriptedFeed{snaps: []stock.Snapshot{{"Cactus": 1}}}
	p, holder, _ := newTestPoller(t, feed)

	p.check(context.Background())
	feed.mu.Lock()
	feed.err = errors.New("feed down")
	feed.mu.Unlock()
	p.check(context.Background())

	snap, _ := holder.Current()
	assert.Equal(t, 1, snap.Quantity("Cactus"))
}

func TestStatusReflectsRunState(t *testing.T) {
	feed := &scriptedFeed{snaps: []stock.Snapshot{{}}}
	p, _, _ := newTestPoller(t, feed)

	st := p.Status()
	assert.Equal(t, "@test_bot", st.BotName)
	assert.False(t, st.Running)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	assert.Eventually(t, func() bool { return p.Status().Running }, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return !p.Status().NextCheck.IsZero() }, time.Second, 10*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	assert.False(t, p.Status().Running)
}

func TestCheckIsSingleFlight(t *testing.T) {
	feed := &scriptedFeed{snaps: []stock.Snapshot{{}}}
	p, _, _ := newTestPoller(t, feed)

	// Simulate a check still in flight.
	require.True(t, p.checking.CompareAndSwap(false, true))
	p.check(context.Background())
	p.checking.Store(false)

	feed.mu.Lock()
	defer feed.mu.Unlock()
	assert.Equal(t, 0, feed.calls)
}
