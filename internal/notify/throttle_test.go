package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pvb-stock-bot/internal/config"
)

func newTestThrottle(clock *time.Time) *Throttle {
	t := NewThrottle(config.NotifyConfig{
		ChannelCooldown: 300 * time.Second,
		FanoutCooldown:  180 * time.Second,
		UserCooldown:    180 * time.Second,
		SweepAge:        600 * time.Second,
		MaxEntries:      100,
	})
	t.now = func() time.Time { return *clock }
	return t
}

func TestTryChannelCooldown(t *testing.T) {
	clock := time.Now()
	th := newTestThrottle(&clock)

	assert.True(t, th.TryChannel("Mr Carrot"))
	assert.False(t, th.TryChannel("Mr Carrot"))

	// Another item is on its own clock.
	assert.True(t, th.TryChannel("Tomatrio"))

	clock = clock.Add(299 * time.Second)
	assert.False(t, th.TryChannel("Mr Carrot"))

	clock = clock.Add(2 * time.Second)
	assert.True(t, th.TryChannel("Mr Carrot"))
}

func TestTryUserIndependentPerUser(t *testing.T) {
	clock := time.Now()
	th := newTestThrottle(&clock)

	assert.True(t, th.TryUser(1, "Mr Carrot"))
	assert.False(t, th.TryUser(1, "Mr Carrot"))

	// A different user is unaffected by user 1's cooldown.
	assert.True(t, th.TryUser(2, "Mr Carrot"))

	// Same user, different item is also unaffected.
	assert.True(t, th.TryUser(1, "Tomatrio"))
}

func TestForgetUserResetsCooldowns(t *testing.T) {
	clock := time.Now()
	th := newTestThrottle(&clock)

	assert.True(t, th.TryUser(1, "Mr Carrot"))
	assert.True(t, th.TryUser(2, "Mr Carrot"))

	th.ForgetUser(1)

	assert.True(t, th.TryUser(1, "Mr Carrot"))
	assert.False(t, th.TryUser(2, "Mr Carrot"))
}

func TestSweepDropsOnlyOldEntries(t *testing.T) {
	clock := time.Now()
	th := newTestThrottle(&clock)

	th.TryUser(1, "Mr Carrot")
	clock = clock.Add(500 * time.Second)
	th.TryUser(2, "Mr Carrot")

	clock = clock.Add(150 * time.Second)
	assert.Equal(t, 1, th.Sweep())

	// User 1's entry aged out, so the cooldown is gone.
	assert.True(t, th.TryUser(1, "Mr Carrot"))
	assert.False(t, th.TryUser(2, "Mr Carrot"))
}

func TestTryUserSweepsWhenTableFull(t *testing.T) {
	clock := time.Now()
	th := newTestThrottle(&clock)
	th.maxEntries = 10

	for i := int64(0); i < 10; i++ {
		th.TryUser(i, "Cactus")
	}

	clock = clock.Add(601 * time.Second)
	assert.True(t, th.TryUser(100, "Cactus"))

	th.mu.Lock()
	defer th.mu.Unlock()
	assert.Equal(t, 1, len(th.user))
}
