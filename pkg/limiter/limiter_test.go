package limiter_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Mindburn-Labs/helix/core/pkg/limiter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(limit int, window time.Duration) (*limiter.SlidingWindow, *fakeClock) {
	clock := newFakeClock()
	l := limiter.New(limiter.NewMemoryStore(), limiter.Policy{Limit: limit, Window: window}).
		WithClock(clock.Now)
	return l, clock
}

func TestAllowWithinLimit(t *testing.T) {
	l, _ := newTestLimiter(3, time.Minute)
	ctx := context.Background()
	key := limiter.Key("actor-1", "mint")

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, res.OK)
		assert.Equal(t, 3, res.Limit)
		assert.Equal(t, 2-i, res.Remaining)
		assert.Equal(t, int64(60_000), res.WindowMs)
	}

	res, err := l.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Zero(t, res.Remaining)
	assert.Equal(t, int64(60_000), res.ResetMs, "reset counts from the oldest surviving attempt")
}

func TestWindowSlides(t *testing.T) {
	l, clock := newTestLimiter(2, time.Minute)
	ctx := context.Background()
	key := limiter.Key("actor-1", "verify")

	for i := 0; i < 2; i++ {
		res, err := l.Allow(ctx, key)
		require.NoError(t, err)
		require.True(t, res.OK)
	}

	blocked, err := l.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, blocked.OK)

	clock.Advance(61 * time.Second)

	recovered, err := l.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, recovered.OK, "attempts age out after the window passes")
	assert.Equal(t, 1, recovered.Remaining)
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)
	ctx := context.Background()

	first, err := l.Allow(ctx, limiter.Key("actor-1", "mint"))
	require.NoError(t, err)
	assert.True(t, first.OK)

	other, err := l.Allow(ctx, limiter.Key("actor-2", "mint"))
	require.NoError(t, err)
	assert.True(t, other.OK, "a saturated actor never affects another key")

	action, err := l.Allow(ctx, limiter.Key("actor-1", "dispute"))
	require.NoError(t, err)
	assert.True(t, action.OK)
}

func TestConcurrentAllowNeverExceedsLimit(t *testing.T) {
	const limit = 16
	l, _ := newTestLimiter(limit, time.Minute)
	ctx := context.Background()
	key := limiter.Key("actor-1", "mint")

	var wg sync.WaitGroup
	granted := make(chan bool, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Allow(ctx, key)
			assert.NoError(t, err)
			granted <- res.OK
		}()
	}
	wg.Wait()
	close(granted)

	allowed := 0
	for ok := range granted {
		if ok {
			allowed++
		}
	}
	assert.Equal(t, limit, allowed)
}
