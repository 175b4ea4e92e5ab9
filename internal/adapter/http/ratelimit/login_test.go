package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLimiter(maxAttempts int, window, block time.Duration) (*LoginRateLimiter, *testClock) {
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return newLoginRateLimiter(maxAttempts, window, block, clock.Now), clock
}

func TestLoginRateLimiter_Check_FirstAttempt(t *testing.T) {
	limiter, _ := newTestLimiter(3, time.Minute, 5*time.Minute)

	allowed, duration := limiter.Check("client1")

	assert.True(t, allowed)
	assert.Equal(t, time.Duration(0), duration)
}

func TestLoginRateLimiter_Check_SubsequentAttempts(t *testing.T) {
	limiter, _ := newTestLimiter(5, time.Minute, 5*time.Minute)

	for range 5 {
		allowed, _ := limiter.Check("client1")
		assert.True(t, allowed)
	}
}

func TestLoginRateLimiter_Check_BlocksAfterMaxAttempts(t *testing.T) {
	limiter, _ := newTestLimiter(3, time.Minute, 5*time.Minute)

	for range 3 {
		limiter.Check("client1")
	}

	allowed, duration := limiter.Check("client1")

	assert.False(t, allowed)
	assert.Equal(t, 5*time.Minute, duration)
}

func TestLoginRateLimiter_Check_RemainingBlockDuration(t *testing.T) {
	limiter, clock := newTestLimiter(2, time.Minute, 10*time.Minute)

	for range 3 {
		limiter.Check("client1")
	}
	clock.Advance(time.Minute)

	allowed, remaining := limiter.Check("client1")

	assert.False(t, allowed)
	assert.Equal(t, 9*time.Minute, remaining)
}

func TestLoginRateLimiter_Check_ResetsAfterWindow(t *testing.T) {
	limiter, clock := newTestLimiter(3, time.Minute, 5*time.Minute)

	for range 3 {
		limiter.Check("client1")
	}
	clock.Advance(2 * time.Minute)

	allowed, _ := limiter.Check("client1")

	assert.True(t, allowed)
}

func TestLoginRateLimiter_Check_BlockExpires(t *testing.T) {
	limiter, clock := newTestLimiter(2, 10*time.Minute, time.Minute)

	for range 3 {
		limiter.Check("client1")
	}
	clock.Advance(11 * time.Minute)

	allowed, _ := limiter.Check("client1")

	assert.True(t, allowed)
}

func TestLoginRateLimiter_Check_ClientsAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(3, time.Minute, 5*time.Minute)

	for range 4 {
		limiter.Check("client1")
	}

	allowed, _ := limiter.Check("client2")

	assert.True(t, allowed)
}

func TestLoginRateLimiter_Reset(t *testing.T) {
	limiter, _ := newTestLimiter(3, time.Minute, 5*time.Minute)

	for range 4 {
		limiter.Check("client1")
	}
	limiter.Reset("client1")
	limiter.Reset("nonexistent")

	allowed, _ := limiter.Check("client1")

	assert.True(t, allowed)
}

func TestLoginRateLimiter_Prune(t *testing.T) {
	limiter, clock := newTestLimiter(1, time.Minute, 10*time.Minute)

	limiter.Check("idle")
	limiter.Check("blocked")
	limiter.Check("blocked")
	clock.Advance(3 * time.Minute)
	limiter.Check("active")

	limiter.prune()

	limiter.mu.RLock()
	defer limiter.mu.RUnlock()
	assert.NotContains(t, limiter.attempts, "idle")
	assert.Contains(t, limiter.attempts, "blocked", "blocked clients are kept until the block ends")
	assert.Contains(t, limiter.attempts, "active")
}

func TestLoginRateLimiter_StopIsIdempotent(t *testing.T) {
	limiter := NewLoginRateLimiter(5, time.Minute, time.Minute)

	limiter.Stop()
	limiter.Stop()
}

func TestLoginRateLimiter_ConcurrentAccess(t *testing.T) {
	limiter, _ := newTestLimiter(100, time.Minute, 5*time.Minute)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				limiter.Check("concurrent-client")
			}
		}()
	}
	wg.Wait()

	limiter.mu.RLock()
	record, exists := limiter.attempts["concurrent-client"]
	limiter.mu.RUnlock()

	require.True(t, exists)
	assert.Equal(t, 100, record.Count)
}
