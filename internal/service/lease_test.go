package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLeaseTable_Exclusive(t *testing.T) {
	clock := newFakeClock()
	l := NewLeaseTable(10*time.Second, clock.Now)

	token, ok := l.TryAcquire("job-1")
	assert.True(t, ok)
	assert.True(t, l.Held("job-1"))

	_, ok = l.TryAcquire("job-1")
	assert.False(t, ok)

	_, ok = l.TryAcquire("job-2")
	assert.True(t, ok, "leases are per job")

	l.Release("job-1", token)
	assert.False(t, l.Held("job-1"))
	_, ok = l.TryAcquire("job-1")
	assert.True(t, ok)
}

func TestLeaseTable_ExpiredLeaseCanBeTakenOver(t *testing.T) {
	clock := newFakeClock()
	l := NewLeaseTable(10*time.Second, clock.Now)

	stale, ok := l.TryAcquire("job-1")
	assert.True(t, ok)

	clock.Advance(11 * time.Second)
	fresh, ok := l.TryAcquire("job-1")
	assert.True(t, ok)
	assert.NotEqual(t, stale, fresh)

	l.Release("job-1", stale)
	assert.True(t, l.Held("job-1"), "a stale holder cannot release the new lease")

	l.Release("job-1", fresh)
	assert.False(t, l.Held("job-1"))
}

func TestLeaseTable_ConcurrentAcquireGrantsOne(t *testing.T) {
	l := NewLeaseTable(time.Minute, nil)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := l.TryAcquire("job-1"); ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, granted)
}
