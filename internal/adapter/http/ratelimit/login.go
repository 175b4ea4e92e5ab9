package ratelimit

import (
	"sync"
	"time"
)

type AttemptRecord struct {
	Count        int
	LastAttempt  time.Time
	BlockedUntil time.Time
}

// LoginRateLimiter counts login attempts per client inside a sliding window
// and blocks a client for blockDuration once it exceeds maxAttempts.
type LoginRateLimiter struct {
	mu             sync.RWMutex
	attempts       map[string]*AttemptRecord
	maxAttempts    int
	windowDuration time.Duration
	blockDuration  time.Duration
	now            func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

func NewLoginRateLimiter(maxAttempts int, windowDuration, blockDuration time.Duration) *LoginRateLimiter {
	limiter := newLoginRateLimiter(maxAttempts, windowDuration, blockDuration, time.Now)
	go limiter.cleanup(time.Minute)
	return limiter
}

func newLoginRateLimiter(maxAttempts int, windowDuration, blockDuration time.Duration, now func() time.Time) *LoginRateLimiter {
	return &LoginRateLimiter{
		attempts:       make(map[string]*AttemptRecord),
		maxAttempts:    maxAttempts,
		windowDuration: windowDuration,
		blockDuration:  blockDuration,
		now:            now,
		stop:           make(chan struct{}),
	}
}

// Check records an attempt and reports whether it may proceed. When it may
// not, the second value is how long the client stays blocked.
func (r *LoginRateLimiter) Check(clientID string) (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	record, exists := r.attempts[clientID]
	if !exists {
		record = &AttemptRecord{LastAttempt: now}
		r.attempts[clientID] = record
	}

	if now.Before(record.BlockedUntil) {
		return false, record.BlockedUntil.Sub(now)
	}

	if now.Sub(record.LastAttempt) > r.windowDuration {
		record.Count = 0
	}

	record.Count++
	record.LastAttempt = now

	if record.Count > r.maxAttempts {
		record.BlockedUntil = now.Add(r.blockDuration)
		return false, r.blockDuration
	}

	return true, 0
}

func (r *LoginRateLimiter) Reset(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.attempts, clientID)
}

// Stop ends the background cleanup.
func (r *LoginRateLimiter) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *LoginRateLimiter) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.prune()
		}
	}
}

func (r *LoginRateLimiter) prune() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for clientID, record := range r.attempts {
		if now.Sub(record.LastAttempt) > r.windowDuration*2 && now.After(record.BlockedUntil) {
			delete(r.attempts, clientID)
		}
	}
}
