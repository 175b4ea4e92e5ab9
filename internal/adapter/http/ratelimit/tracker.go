package ratelimit

import (
	"sync"
	"time"
)

// LoginAttemptTracker counts consecutive failed logins per client so the
// login handler can slow down repeated guesses.
type LoginAttemptTracker struct {
	mu       sync.Mutex
	attempts map[string]int
	delay    func(failures int) time.Duration
}

// NewLoginAttemptTracker uses delay to turn a failure count into a pause.
func NewLoginAttemptTracker(delay func(failures int) time.Duration) *LoginAttemptTracker {
	return &LoginAttemptTracker{
		attempts: make(map[string]int),
		delay:    delay,
	}
}

func (t *LoginAttemptTracker) GetFailedAttempts(clientID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts[clientID]
}

// RecordFailure counts a failure and returns how long to pause before answering.
func (t *LoginAttemptTracker) RecordFailure(clientID string) time.Duration {
	t.mu.Lock()
	t.attempts[clientID]++
	n := t.attempts[clientID]
	t.mu.Unlock()

	if t.delay == nil {
		return 0
	}
	return t.delay(n)
}

func (t *LoginAttemptTracker) RecordSuccess(clientID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.attempts, clientID)
}
