package service

import (
	"sync"
	"time"
)

type lease struct {
	token     uint64
	expiresAt time.Time
}

// LeaseTable hands out short-lived per-job claims. A claim that is never
// released expires after ttl so a lost worker cannot block a job forever.
type LeaseTable struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	next   uint64
	leases map[string]lease
}

func NewLeaseTable(ttl time.Duration, now func() time.Time) *LeaseTable {
	if now == nil {
		now = time.Now
	}
	return &LeaseTable{
		ttl:    ttl,
		now:    now,
		leases: make(map[string]lease),
	}
}

// TryAcquire claims jobID unless a live lease exists.
func (l *LeaseTable) TryAcquire(jobID string) (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.leases[jobID]; ok && now.Before(cur.expiresAt) {
		return 0, false
	}
	l.next++
	l.leases[jobID] = lease{token: l.next, expiresAt: now.Add(l.ttl)}
	return l.next, true
}

// Release drops the lease if token still owns it. A holder whose lease
// expired and was taken over cannot release the new owner's claim.
func (l *LeaseTable) Release(jobID string, token uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cur, ok := l.leases[jobID]; ok && cur.token == token {
		delete(l.leases, jobID)
	}
}

func (l *LeaseTable) Held(jobID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.leases[jobID]
	return ok && l.now().Before(cur.expiresAt)
}
