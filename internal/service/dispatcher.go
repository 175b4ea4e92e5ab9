package service

import (
	"sync"

	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/domain"
	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/port"
)

// AllJobs subscribes to every job.
const AllJobs = ""

// Notification is a hint that a job changed. It carries no result data;
// receivers re-fetch the job to learn its current state.
type Notification struct {
	JobID           string       `json:"jobId"`
	State           domain.State `json:"state"`
	ProgressPercent int          `json:"progressPercent"`
	Version         int64        `json:"version"`
}

func NotificationFor(job *domain.TranslationJob) Notification {
	return Notification{
		JobID:           job.ID,
		State:           job.State,
		ProgressPercent: job.ProgressPercent,
		Version:         job.Version,
	}
}

// Dispatcher fans job updates out to subscribers. Publishing never blocks:
// each subscription has a bounded queue that drops its oldest entry on overflow.
type Dispatcher struct {
	mu        sync.RWMutex
	subs      map[string]map[*Subscription]struct{}
	queueSize int
}

func NewDispatcher(queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Dispatcher{
		subs:      make(map[string]map[*Subscription]struct{}),
		queueSize: queueSize,
	}
}

type Subscription struct {
	jobID string
	d     *Dispatcher

	mu      sync.Mutex
	ch      chan Notification
	closed  bool
	dropped int
}

// C delivers notifications until the subscription is closed.
func (s *Subscription) C() <-chan Notification {
	return s.ch
}

// Dropped reports how many notifications were discarded on overflow.
func (s *Subscription) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Subscription) Close() {
	s.d.remove(s)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (s *Subscription) deliver(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- n:
			return
		default:
		}
		select {
		case <-s.ch:
			s.dropped++
		default:
		}
	}
}

// Subscribe registers interest in jobID, or in every job with AllJobs.
func (d *Dispatcher) Subscribe(jobID string) *Subscription {
	s := &Subscription{
		jobID: jobID,
		d:     d,
		ch:    make(chan Notification, d.queueSize),
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.subs[jobID] == nil {
		d.subs[jobID] = make(map[*Subscription]struct{})
	}
	d.subs[jobID][s] = struct{}{}
	return s
}

func (d *Dispatcher) remove(s *Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.subs[s.jobID], s)
	if len(d.subs[s.jobID]) == 0 {
		delete(d.subs, s.jobID)
	}
}

// OnJobUpdated is called by the job store after every visible change.
func (d *Dispatcher) OnJobUpdated(job *domain.TranslationJob) {
	n := NotificationFor(job)

	d.mu.RLock()
	defer d.mu.RUnlock()
	for s := range d.subs[job.ID] {
		s.deliver(n)
	}
	for s := range d.subs[AllJobs] {
		s.deliver(n)
	}
}

// SubscriberCount is the number of open subscriptions.
func (d *Dispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, set := range d.subs {
		n += len(set)
	}
	return n
}

// Close ends every subscription.
func (d *Dispatcher) Close() {
	d.mu.RLock()
	all := make([]*Subscription, 0)
	for _, set := range d.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	d.mu.RUnlock()

	for _, s := range all {
		s.Close()
	}
}

var _ port.JobObserver = (*Dispatcher)(nil)
