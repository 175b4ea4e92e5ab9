package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/domain"
	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/infrastructure/logger"
	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/port"
)

type PollerConfig struct {
	Tick           time.Duration
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	MaxAttempts    int
	Concurrency    int
	JobMaxDuration time.Duration
	CallTimeout    time.Duration
	LeaseTTL       time.Duration
}

func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Tick:           time.Second,
		BackoffBase:    2 * time.Second,
		BackoffMax:     60 * time.Second,
		MaxAttempts:    5,
		Concurrency:    4,
		JobMaxDuration: 30 * time.Minute,
		CallTimeout:    20 * time.Second,
		LeaseTTL:       30 * time.Second,
	}
}

// pollSchedule is the in-memory backoff position of one job.
type pollSchedule struct {
	nextAt   time.Time
	step     int
	state    domain.State
	progress int
}

type PollerOption func(*StatusPoller)

func WithPollerClock(now func() time.Time) PollerOption {
	return func(p *StatusPoller) {
		p.now = now
	}
}

func WithPollerBackoff(b *Backoff) PollerOption {
	return func(p *StatusPoller) {
		p.backoff = b
	}
}

// StatusPoller drives active jobs to a terminal state by polling the gateway.
// Each due job is polled by its own goroutine, bounded by a semaphore and
// guarded by a per-job lease.
type StatusPoller struct {
	store   port.JobStore
	gateway port.TranslationGateway
	cfg     PollerConfig
	backoff *Backoff
	sem     *semaphore.Weighted
	leases  *LeaseTable
	now     func() time.Time

	mu        sync.Mutex
	schedules map[string]*pollSchedule
	wg        sync.WaitGroup
}

func NewStatusPoller(store port.JobStore, gateway port.TranslationGateway, cfg PollerConfig, opts ...PollerOption) *StatusPoller {
	def := DefaultPollerConfig()
	if cfg.Tick <= 0 {
		cfg.Tick = def.Tick
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffMax < cfg.BackoffBase {
		cfg.BackoffMax = max(def.BackoffMax, cfg.BackoffBase)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.LeaseTTL <= cfg.CallTimeout {
		cfg.LeaseTTL = cfg.CallTimeout + 10*time.Second
	}

	p := &StatusPoller{
		store:     store,
		gateway:   gateway,
		cfg:       cfg,
		backoff:   NewBackoff(cfg.BackoffBase, cfg.BackoffMax, 2),
		sem:       semaphore.NewWeighted(int64(cfg.Concurrency)),
		now:       func() time.Time { return time.Now().UTC() },
		schedules: make(map[string]*pollSchedule),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.leases = NewLeaseTable(cfg.LeaseTTL, p.now)
	return p
}

// Schedule registers a freshly submitted job; its first poll happens one
// base interval from now.
func (p *StatusPoller) Schedule(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.schedules[jobID] = &pollSchedule{nextAt: p.now().Add(p.cfg.BackoffBase), state: domain.StateInProgress}
}

// Run ticks until ctx is done, then waits for in-flight polls.
func (p *StatusPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Tick)
	defer ticker.Stop()

	logger.Info.Printf("status poller started (tick=%s, concurrency=%d)", p.cfg.Tick, p.cfg.Concurrency)
	for {
		select {
		case <-ctx.Done():
			p.Wait()
			logger.Info.Printf("status poller stopped")
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Wait blocks until every poll started by Tick has finished.
func (p *StatusPoller) Wait() {
	p.wg.Wait()
}

// Tick starts a poll for every due active job. Jobs that cannot get a
// lease or a concurrency slot are left for the next tick.
func (p *StatusPoller) Tick(ctx context.Context) {
	jobs, err := p.store.ListActive(ctx)
	if err != nil {
		logger.Error.Printf("poller: list active jobs: %v", err)
		return
	}

	now := p.now()
	p.prune(jobs)

	for _, job := range jobs {
		switch {
		case p.cfg.JobMaxDuration > 0 && job.Age(now) >= p.cfg.JobMaxDuration:
			p.dispatch(ctx, job, p.expire)
		case job.ExternalJobID == "":
			// Not submitted yet; the orphan sweeper owns these.
		case p.due(job, now):
			p.dispatch(ctx, job, p.poll)
		}
	}
}

func (p *StatusPoller) prune(active []*domain.TranslationJob) {
	ids := make(map[string]struct{}, len(active))
	for _, j := range active {
		ids[j.ID] = struct{}{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for id := range p.schedules {
		if _, ok := ids[id]; !ok {
			delete(p.schedules, id)
		}
	}
}

func (p *StatusPoller) due(job *domain.TranslationJob, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.schedules[job.ID]
	if !ok {
		// Unknown after a restart: resume one base interval after the last poll.
		next := now
		if !job.LastPolledAt.IsZero() {
			next = job.LastPolledAt.Add(p.cfg.BackoffBase)
		}
		s = &pollSchedule{nextAt: next, state: job.State, progress: job.ProgressPercent}
		p.schedules[job.ID] = s
	}
	return !now.Before(s.nextAt)
}

func (p *StatusPoller) dispatch(ctx context.Context, job *domain.TranslationJob, work func(context.Context, *domain.TranslationJob)) {
	token, ok := p.leases.TryAcquire(job.ID)
	if !ok {
		return
	}
	if !p.sem.TryAcquire(1) {
		p.leases.Release(job.ID, token)
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer p.leases.Release(job.ID, token)
		work(ctx, job)
	}()
}

func (p *StatusPoller) poll(ctx context.Context, job *domain.TranslationJob) {
	// The report describes the vendor no earlier than the request went out.
	requestedAt := p.now()
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	report, err := p.gateway.FetchStatus(callCtx, job.ExternalJobID)
	cancel()
	if err != nil {
		p.handlePollError(ctx, job, err)
		return
	}

	t := domain.TransitionFor(report, requestedAt)
	t.Polled = true
	t.ResetAttempts = true
	updated, err := p.store.Update(ctx, job.ID, t)
	if err != nil {
		p.handleUpdateError(job, err)
		return
	}

	if updated.State.IsTerminal() {
		logger.Info.Printf("poller: job %s is %s", job.ID, updated.State)
		p.forget(job.ID)
		return
	}
	p.advance(updated)
}

func (p *StatusPoller) handlePollError(ctx context.Context, job *domain.TranslationJob, err error) {
	if !domain.IsTransient(err) {
		logger.Error.Printf("poller: job %s rejected by gateway: %v", job.ID, err)
		p.fail(ctx, job, domain.CodeGatewayRejected, err)
		return
	}

	if job.AttemptCount+1 > p.cfg.MaxAttempts {
		logger.Error.Printf("poller: job %s exhausted %d attempts: %v", job.ID, p.cfg.MaxAttempts, err)
		p.fail(ctx, job, domain.CodePollingExhausted, err)
		return
	}

	logger.Warn.Printf("poller: job %s attempt %d failed: %v", job.ID, job.AttemptCount+1, err)
	updated, uerr := p.store.Update(ctx, job.ID, domain.Transition{To: job.State, IncrementAttempt: true, Polled: true})
	if uerr != nil {
		p.handleUpdateError(job, uerr)
		return
	}
	p.advance(updated)
}

func (p *StatusPoller) fail(ctx context.Context, job *domain.TranslationJob, code string, cause error) {
	_, err := p.store.Update(ctx, job.ID, domain.Transition{
		To:     domain.StateFailed,
		Error:  &domain.ErrorDetail{Code: code, Message: cause.Error()},
		Polled: true,
	})
	if err != nil {
		p.handleUpdateError(job, err)
		return
	}
	p.forget(job.ID)
}

// expire forces TimedOut on a job past its wall-clock budget and asks the
// vendor to stop working on it. The vendor cancel is best effort.
func (p *StatusPoller) expire(ctx context.Context, job *domain.TranslationJob) {
	_, err := p.store.Update(ctx, job.ID, domain.Transition{
		To: domain.StateTimedOut,
		Error: &domain.ErrorDetail{
			Code:    domain.CodeTimedOut,
			Message: fmt.Sprintf("no terminal status within %s", p.cfg.JobMaxDuration),
		},
	})
	if err != nil {
		p.handleUpdateError(job, err)
		return
	}
	logger.Warn.Printf("poller: job %s timed out after %s", job.ID, p.cfg.JobMaxDuration)
	p.forget(job.ID)

	if job.ExternalJobID == "" {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()
	if err := p.gateway.Cancel(callCtx, job.ExternalJobID); err != nil {
		logger.Debug.Printf("poller: vendor cancel for job %s: %v", job.ID, err)
	}
}

// advance moves the job's next poll time. Any change in state or progress
// resets the interval to base; otherwise it grows.
func (p *StatusPoller) advance(job *domain.TranslationJob) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.schedules[job.ID]
	if !ok {
		s = &pollSchedule{}
		p.schedules[job.ID] = s
	}
	if s.state != job.State || s.progress != job.ProgressPercent {
		s.step = 0
	} else {
		s.step++
	}
	s.state = job.State
	s.progress = job.ProgressPercent
	s.nextAt = p.now().Add(p.backoff.Duration(s.step))
}

func (p *StatusPoller) forget(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.schedules, jobID)
}

func (p *StatusPoller) handleUpdateError(job *domain.TranslationJob, err error) {
	switch {
	case errors.Is(err, domain.ErrIllegalTransition), errors.Is(err, domain.ErrNotFound):
		// Finished elsewhere (webhook, cancel) while the poll was in flight.
		logger.Debug.Printf("poller: job %s no longer pollable: %v", job.ID, err)
		p.forget(job.ID)
	case errors.Is(err, domain.ErrStaleUpdate):
		logger.Debug.Printf("poller: job %s poll result superseded by a newer event", job.ID)
	default:
		logger.Error.Printf("poller: update job %s: %v", job.ID, err)
	}
}

var _ port.PollScheduler = (*StatusPoller)(nil)
