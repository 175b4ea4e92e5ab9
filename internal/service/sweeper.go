package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/domain"
	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/infrastructure/logger"
	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/port"
)

// OrphanSweeper fails Pending jobs that never reached the vendor, which
// happens when the process dies between creating a job and submitting it.
type OrphanSweeper struct {
	store port.JobStore
	after time.Duration
	spec  string
	cron  *cron.Cron
	now   func() time.Time
}

func NewOrphanSweeper(store port.JobStore, after time.Duration, spec string) *OrphanSweeper {
	return &OrphanSweeper{
		store: store,
		after: after,
		spec:  spec,
		cron:  cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Start schedules Sweep on the cron spec.
func (s *OrphanSweeper) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		if _, err := s.Sweep(ctx); err != nil {
			logger.Error.Printf("orphan sweep: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule orphan sweep %q: %w", s.spec, err)
	}
	s.cron.Start()
	logger.Info.Printf("orphan sweeper scheduled (%s, after %s)", s.spec, s.after)
	return nil
}

// Stop halts the schedule and waits for a running sweep.
func (s *OrphanSweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep fails every orphaned job and returns how many it failed.
func (s *OrphanSweeper) Sweep(ctx context.Context) (int, error) {
	jobs, err := s.store.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	swept := 0
	for _, job := range jobs {
		if job.State != domain.StatePending || job.ExternalJobID != "" || job.Age(now) < s.after {
			continue
		}
		_, err := s.store.Update(ctx, job.ID, domain.Transition{
			To: domain.StateFailed,
			Error: &domain.ErrorDetail{
				Code:    domain.CodeSubmissionOrphaned,
				Message: fmt.Sprintf("not submitted within %s", s.after),
			},
		})
		if errors.Is(err, domain.ErrIllegalTransition) {
			continue
		}
		if err != nil {
			return swept, fmt.Errorf("fail orphan %s: %w", job.ID, err)
		}
		logger.Warn.Printf("orphan sweep: job %s failed, never submitted", job.ID)
		swept++
	}
	return swept, nil
}
