package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/domain"
	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/infrastructure/logger"
	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/port"
)

// MaxListLimit caps List.
const MaxListLimit = 200

// Orchestrator is the entry point used by the API: it validates
// submissions, creates jobs and hands them to the gateway and the poller.
type Orchestrator struct {
	store       port.JobStore
	gateway     port.TranslationGateway
	scheduler   port.PollScheduler
	callTimeout time.Duration
	now         func() time.Time
}

type OrchestratorOption func(*Orchestrator)

func WithOrchestratorClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = now
	}
}

func WithCallTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.callTimeout = d
	}
}

func NewOrchestrator(store port.JobStore, gateway port.TranslationGateway, scheduler port.PollScheduler, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		store:       store,
		gateway:     gateway,
		scheduler:   scheduler,
		callTimeout: 20 * time.Second,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SubmitTranslation validates the request, persists a Pending job and submits
// it. A failed submission leaves the job Failed and returns it together with
// an error wrapping domain.ErrSubmissionFailed.
func (o *Orchestrator) SubmitTranslation(ctx context.Context, sourceReference string, outputs []domain.OutputFormat, requestedBy string) (*domain.TranslationJob, error) {
	if err := domain.ValidateSourceReference(sourceReference); err != nil {
		return nil, err
	}
	outputs = domain.NormalizeOutputs(outputs)
	if err := domain.ValidateOutputs(outputs); err != nil {
		return nil, err
	}

	job := domain.NewTranslationJob(sourceReference, outputs, requestedBy, o.now())
	return o.submit(ctx, job)
}

func (o *Orchestrator) submit(ctx context.Context, job *domain.TranslationJob) (*domain.TranslationJob, error) {
	if _, err := o.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	logger.Info.Printf("job %s created for %s (%d outputs)", job.ID, logger.SanitizeForLog(job.SourceReference), len(job.RequestedOutputs))

	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	externalID, err := o.gateway.Submit(callCtx, job.SourceReference, job.RequestedOutputs)
	cancel()
	if err != nil {
		code := domain.CodeSubmitFailed
		if errors.Is(err, domain.ErrPermanentGateway) {
			code = domain.CodeGatewayRejected
		}
		logger.Error.Printf("job %s: submit failed: %v", job.ID, err)
		failed, uerr := o.store.Update(ctx, job.ID, domain.Transition{
			To:    domain.StateFailed,
			Error: &domain.ErrorDetail{Code: code, Message: err.Error()},
		})
		if uerr != nil {
			return nil, fmt.Errorf("record submit failure for job %s: %w", job.ID, uerr)
		}
		return failed, fmt.Errorf("%w: %w", domain.ErrSubmissionFailed, err)
	}

	started, err := o.store.Update(ctx, job.ID, domain.Transition{To: domain.StateInProgress, ExternalJobID: externalID})
	if errors.Is(err, domain.ErrIllegalTransition) && started != nil {
		// Cancelled while the submit was in flight.
		logger.Info.Printf("job %s was %s during submit, cancelling vendor job %s", job.ID, started.State, logger.SanitizeForLog(externalID))
		o.cancelVendor(ctx, job.ID, externalID)
		return started, nil
	}
	if err != nil {
		return nil, fmt.Errorf("start job %s: %w", job.ID, err)
	}
	o.scheduler.Schedule(job.ID)
	logger.Info.Printf("job %s submitted as %s", job.ID, logger.SanitizeForLog(externalID))
	return started, nil
}

func (o *Orchestrator) Get(ctx context.Context, id string) (*domain.TranslationJob, error) {
	return o.store.Get(ctx, id)
}

// List returns the most recent jobs, newest first.
func (o *Orchestrator) List(ctx context.Context, limit int) ([]*domain.TranslationJob, error) {
	if limit <= 0 {
		limit = 50
	}
	limit = min(limit, MaxListLimit)
	return o.store.ListRecent(ctx, limit)
}

// Cancel moves an active job to Cancelled and then asks the vendor to stop.
// The vendor call is best effort; its failure is logged and ignored.
func (o *Orchestrator) Cancel(ctx context.Context, id string) (*domain.TranslationJob, error) {
	job, err := o.store.Update(ctx, id, domain.Transition{To: domain.StateCancelled})
	if err != nil {
		return job, err
	}
	logger.Info.Printf("job %s cancelled", id)

	if job.ExternalJobID != "" {
		o.cancelVendor(ctx, id, job.ExternalJobID)
	}
	return job, nil
}

// cancelVendor asks the vendor to stop externalID. Failures are logged only.
func (o *Orchestrator) cancelVendor(ctx context.Context, id, externalID string) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.callTimeout)
	defer cancel()
	if err := o.gateway.Cancel(callCtx, externalID); err != nil {
		logger.Warn.Printf("job %s: vendor cancel failed: %v", id, err)
	}
}

// Retry resubmits a Failed or TimedOut job as a brand-new job. The original
// record is left untouched.
func (o *Orchestrator) Retry(ctx context.Context, id, requestedBy string) (*domain.TranslationJob, error) {
	old, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !old.State.Retryable() {
		return nil, fmt.Errorf("%w: job %s is %s, only failed or timed out jobs can be retried", domain.ErrIllegalTransition, id, old.State)
	}

	job := domain.NewTranslationJob(old.SourceReference, old.RequestedOutputs, requestedBy, o.now())
	job.RetryOf = old.ID
	logger.Info.Printf("job %s retries %s", job.ID, old.ID)
	return o.submit(ctx, job)
}
