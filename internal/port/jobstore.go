package port

import (
	"context"

	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/domain"
)

// JobStore persists translation jobs. Update is the only mutation path after
// Create; it validates the transition atomically against the stored state.
type JobStore interface {
	Create(ctx context.Context, job *domain.TranslationJob) (string, error)
	Get(ctx context.Context, id string) (*domain.TranslationJob, error)
	GetByExternalID(ctx context.Context, externalJobID string) (*domain.TranslationJob, error)
	Update(ctx context.Context, id string, t domain.Transition) (*domain.TranslationJob, error)
	ListActive(ctx context.Context) ([]*domain.TranslationJob, error)
	ListRecent(ctx context.Context, limit int) ([]*domain.TranslationJob, error)
}

// JobObserver is notified after every update that changed a job's state or progress.
type JobObserver interface {
	OnJobUpdated(job *domain.TranslationJob)
}
