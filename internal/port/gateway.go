package port

import (
	"context"

	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/domain"
)

// TranslationGateway speaks the vendor protocol. Errors are *domain.GatewayError
// so callers can tell transient failures from permanent rejections.
type TranslationGateway interface {
	Submit(ctx context.Context, sourceReference string, outputs []domain.OutputFormat) (externalJobID string, err error)
	FetchStatus(ctx context.Context, externalJobID string) (domain.StatusReport, error)
	Cancel(ctx context.Context, externalJobID string) error
}
