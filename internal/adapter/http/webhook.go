package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/domain"
	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/infrastructure/logger"
	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/service"
)

const (
	// SignatureHeader carries "sha1hash=<hex HMAC-SHA1 of the body>".
	SignatureHeader = "X-Adsk-Signature"
	maxWebhookBody  = 1 << 20
)

type WebhookService interface {
	Receive(ctx context.Context, body []byte, signature string) (service.Ack, error)
}

// Webhook authenticates by signature only. Anything the vendor should not
// redeliver (applied, duplicate, stale, unknown job) is answered 200.
func Webhook(receiver WebhookService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}

		ack, err := receiver.Receive(r.Context(), body, r.Header.Get(SignatureHeader))
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]string{"ack": string(ack)})
		case errors.Is(err, domain.ErrUnauthorized):
			logger.Warn.Printf("webhook rejected from %s: %v", logger.SanitizeForLog(r.RemoteAddr), err)
			writeJSONError(w, http.StatusUnauthorized, "invalid signature")
		case errors.Is(err, domain.ErrValidation):
			logger.Warn.Printf("webhook payload rejected: %v", err)
			writeJSONError(w, http.StatusBadRequest, err.Error())
		default:
			// 5xx makes the vendor redeliver.
			logger.Error.Printf("webhook: %v", err)
			writeJSONError(w, http.StatusInternalServerError, "internal error")
		}
	}
}
