package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/domain"
	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/infrastructure/logger"
	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/port"
)

const signaturePrefix = "sha1hash="

type Ack string

const (
	// AckApplied means the event changed the job.
	AckApplied Ack = "applied"
	// AckDuplicate means the event carried nothing new (replay, or the job
	// was already terminal).
	AckDuplicate Ack = "duplicate"
	// AckStale means a newer event had already been applied.
	AckStale Ack = "stale"
	// AckUnknownJob means no job is bound to the vendor id.
	AckUnknownJob Ack = "unknown-job"
)

type WebhookReceiver struct {
	store   port.JobStore
	decoder port.EventDecoder
	secret  []byte
	now     func() time.Time
}

func NewWebhookReceiver(store port.JobStore, decoder port.EventDecoder, secret string) *WebhookReceiver {
	return &WebhookReceiver{
		store:   store,
		decoder: decoder,
		secret:  []byte(secret),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Sign returns the signature header value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha1.New, secret)
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the signature header against body. An empty secret rejects
// everything.
func (r *WebhookReceiver) Verify(body []byte, signature string) error {
	if len(r.secret) == 0 {
		return fmt.Errorf("%w: webhook secret not configured", domain.ErrUnauthorized)
	}
	got, ok := strings.CutPrefix(strings.TrimSpace(signature), signaturePrefix)
	if !ok {
		return fmt.Errorf("%w: malformed signature", domain.ErrUnauthorized)
	}
	want := Sign(r.secret, body)[len(signaturePrefix):]
	if !hmac.Equal([]byte(strings.ToLower(got)), []byte(want)) {
		return fmt.Errorf("%w: signature mismatch", domain.ErrUnauthorized)
	}
	return nil
}

// Receive authenticates and applies one raw webhook delivery.
func (r *WebhookReceiver) Receive(ctx context.Context, body []byte, signature string) (Ack, error) {
	if err := r.Verify(body, signature); err != nil {
		logger.Warn.Printf("webhook: rejected delivery: %v", err)
		return "", err
	}
	ev, err := r.decoder.DecodeEvent(body)
	if err != nil {
		logger.Warn.Printf("webhook: %s", logger.SanitizeForLog(err.Error()))
		return "", err
	}
	return r.HandleEvent(ctx, ev)
}

// HandleEvent reconciles an authenticated event through the job store.
// Replays and late events on terminal jobs are acknowledged without error.
func (r *WebhookReceiver) HandleEvent(ctx context.Context, ev domain.VendorEvent) (Ack, error) {
	job, err := r.store.GetByExternalID(ctx, ev.ExternalJobID)
	if errors.Is(err, domain.ErrNotFound) {
		logger.Warn.Printf("webhook: no job for vendor id %s", logger.SanitizeForLog(ev.ExternalJobID))
		return AckUnknownJob, nil
	}
	if err != nil {
		return "", err
	}

	// A vendor clock running ahead must not make our own polls look stale.
	now := r.now()
	observed := ev.OccurredAt
	if observed.IsZero() || observed.After(now) {
		observed = now
	}

	before := job.Version
	updated, err := r.store.Update(ctx, job.ID, domain.TransitionFor(ev.Report, observed))
	switch {
	case errors.Is(err, domain.ErrIllegalTransition):
		state := job.State
		if updated != nil {
			state = updated.State
		}
		logger.Debug.Printf("webhook: job %s already %s, event ignored", job.ID, state)
		return AckDuplicate, nil
	case errors.Is(err, domain.ErrStaleUpdate):
		logger.Debug.Printf("webhook: stale event for job %s", job.ID)
		return AckStale, nil
	case err != nil:
		return "", err
	}

	if updated.State != job.State || updated.ProgressPercent != job.ProgressPercent {
		logger.Info.Printf("webhook: job %s %s -> %s (%d%%, v%d->v%d)", job.ID, job.State, updated.State, updated.ProgressPercent, before, updated.Version)
		return AckApplied, nil
	}
	return AckDuplicate, nil
}
