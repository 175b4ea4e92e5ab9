package domain

import (
	"encoding/json"
	"time"
)

// StatusReport is the parsed vendor status of a translation. It is one of
// Progressing, Completed or Rejected; nothing downstream of the gateway
// inspects raw vendor payloads.
type StatusReport interface {
	isStatusReport()
}

// Progressing means the vendor is still working (or has queued the job).
type Progressing struct {
	Percent int
}

// Completed carries the vendor manifest describing the derivatives.
type Completed struct {
	Manifest json.RawMessage
}

// Rejected is a vendor-side translation failure.
type Rejected struct {
	Code    string
	Message string
}

func (Progressing) isStatusReport() {}
func (Completed) isStatusReport()   {}
func (Rejected) isStatusReport()    {}

// TransitionFor maps a report onto the job state machine.
func TransitionFor(report StatusReport, observedAt time.Time) Transition {
	switch r := report.(type) {
	case Completed:
		return Transition{To: StateSucceeded, Manifest: r.Manifest, ObservedAt: observedAt}
	case Rejected:
		code := r.Code
		if code == "" {
			code = CodeTranslationFailed
		}
		return Transition{To: StateFailed, Error: &ErrorDetail{Code: code, Message: r.Message}, ObservedAt: observedAt}
	case Progressing:
		return Transition{To: StateInProgress, ProgressPercent: r.Percent, ObservedAt: observedAt}
	}
	return Transition{To: StateInProgress, ObservedAt: observedAt}
}

// VendorEvent is a decoded, already authenticated push notification.
// OccurredAt is zero when the vendor did not send a timestamp.
type VendorEvent struct {
	ExternalJobID string
	Report        StatusReport
	OccurredAt    time.Time
}
