package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Transition is a requested mutation of a TranslationJob. Every writer
// (orchestrator, poller, webhook receiver, sweeper) expresses its change as a
// Transition and hands it to JobStore.Update.
//
// ObservedAt is the time the reported status was true at the source. A zero
// ObservedAt marks a bookkeeping update (attempt counters, poll timestamps)
// that carries no vendor report and is therefore never considered stale.
type Transition struct {
	To               State
	ProgressPercent  int
	ExternalJobID    string
	Manifest         json.RawMessage
	Error            *ErrorDetail
	ObservedAt       time.Time
	Polled           bool
	IncrementAttempt bool
	ResetAttempts    bool
}

// Apply validates t against the state machine and mutates j in place.
// It reports whether the change is visible to clients (state or progress moved).
func (j *TranslationJob) Apply(t Transition, now time.Time) (bool, error) {
	if j.State.IsTerminal() {
		return false, fmt.Errorf("%w: job %s is %s", ErrIllegalTransition, j.ID, j.State)
	}
	if !t.To.Valid() || !CanTransition(j.State, t.To) {
		return false, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, j.State, t.To)
	}
	// Vendor terminal states never revert, so a terminal report is applied
	// even when its timestamp is older than the last progress report.
	if !t.To.IsTerminal() && !t.ObservedAt.IsZero() && t.ObservedAt.Before(j.LastEventAt) {
		return false, fmt.Errorf("%w: observed %s before last event %s", ErrStaleUpdate,
			t.ObservedAt.Format(time.RFC3339Nano), j.LastEventAt.Format(time.RFC3339Nano))
	}

	changed := false
	if t.To != j.State {
		j.State = t.To
		changed = true
	}

	switch t.To {
	case StateInProgress:
		progress := clampPercent(t.ProgressPercent)
		if progress > j.ProgressPercent {
			j.ProgressPercent = progress
			changed = true
		}
	case StateSucceeded:
		j.ProgressPercent = 100
		j.ResultManifest = t.Manifest
		j.ErrorDetail = nil
	case StateFailed, StateTimedOut:
		detail := t.Error
		if detail == nil {
			detail = &ErrorDetail{Code: defaultErrorCode(t.To)}
		}
		j.ErrorDetail = detail
	}

	if t.ExternalJobID != "" && j.ExternalJobID == "" {
		j.ExternalJobID = t.ExternalJobID
	}
	switch {
	case t.ResetAttempts:
		j.AttemptCount = 0
	case t.IncrementAttempt:
		j.AttemptCount++
	}
	if t.Polled {
		j.LastPolledAt = now
	}
	if t.ObservedAt.After(j.LastEventAt) {
		j.LastEventAt = t.ObservedAt
	}
	j.UpdatedAt = now
	j.Version++
	return changed, nil
}

func defaultErrorCode(s State) string {
	if s == StateTimedOut {
		return CodeTimedOut
	}
	return CodeTranslationFailed
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
