package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type State string

const (
	StatePending    State = "pending"
	StateInProgress State = "inprogress"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateTimedOut   State = "timedout"
	StateCancelled  State = "cancelled"
)

// ActiveStates are the states the poller keeps watching.
var ActiveStates = []State{StatePending, StateInProgress}

func (s State) IsTerminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateTimedOut, StateCancelled:
		return true
	}
	return false
}

func (s State) Valid() bool {
	switch s {
	case StatePending, StateInProgress, StateSucceeded, StateFailed, StateTimedOut, StateCancelled:
		return true
	}
	return false
}

// Retryable reports whether a job in this state may be resubmitted as a new job.
func (s State) Retryable() bool {
	return s == StateFailed || s == StateTimedOut
}

// legalTransitions lists every allowed edge. Self-edges on active states
// carry progress and bookkeeping updates without changing state.
var legalTransitions = map[State][]State{
	StatePending:    {StatePending, StateInProgress, StateFailed, StateTimedOut, StateCancelled},
	StateInProgress: {StateInProgress, StateSucceeded, StateFailed, StateTimedOut, StateCancelled},
}

func CanTransition(from, to State) bool {
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Error codes recorded in ErrorDetail.Code.
const (
	CodePollingExhausted   = "polling-exhausted"
	CodeTimedOut           = "timed-out"
	CodeGatewayRejected    = "gateway-rejected"
	CodeSubmitFailed       = "submit-failed"
	CodeTranslationFailed  = "translation-failed"
	CodeVendorTimeout      = "vendor-timeout"
	CodeSubmissionOrphaned = "submission-orphaned"
)

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type OutputFormat struct {
	Format string   `json:"format"`
	Views  []string `json:"views,omitempty"`
}

type TranslationJob struct {
	ID               string          `json:"id"`
	ExternalJobID    string          `json:"externalJobId,omitempty"`
	SourceReference  string          `json:"sourceReference"`
	RequestedOutputs []OutputFormat  `json:"requestedOutputs"`
	RequestedBy      string          `json:"requestedBy,omitempty"`
	RetryOf          string          `json:"retryOf,omitempty"`
	State            State           `json:"state"`
	ProgressPercent  int             `json:"progressPercent"`
	AttemptCount     int             `json:"attemptCount"`
	LastPolledAt     time.Time       `json:"lastPolledAt,omitzero"`
	LastEventAt      time.Time       `json:"lastEventAt,omitzero"`
	ResultManifest   json.RawMessage `json:"resultManifest,omitempty"`
	ErrorDetail      *ErrorDetail    `json:"errorDetail,omitempty"`
	Version          int64           `json:"version"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

func NewTranslationJob(sourceReference string, outputs []OutputFormat, requestedBy string, now time.Time) *TranslationJob {
	copied := make([]OutputFormat, len(outputs))
	copy(copied, outputs)
	return &TranslationJob{
		ID:               uuid.NewString(),
		SourceReference:  sourceReference,
		RequestedOutputs: copied,
		RequestedBy:      requestedBy,
		State:            StatePending,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Clone returns a deep copy safe to hand to other goroutines.
func (j *TranslationJob) Clone() *TranslationJob {
	if j == nil {
		return nil
	}
	c := *j
	c.RequestedOutputs = make([]OutputFormat, len(j.RequestedOutputs))
	for i, o := range j.RequestedOutputs {
		c.RequestedOutputs[i] = OutputFormat{Format: o.Format, Views: append([]string(nil), o.Views...)}
	}
	if j.ResultManifest != nil {
		c.ResultManifest = append(json.RawMessage(nil), j.ResultManifest...)
	}
	if j.ErrorDetail != nil {
		detail := *j.ErrorDetail
		c.ErrorDetail = &detail
	}
	return &c
}

// Age is the wall-clock time since the job was created.
func (j *TranslationJob) Age(now time.Time) time.Duration {
	return now.Sub(j.CreatedAt)
}
