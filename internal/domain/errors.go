package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrValidation        = errors.New("validation failed")
	ErrIllegalTransition = errors.New("illegal state transition")
	ErrStaleUpdate       = errors.New("stale update")
	ErrConflict          = errors.New("concurrent update conflict")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrTransientGateway  = errors.New("transient gateway error")
	ErrPermanentGateway  = errors.New("permanent gateway error")
	ErrSubmissionFailed  = errors.New("translation submission failed")
)

// ValidationError describes a rejected submission field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// GatewayError is returned by the translation gateway. Transient errors
// (network, 5xx, 429) may be retried; permanent ones are semantic rejections.
type GatewayError struct {
	Op         string
	StatusCode int
	Code       string
	Transient  bool
	Err        error
}

func (e *GatewayError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	msg := fmt.Sprintf("gateway %s (%s", e.Op, kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(", status %d", e.StatusCode)
	}
	msg += ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func (e *GatewayError) Is(target error) bool {
	switch target {
	case ErrTransientGateway:
		return e.Transient
	case ErrPermanentGateway:
		return !e.Transient
	}
	return false
}

// IsTransient reports whether err should be retried. Errors that are not
// GatewayErrors (context deadlines, dropped connections) count as transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Transient
	}
	return true
}
