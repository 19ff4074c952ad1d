package callback

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidCallback is returned when a nil or empty callback reference is
	// passed to a dispatch operation.
	ErrInvalidCallback = errors.New("invalid callback reference")
	ErrCallbackClosed  = errors.New("callback is closed")
)

type ErrCallbackValidation struct {
	Errors []ValidationErrorDetail `json:"errors"`
}

type ValidationErrorDetail struct {
	Field string `json:"field"`
	Type  string `json:"type"`
}

func (e *ErrCallbackValidation) Error() string {
	fields := make([]string, 0, len(e.Errors))
	for _, detail := range e.Errors {
		fields = append(fields, detail.Field+":"+detail.Type)
	}
	return fmt.Sprintf("callback validation failed (%s)", strings.Join(fields, ", "))
}

func NewErrCallbackValidation(errors []ValidationErrorDetail) error {
	return &ErrCallbackValidation{Errors: errors}
}

// ErrDeliveryAttempt describes a failed attempt to reach a peer.
type ErrDeliveryAttempt struct {
	Err      error
	Provider string
	Code     string
}

var _ error = &ErrDeliveryAttempt{}

func (e *ErrDeliveryAttempt) Error() string {
	return fmt.Sprintf("failed to deliver to %s (%s): %v", e.Provider, e.Code, e.Err)
}

func (e *ErrDeliveryAttempt) Unwrap() error {
	return e.Err
}

func NewErrDeliveryAttempt(err error, provider string, code string) error {
	if code == "" {
		code = "unknown"
	}
	return &ErrDeliveryAttempt{Err: err, Provider: provider, Code: code}
}

// IsCanceled reports whether a delivery failed because its context ended
// rather than because the peer misbehaved.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
