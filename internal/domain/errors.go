package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientStops is returned when fewer than 2 stops are available to route.
	ErrInsufficientStops = errors.New("at least 2 stops are required")
	ErrDuplicateStop     = errors.New("stop id already present")
	ErrStopNotFound      = errors.New("stop not found")
	ErrIndexOutOfRange   = errors.New("index out of range")
)

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	ErrorKindRateLimited     ErrorKind = "rate_limited"
	ErrorKindInvalidLocation ErrorKind = "invalid_location"
	ErrorKindNetwork         ErrorKind = "network"
	ErrorKindUnknown         ErrorKind = "unknown"
)

// ProviderError is a failed call to an external distance or route provider.
// Status carries the raw provider status (HTTP code), zero when none was received.
type ProviderError struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider error kind=%s status=%d: %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("provider error kind=%s: %s", e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// AsProviderError returns err as a *ProviderError, wrapping anything else as Unknown.
func AsProviderError(err error) *ProviderError {
	if err == nil {
		return nil
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}

	return &ProviderError{Kind: ErrorKindUnknown, Message: err.Error(), Err: err}
}
