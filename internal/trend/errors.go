package trend

import (
	"errors"
	"fmt"
)

// Sentinel errors for the trend query taxonomy
var (
	// ErrInvalidRequest indicates missing or malformed query parameters.
	// Never retried; surfaced to the caller immediately.
	ErrInvalidRequest = errors.New("invalid trend request")

	// ErrUnavailable indicates the history store could not be reached
	ErrUnavailable = errors.New("history store unavailable")

	// ErrInternal indicates an unexpected fault during projection or
	// aggregation; no partial result accompanies it
	ErrInternal = errors.New("internal trend failure")
)

// RequestError reports which parameter made a request invalid
type RequestError struct {
	Param  string
	Reason string
}

// Error implements the error interface
func (e *RequestError) Error() string {
	return fmt.Sprintf("invalid trend request: %s %s", e.Param, e.Reason)
}

// Is allows error comparison
func (e *RequestError) Is(target error) bool {
	return target == ErrInvalidRequest
}

// StoreError wraps a history store failure
type StoreError struct {
	Op  string
	Err error
}

// Error implements the error interface
func (e *StoreError) Error() string {
	return fmt.Sprintf("history store failed during %s: %v", e.Op, e.Err)
}

// Unwrap implements error unwrapping
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is allows error comparison
func (e *StoreError) Is(target error) bool {
	return target == ErrUnavailable
}
