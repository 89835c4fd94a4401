package monitor

import (
	"errors"
	"fmt"
	"net"

	"github.com/rotisserie/eris"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = eris.New("record not found")

// ErrValidation marks malformed requests. Validation errors are returned
// to the caller synchronously and are never retried.
var ErrValidation = eris.New("validation error")

// Validationf builds a field-level validation error.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// TransientError wraps an error that is safe to retry (e.g. 429, 5xx,
// network timeout from the scraping or LLM provider).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as retryable with an optional HTTP status code.
func Transient(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// IsTransient reports whether the error (or any error in its chain) is a
// TransientError or a network timeout.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// PersistenceError marks a storage write failure. At the task boundary it
// converts into a whole-batch failed transition rather than propagating.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Persistence wraps a storage failure with the failing operation name.
func Persistence(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}
