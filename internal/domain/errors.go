package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy for the scoring path. Validation errors surface
// immediately to the caller; model errors abort the single request without
// touching the shared fitted pipeline or dataset.
var (
	// ErrModelUnavailable means no usable fitted pipeline exists and
	// training failed. The request must be rejected, never answered with
	// a fabricated score.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrModelTraining means the pipeline is being trained right now.
	// Callers get a distinct "training in progress" status instead of
	// blocking indefinitely.
	ErrModelTraining = errors.New("model training in progress")

	// ErrNotFound is returned by lookups for missing records.
	ErrNotFound = errors.New("record not found")
)

// InvalidTransactionError reports a malformed or out-of-range input field,
// rejected before scoring.
type InvalidTransactionError struct {
	Field  string
	Reason string
}

func (e *InvalidTransactionError) Error() string {
	return fmt.Sprintf("invalid transaction: %s %s", e.Field, e.Reason)
}

// IsInvalidTransaction reports whether err is a validation error.
func IsInvalidTransaction(err error) bool {
	var ite *InvalidTransactionError
	return errors.As(err, &ite)
}
