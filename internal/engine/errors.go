package engine

import "errors"

var (
	// ErrValidation is returned when a creation request is malformed
	ErrValidation = errors.New("invalid promise request")

	// ErrNotCancellable is returned when a promise cannot be cancelled in its current state
	ErrNotCancellable = errors.New("promise not cancellable in current state")
)
