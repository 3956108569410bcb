package store

import "errors"

var (
	// ErrPromiseNotFound is returned when a promise is not found
	ErrPromiseNotFound = errors.New("promise not found")

	// ErrCircularDependency is returned when a create would close a dependency cycle
	ErrCircularDependency = errors.New("circular dependency detected")
)
