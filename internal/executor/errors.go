package executor

import "errors"

var (
	// ErrUnknownTaskType is returned when no executor is registered for a task type
	ErrUnknownTaskType = errors.New("unknown task type")

	// ErrExecutionTimeout is returned when an executor exceeds its deadline
	ErrExecutionTimeout = errors.New("execution timed out")
)
