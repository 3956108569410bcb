package model

import (
	"time"
)

// PromiseStatus represents the current status of a promise
type PromiseStatus string

const (
	PromiseStatusWaiting    PromiseStatus = "waiting"
	PromiseStatusPending    PromiseStatus = "pending"
	PromiseStatusInProgress PromiseStatus = "in_progress"
	PromiseStatusCompleted  PromiseStatus = "completed"
	PromiseStatusFailed     PromiseStatus = "failed"
	PromiseStatusCancelled  PromiseStatus = "cancelled"
)

// IsTerminal reports whether the status is a final state
func (s PromiseStatus) IsTerminal() bool {
	switch s {
	case PromiseStatusCompleted, PromiseStatusFailed, PromiseStatusCancelled:
		return true
	}
	return false
}

// Promise represents a unit of deferred, possibly dependent work
type Promise struct {
	ID           string            `json:"id"`
	Description  string            `json:"description"`
	TaskType     string            `json:"task_type"`
	Status       PromiseStatus     `json:"status"`
	Priority     int               `json:"priority"`
	Dependencies []string          `json:"dependencies,omitempty"`
	RetryCount   int               `json:"retry_count"`
	MaxRetries   int               `json:"max_retries"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	OriginRef    string            `json:"origin_ref,omitempty"`

	// Timing fields
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`

	// Terminal outcome
	ResultSummary string `json:"result_summary,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

// PromiseResult represents the outcome of one executor invocation
type PromiseResult struct {
	PromiseID   string        `json:"promise_id"`
	Status      PromiseStatus `json:"status"`
	Summary     string        `json:"summary,omitempty"`
	Error       string        `json:"error,omitempty"`
	CompletedAt time.Time     `json:"completed_at"`
}

// ExecutionAttempt is an append-only audit record of one execution attempt
type ExecutionAttempt struct {
	PromiseID     string        `json:"promise_id"`
	AttemptNumber int           `json:"attempt_number"`
	StartedAt     time.Time     `json:"started_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	Status        PromiseStatus `json:"status"`
	Output        string        `json:"output,omitempty"`
	ErrorDetail   string        `json:"error_detail,omitempty"`
}
