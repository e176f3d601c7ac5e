// internal/errors/errors.go
package appErrors

import "fmt"

// ValidationError means the materialization request itself is malformed:
// no steps, no targets, missing template, unknown timezone. Nothing is persisted.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Reason
}

func NewValidation(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// SchedulingError means the request was well-formed but there was nothing left
// to schedule: every step was in the past or already has an active row.
// Callers message this as "already running" rather than "misconfigured".
type SchedulingError struct {
	Reason string
}

func (e *SchedulingError) Error() string {
	return "scheduling error: " + e.Reason
}

func NewScheduling(format string, args ...interface{}) error {
	return &SchedulingError{Reason: fmt.Sprintf(format, args...)}
}

// ReviewActionError means an operator tried to retry or discard a dead letter
// entry that is no longer pending review. The entry is left untouched.
type ReviewActionError struct {
	EntryID int64
	Status  string
}

func (e *ReviewActionError) Error() string {
	return fmt.Sprintf("dead letter entry %d is %s, no further review action allowed", e.EntryID, e.Status)
}

func NewReviewAction(id int64, status string) error {
	return &ReviewActionError{EntryID: id, Status: status}
}

// TransitionError means an operator action (cancel, requeue) found the row
// in a status the transition does not apply to. No state change.
type TransitionError struct {
	MessageID int64
	Status    string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("message %d is %s, transition not allowed", e.MessageID, e.Status)
}

func NewTransition(id int64, status string) error {
	return &TransitionError{MessageID: id, Status: status}
}

// NotFoundError is a sentinel for lookups by id.
type NotFoundError struct {
	Kind string
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %d not found", e.Kind, e.ID)
}

func NewNotFound(kind string, id int64) error {
	return &NotFoundError{Kind: kind, ID: id}
}
