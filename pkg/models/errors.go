package models

import "errors"

// Control-surface errors. These are returned synchronously and never
// leave a task in an inconsistent state.
var (
	// ErrNotFound indicates the referenced task is unknown.
	ErrNotFound = errors.New("task not found")
	// ErrInvalidState indicates the operation is illegal in the task's
	// current state (e.g. cancelling a terminal task).
	ErrInvalidState = errors.New("invalid task state for operation")
	// ErrInvalidWorkflow indicates the named workflow is not registered.
	ErrInvalidWorkflow = errors.New("unknown workflow")
	// ErrInvalidRequest indicates a malformed submission.
	ErrInvalidRequest = errors.New("invalid request")
)
