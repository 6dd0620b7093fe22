package models

import "time"

// EventKind represents the kind of progress event.
type EventKind string

const (
	// EventConnectionEstablished is sent to a new subscriber with the
	// task's current status and progress.
	EventConnectionEstablished EventKind = "connection_established"
	// EventTaskStarted indicates the workflow engine picked up the task.
	EventTaskStarted EventKind = "task_started"
	// EventAgentsWorking indicates a squad began executing a work item.
	EventAgentsWorking EventKind = "agents_working"
	// EventProgressUpdate carries a new progress percentage.
	EventProgressUpdate EventKind = "progress_update"
	// EventQualityGateRunning indicates the quality gate is evaluating.
	EventQualityGateRunning EventKind = "quality_gate_running"
	// EventTaskCompleted indicates the task finished successfully.
	EventTaskCompleted EventKind = "task_completed"
	// EventTaskFailed indicates the task failed permanently.
	EventTaskFailed EventKind = "task_failed"
	// EventTaskCancelled indicates the task was cancelled.
	EventTaskCancelled EventKind = "task_cancelled"
)

// ProgressEvent is one observable state transition of a task.
// Events are emitted, never stored; delivery is at-least-once and
// ordered per task.
type ProgressEvent struct {
	// Kind is the kind of event.
	Kind EventKind `json:"kind"`
	// TaskID is the task the event belongs to.
	TaskID string `json:"task_id"`
	// Timestamp is when the event was generated.
	Timestamp time.Time `json:"timestamp"`
	// State is the task state at emission time.
	State TaskState `json:"state,omitempty"`
	// Progress is the completion percentage at emission time.
	Progress int `json:"progress"`
	// Step is the workflow step the event relates to, if any.
	Step string `json:"step,omitempty"`
	// Squad is the squad the event relates to, if any.
	Squad string `json:"squad,omitempty"`
	// Message carries additional human-readable context.
	Message string `json:"message,omitempty"`
	// Error carries the failure diagnostic for task_failed events.
	Error string `json:"error,omitempty"`
	// Result carries the gate result for task_completed events, if the
	// gate ran.
	Result *GateResult `json:"result,omitempty"`
}
