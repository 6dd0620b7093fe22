package models

import "time"

// TaskState represents the current state of an orchestration task.
type TaskState string

const (
	// TaskStateQueued indicates the task has been accepted but not picked up.
	TaskStateQueued TaskState = "queued"
	// TaskStateRunning indicates the workflow engine is executing the task.
	TaskStateRunning TaskState = "running"
	// TaskStateQualityGate indicates the quality gate is evaluating artifacts.
	TaskStateQualityGate TaskState = "quality_gate"
	// TaskStateFixing indicates a failed gate is being remediated before re-running.
	TaskStateFixing TaskState = "fixing"
	// TaskStateCompleted indicates the task finished successfully.
	TaskStateCompleted TaskState = "completed"
	// TaskStateFailed indicates the task failed permanently.
	TaskStateFailed TaskState = "failed"
	// TaskStateCancelled indicates the task was cancelled externally.
	TaskStateCancelled TaskState = "cancelled"
)

// Valid returns true if the state is a known value.
func (s TaskState) Valid() bool {
	switch s {
	case TaskStateQueued, TaskStateRunning, TaskStateQualityGate, TaskStateFixing,
		TaskStateCompleted, TaskStateFailed, TaskStateCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if the state is terminal. Terminal tasks are immutable.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving from s to next is a legal state
// machine transition. Cancellation is legal from any non-terminal state.
func (s TaskState) CanTransition(next TaskState) bool {
	if s.Terminal() {
		return false
	}
	if next == TaskStateCancelled {
		return true
	}
	switch s {
	case TaskStateQueued:
		return next == TaskStateRunning
	case TaskStateRunning:
		return next == TaskStateQualityGate || next == TaskStateCompleted || next == TaskStateFailed
	case TaskStateQualityGate:
		return next == TaskStateCompleted || next == TaskStateFixing || next == TaskStateFailed
	case TaskStateFixing:
		return next == TaskStateRunning
	default:
		return false
	}
}

// Task represents one orchestration request end-to-end.
// Tasks are mutated only by the orchestrator; callers receive snapshots.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Description is the user request being orchestrated.
	Description string `json:"description"`
	// Context carries caller-supplied key/value context handed to agents.
	Context map[string]string `json:"context,omitempty"`
	// Workflow is the name of the workflow this task executes.
	Workflow string `json:"workflow"`
	// State is the current state machine position.
	State TaskState `json:"state"`
	// Priority is the caller-supplied priority hint, recorded for
	// status reporting. Higher values indicate more urgent work.
	Priority int `json:"priority,omitempty"`
	// Progress is the completion percentage (0-100), non-decreasing
	// within a single workflow pass.
	Progress int `json:"progress"`
	// CurrentStep is the workflow step currently executing, if any.
	CurrentStep string `json:"current_step,omitempty"`
	// Iteration is the number of fix iterations consumed so far.
	Iteration int `json:"iteration"`
	// MaxIterations bounds the quality gate fix loop.
	MaxIterations int `json:"max_iterations"`
	// QualityGateEnabled indicates whether the gate runs after the workflow.
	QualityGateEnabled bool `json:"quality_gate_enabled"`
	// Artifacts is the accumulated list of work products.
	Artifacts []Artifact `json:"artifacts,omitempty"`
	// CheckResults holds the most recent quality gate check outcomes.
	CheckResults []QualityCheckResult `json:"check_results,omitempty"`
	// Error contains the failure diagnostic if the task failed.
	Error string `json:"error,omitempty"`
	// CreatedAt is when the task was submitted.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the task last changed.
	UpdatedAt time.Time `json:"updated_at"`
	// CompletedAt is when the task reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the task suitable for handing to callers.
func (t *Task) Clone() *Task {
	cp := *t
	if t.Context != nil {
		cp.Context = make(map[string]string, len(t.Context))
		for k, v := range t.Context {
			cp.Context[k] = v
		}
	}
	if t.Artifacts != nil {
		cp.Artifacts = make([]Artifact, len(t.Artifacts))
		copy(cp.Artifacts, t.Artifacts)
	}
	if t.CheckResults != nil {
		cp.CheckResults = make([]QualityCheckResult, len(t.CheckResults))
		copy(cp.CheckResults, t.CheckResults)
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		cp.CompletedAt = &ts
	}
	return &cp
}

// SubmitRequest is the control-surface payload for creating a task.
type SubmitRequest struct {
	// Description is the user request to orchestrate.
	Description string `json:"description"`
	// Context carries optional key/value context for agents.
	Context map[string]string `json:"context,omitempty"`
	// Workflow names a registered workflow. If empty, WorkflowType is used
	// to build an ad hoc workflow.
	Workflow string `json:"workflow,omitempty"`
	// WorkflowType selects an ad hoc workflow shape when Workflow is empty.
	WorkflowType string `json:"workflow_type,omitempty"`
	// Priority is the scheduling priority hint for the task.
	Priority int `json:"priority,omitempty"`
	// MaxIterations overrides the workflow's fix loop bound when > 0.
	MaxIterations int `json:"max_iterations,omitempty"`
	// QualityGateEnabled overrides the workflow's gate flag when set.
	QualityGateEnabled *bool `json:"quality_gate_enabled,omitempty"`
}
