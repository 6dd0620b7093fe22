package models

import "time"

// WorkflowStep is one stage of a workflow. Steps are immutable.
type WorkflowStep struct {
	// Name identifies the step within its workflow.
	Name string `json:"name"`
	// Squads lists the squad names invoked by this step.
	Squads []string `json:"squads"`
	// Parallel invokes all squads concurrently when true; otherwise
	// squads run one at a time in declared order.
	Parallel bool `json:"parallel,omitempty"`
	// Required fails the whole workflow run if this step fails.
	Required bool `json:"required,omitempty"`
	// Timeout bounds the entire step, all squads included.
	// Zero means no step-level timeout.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Workflow is a named, reusable plan. Workflows are immutable once a
// task references them.
type Workflow struct {
	// Name uniquely identifies the workflow.
	Name string `json:"name"`
	// Type classifies the workflow (e.g. "feature", "bugfix").
	Type string `json:"type,omitempty"`
	// Steps is the ordered list of stages.
	Steps []WorkflowStep `json:"steps"`
	// QualityGateEnabled runs the quality gate after a successful run.
	QualityGateEnabled bool `json:"quality_gate_enabled"`
	// MaxIterations bounds the fix loop when the gate fails.
	MaxIterations int `json:"max_iterations"`
	// Gate holds the quality gate requirements for this workflow.
	Gate GateRequirements `json:"gate,omitempty"`
}

// SquadNames returns the union of squad names across all steps,
// preserving first-seen order.
func (w *Workflow) SquadNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, step := range w.Steps {
		for _, sq := range step.Squads {
			if !seen[sq] {
				seen[sq] = true
				names = append(names, sq)
			}
		}
	}
	return names
}

// RequiredSteps returns the names of steps marked required.
func (w *Workflow) RequiredSteps() []string {
	var names []string
	for _, step := range w.Steps {
		if step.Required {
			names = append(names, step.Name)
		}
	}
	return names
}
