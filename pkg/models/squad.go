package models

// AgentDescriptor is a capability reference for one unit of delegated work.
// The live LLM session is owned by the external invoker, never by the core.
type AgentDescriptor struct {
	// Name uniquely identifies the agent within its squad.
	Name string `json:"name"`
	// Role is the human-readable role (e.g. "api-designer").
	Role string `json:"role"`
	// Squad is the name of the squad this agent belongs to.
	Squad string `json:"squad"`
	// Capabilities lists the declared capabilities of the agent.
	Capabilities []string `json:"capabilities,omitempty"`
	// Priority breaks ties when agents in the same squad produce
	// artifacts with the same identifier. Higher wins.
	Priority int `json:"priority"`
	// Status is the runtime availability of the agent ("available" unless
	// the invoker reports otherwise).
	Status string `json:"status,omitempty"`
}

// Squad is a named, statically configured group of agents.
// Squads are defined at startup and read-only at runtime.
type Squad struct {
	// Name uniquely identifies the squad.
	Name string `json:"name"`
	// Description explains what the squad does.
	Description string `json:"description,omitempty"`
	// Priority breaks ties when squads compete for concurrent scheduling.
	Priority int `json:"priority"`
	// AllRequired makes any agent failure fail the whole squad call.
	// When false, the squad succeeds if at least one agent succeeds.
	AllRequired bool `json:"all_required,omitempty"`
	// Agents is the ordered list of agent descriptors in this squad.
	Agents []AgentDescriptor `json:"agents"`
}

// Agent returns the descriptor with the given name, or nil if absent.
func (s *Squad) Agent(name string) *AgentDescriptor {
	for i := range s.Agents {
		if s.Agents[i].Name == name {
			return &s.Agents[i]
		}
	}
	return nil
}

// WorkItem is one unit of work dispatched to a squad or agent.
type WorkItem struct {
	// TaskID is the orchestration task this work belongs to.
	TaskID string `json:"task_id"`
	// Step is the workflow step that produced this work item.
	Step string `json:"step"`
	// Description is the instruction handed to the agent.
	Description string `json:"description"`
	// Context carries task context plus any fix-iteration recommendations.
	Context map[string]string `json:"context,omitempty"`
}
