package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/forgeworks/squadron/pkg/models"
)

// SquadCatalog is the on-disk squad catalog format.
type SquadCatalog struct {
	Squads []SquadEntry `yaml:"squads"`
}

// SquadEntry defines one squad in the catalog file.
type SquadEntry struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Priority    int          `yaml:"priority"`
	AllRequired bool         `yaml:"all_required"`
	Agents      []AgentEntry `yaml:"agents"`
}

// AgentEntry defines one agent descriptor in the catalog file.
type AgentEntry struct {
	Name         string   `yaml:"name"`
	Role         string   `yaml:"role"`
	Capabilities []string `yaml:"capabilities"`
	Priority     int      `yaml:"priority"`
}

// WorkflowCatalog is the on-disk workflow catalog format.
type WorkflowCatalog struct {
	Workflows []WorkflowEntry `yaml:"workflows"`
}

// WorkflowEntry defines one workflow in the catalog file.
type WorkflowEntry struct {
	Name               string                  `yaml:"name"`
	Type               string                  `yaml:"type"`
	QualityGateEnabled bool                    `yaml:"quality_gate_enabled"`
	MaxIterations      int                     `yaml:"max_iterations"`
	Steps              []StepEntry             `yaml:"steps"`
	Gate               models.GateRequirements `yaml:"gate"`
}

// StepEntry defines one workflow step in the catalog file.
type StepEntry struct {
	Name     string   `yaml:"name"`
	Squads   []string `yaml:"squads"`
	Parallel bool     `yaml:"parallel"`
	Required bool     `yaml:"required"`
	// Timeout is a duration string (e.g. "5m"). Empty means unbounded.
	Timeout string `yaml:"timeout"`
}

// LoadSquads reads and converts a squad catalog file.
func LoadSquads(path string) ([]models.Squad, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read squad catalog: %w", err)
	}
	return ParseSquads(data)
}

// ParseSquads converts squad catalog YAML into model squads.
func ParseSquads(data []byte) ([]models.Squad, error) {
	var cat SquadCatalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse squad catalog: %w", err)
	}

	squads := make([]models.Squad, 0, len(cat.Squads))
	for _, e := range cat.Squads {
		sq := models.Squad{
			Name:        e.Name,
			Description: e.Description,
			Priority:    e.Priority,
			AllRequired: e.AllRequired,
		}
		for _, a := range e.Agents {
			sq.Agents = append(sq.Agents, models.AgentDescriptor{
				Name:         a.Name,
				Role:         a.Role,
				Squad:        e.Name,
				Capabilities: a.Capabilities,
				Priority:     a.Priority,
				Status:       "available",
			})
		}
		squads = append(squads, sq)
	}
	return squads, nil
}

// LoadWorkflows reads and converts a workflow catalog file.
func LoadWorkflows(path string) ([]models.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow catalog: %w", err)
	}
	return ParseWorkflows(data)
}

// ParseWorkflows converts workflow catalog YAML into model workflows.
func ParseWorkflows(data []byte) ([]models.Workflow, error) {
	var cat WorkflowCatalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse workflow catalog: %w", err)
	}

	workflows := make([]models.Workflow, 0, len(cat.Workflows))
	for _, e := range cat.Workflows {
		wf := models.Workflow{
			Name:               e.Name,
			Type:               e.Type,
			QualityGateEnabled: e.QualityGateEnabled,
			MaxIterations:      e.MaxIterations,
			Gate:               e.Gate,
		}
		for _, s := range e.Steps {
			step := models.WorkflowStep{
				Name:     s.Name,
				Squads:   s.Squads,
				Parallel: s.Parallel,
				Required: s.Required,
			}
			if s.Timeout != "" {
				d, err := time.ParseDuration(s.Timeout)
				if err != nil {
					return nil, fmt.Errorf("workflow %s step %s: bad timeout %q: %w", e.Name, s.Name, s.Timeout, err)
				}
				step.Timeout = d
			}
			wf.Steps = append(wf.Steps, step)
		}
		workflows = append(workflows, wf)
	}
	return workflows, nil
}
