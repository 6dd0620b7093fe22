// Package registry holds the immutable squad and workflow catalogs.
// The registry is constructed once at startup from configuration and
// validated eagerly, so unknown squads or check kinds fail at load time
// rather than mid-run. After construction it is read-only and requires
// no locking.
package registry

import (
	"fmt"

	"github.com/forgeworks/squadron/internal/gate"
	"github.com/forgeworks/squadron/pkg/models"
)

// Registry is the static catalog of squads and workflows.
type Registry struct {
	squads        map[string]models.Squad
	squadOrder    []string
	workflows     map[string]models.Workflow
	workflowOrder []string
}

// New builds and validates a registry. defaultMaxIterations backfills
// workflows that declare no fix loop bound.
func New(squads []models.Squad, workflows []models.Workflow, defaultMaxIterations int) (*Registry, error) {
	r := &Registry{
		squads:    make(map[string]models.Squad, len(squads)),
		workflows: make(map[string]models.Workflow, len(workflows)),
	}

	for _, sq := range squads {
		if sq.Name == "" {
			return nil, fmt.Errorf("squad with empty name")
		}
		if _, dup := r.squads[sq.Name]; dup {
			return nil, fmt.Errorf("duplicate squad %q", sq.Name)
		}
		if len(sq.Agents) == 0 {
			return nil, fmt.Errorf("squad %q has no agents", sq.Name)
		}
		r.squads[sq.Name] = sq
		r.squadOrder = append(r.squadOrder, sq.Name)
	}

	for _, wf := range workflows {
		normalized, err := r.validateWorkflow(wf, defaultMaxIterations)
		if err != nil {
			return nil, err
		}
		if _, dup := r.workflows[wf.Name]; dup {
			return nil, fmt.Errorf("duplicate workflow %q", wf.Name)
		}
		r.workflows[wf.Name] = normalized
		r.workflowOrder = append(r.workflowOrder, wf.Name)
	}

	return r, nil
}

// validateWorkflow checks step squad references and gate requirements,
// and normalizes defaults.
func (r *Registry) validateWorkflow(wf models.Workflow, defaultMaxIterations int) (models.Workflow, error) {
	if wf.Name == "" {
		return wf, fmt.Errorf("workflow with empty name")
	}
	if len(wf.Steps) == 0 {
		return wf, fmt.Errorf("workflow %q has no steps", wf.Name)
	}
	for _, step := range wf.Steps {
		if len(step.Squads) == 0 {
			return wf, fmt.Errorf("workflow %q step %q names no squads", wf.Name, step.Name)
		}
		for _, name := range step.Squads {
			if _, ok := r.squads[name]; !ok {
				return wf, fmt.Errorf("workflow %q step %q references unknown squad %q", wf.Name, step.Name, name)
			}
		}
	}

	if wf.MaxIterations <= 0 {
		wf.MaxIterations = defaultMaxIterations
	}

	// Gate requirements are normalized even when the workflow ships with
	// the gate disabled, because a submit request may enable it per task.
	if len(wf.Gate.Checks) == 0 {
		wf.Gate.Checks = []string{
			string(gate.CheckArtifactPresence),
			string(gate.CheckStructure),
		}
		wf.Gate.RequiredChecks = wf.Gate.Checks
	}
	if len(wf.Gate.RequiredSteps) == 0 {
		wf.Gate.RequiredSteps = wf.RequiredSteps()
	}
	if _, err := gate.ResolveChecks(wf.Gate); err != nil {
		return wf, fmt.Errorf("workflow %q: %w", wf.Name, err)
	}
	return wf, nil
}

// Squad returns the squad with the given name.
func (r *Registry) Squad(name string) (models.Squad, bool) {
	sq, ok := r.squads[name]
	return sq, ok
}

// Squads returns all squads in declared order.
func (r *Registry) Squads() []models.Squad {
	out := make([]models.Squad, 0, len(r.squadOrder))
	for _, name := range r.squadOrder {
		out = append(out, r.squads[name])
	}
	return out
}

// Agents returns all agent descriptors across squads, in declared order.
func (r *Registry) Agents() []models.AgentDescriptor {
	var out []models.AgentDescriptor
	for _, name := range r.squadOrder {
		out = append(out, r.squads[name].Agents...)
	}
	return out
}

// Workflow returns the workflow with the given name.
func (r *Registry) Workflow(name string) (models.Workflow, bool) {
	wf, ok := r.workflows[name]
	return wf, ok
}

// Workflows returns all workflows in declared order.
func (r *Registry) Workflows() []models.Workflow {
	out := make([]models.Workflow, 0, len(r.workflowOrder))
	for _, name := range r.workflowOrder {
		out = append(out, r.workflows[name])
	}
	return out
}

// Resolve maps a submit request to a workflow. An explicit workflow
// name must be registered; a workflow type picks the first registered
// workflow of that type, falling back to an ad hoc single-step workflow
// over every squad. A request with neither uses the workflow named
// "default" when present, otherwise the same ad hoc fallback.
func (r *Registry) Resolve(req models.SubmitRequest) (models.Workflow, error) {
	if req.Workflow != "" {
		wf, ok := r.workflows[req.Workflow]
		if !ok {
			return models.Workflow{}, fmt.Errorf("%w: %s", models.ErrInvalidWorkflow, req.Workflow)
		}
		return wf, nil
	}

	if req.WorkflowType != "" {
		for _, name := range r.workflowOrder {
			if r.workflows[name].Type == req.WorkflowType {
				return r.workflows[name], nil
			}
		}
		return r.adHoc(req.WorkflowType), nil
	}

	if wf, ok := r.workflows["default"]; ok {
		return wf, nil
	}
	return r.adHoc("ad_hoc"), nil
}

// adHoc builds a one-step workflow that fans the request out to every
// registered squad in parallel, gate disabled.
func (r *Registry) adHoc(wfType string) models.Workflow {
	return models.Workflow{
		Name:          "ad-hoc",
		Type:          wfType,
		MaxIterations: 1,
		Steps: []models.WorkflowStep{
			{Name: "execute", Squads: append([]string(nil), r.squadOrder...), Parallel: true, Required: true},
		},
		Gate: models.GateRequirements{
			Checks:         []string{"artifact_presence", "structure"},
			RequiredChecks: []string{"artifact_presence", "structure"},
			RequiredSteps:  []string{"execute"},
		},
	}
}
