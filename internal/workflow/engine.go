// Package workflow implements the workflow engine, which executes the
// ordered steps of a workflow against squads and accumulates artifacts.
package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/forgeworks/squadron/internal/squad"
	"github.com/forgeworks/squadron/pkg/models"
)

// SquadLookup resolves a squad name to its definition.
type SquadLookup func(name string) (models.Squad, bool)

// Engine executes workflows step by step. Within a parallel step all
// named squads run concurrently; agent concurrency is bounded globally
// by the squad manager's semaphore, not per step.
type Engine struct {
	manager *squad.Manager
	lookup  SquadLookup
	// agentTimeout is the per-agent invocation timeout, independent of
	// any step timeout.
	agentTimeout time.Duration
}

// NewEngine creates a workflow engine.
func NewEngine(manager *squad.Manager, lookup SquadLookup, agentTimeout time.Duration) *Engine {
	return &Engine{manager: manager, lookup: lookup, agentTimeout: agentTimeout}
}

// StepResult records the outcome of one workflow step.
type StepResult struct {
	// Step is the step name.
	Step string `json:"step"`
	// Failed indicates the step failed (zero artifacts from a required
	// step, an all-required squad failure, or a step timeout).
	Failed bool `json:"failed"`
	// TimedOut indicates the step timeout expired.
	TimedOut bool `json:"timed_out,omitempty"`
	// SquadResults holds one result per invoked squad, in declared order.
	SquadResults []squad.Result `json:"squad_results"`
	// Duration is how long the step took.
	Duration time.Duration `json:"duration"`
}

// RunResult is the outcome of one pass through a workflow.
type RunResult struct {
	// Artifacts is the union of artifacts produced by completed steps.
	Artifacts []models.Artifact `json:"artifacts"`
	// StepResults records each executed step, including a failed one.
	StepResults []StepResult `json:"step_results"`
	// Failed indicates a required step failed and the run stopped.
	Failed bool `json:"failed"`
	// FailingStep names the step that failed the run, if any.
	FailingStep *string `json:"failing_step,omitempty"`
	// Diagnostic is a human-readable description of the failure.
	Diagnostic string `json:"diagnostic,omitempty"`
}

// Progress is called after each step transition with the percentage of
// completed steps (floored) and the step that just finished.
type Progress func(pct int, step string)

// Run executes the workflow's steps strictly in list order and returns
// the accumulated artifacts. A failed required step stops processing
// further steps; a failed optional step is recorded and skipped over.
func (e *Engine) Run(ctx context.Context, wf models.Workflow, item models.WorkItem, progress Progress) (RunResult, error) {
	var res RunResult
	total := len(wf.Steps)
	if total == 0 {
		res.Failed = true
		res.Diagnostic = fmt.Sprintf("workflow %s has no steps", wf.Name)
		return res, nil
	}

	for i, step := range wf.Steps {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		sr := e.runStep(ctx, step, item)
		res.StepResults = append(res.StepResults, sr)

		for _, sqr := range sr.SquadResults {
			res.Artifacts = append(res.Artifacts, sqr.Artifacts...)
		}

		if sr.Failed && step.Required {
			name := step.Name
			res.Failed = true
			res.FailingStep = &name
			res.Diagnostic = stepDiagnostic(step, sr)
			return res, ctx.Err()
		}

		if progress != nil {
			progress((i+1)*100/total, step.Name)
		}
	}

	return res, ctx.Err()
}

// runStep invokes all squads of one step, sequentially or in parallel,
// bounded as a whole by the step timeout.
func (e *Engine) runStep(ctx context.Context, step models.WorkflowStep, item models.WorkItem) StepResult {
	start := time.Now()
	sr := StepResult{Step: step.Name}

	stepCtx := ctx
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	stepItem := item
	stepItem.Step = step.Name

	results := make([]squad.Result, len(step.Squads))
	if step.Parallel {
		var wg sync.WaitGroup
		for _, idx := range e.launchOrder(step.Squads) {
			wg.Add(1)
			go func(idx int, squadName string) {
				defer wg.Done()
				results[idx] = e.runSquad(stepCtx, squadName, stepItem)
			}(idx, step.Squads[idx])
		}
		wg.Wait()
	} else {
		for i, name := range step.Squads {
			results[i] = e.runSquad(stepCtx, name, stepItem)
		}
	}
	sr.SquadResults = results
	sr.Duration = time.Since(start)

	artifacts := 0
	allOK := true
	allRequiredFailure := false
	for i, r := range results {
		artifacts += len(r.Artifacts)
		if !r.OK() {
			allOK = false
			if sq, ok := e.lookup(step.Squads[i]); ok && sq.AllRequired {
				allRequiredFailure = true
			}
		}
	}

	// Completed work wins over the clock. If every squad finished
	// cleanly and produced artifacts, the step succeeded even when the
	// deadline lapsed between squad completion and this check.
	if allOK && artifacts > 0 {
		return sr
	}

	// An expired step timeout is treated identically to a step failure.
	if stepCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		sr.TimedOut = true
		sr.Failed = true
		return sr
	}

	sr.Failed = artifacts == 0 || allRequiredFailure
	return sr
}

// launchOrder returns the step's squad indices sorted by descending
// squad priority, stable for ties, so higher priority squads reach the
// agent semaphore first when a parallel step contends for slots.
// Results are still reported in declared order.
func (e *Engine) launchOrder(squads []string) []int {
	order := make([]int, len(squads))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return e.squadPriority(squads[order[a]]) > e.squadPriority(squads[order[b]])
	})
	return order
}

func (e *Engine) squadPriority(name string) int {
	if sq, ok := e.lookup(name); ok {
		return sq.Priority
	}
	return 0
}

// runSquad resolves and invokes one squad, absorbing resolution failures
// into a failed squad result.
func (e *Engine) runSquad(ctx context.Context, name string, item models.WorkItem) squad.Result {
	sq, ok := e.lookup(name)
	if !ok {
		return squad.Result{Squad: name, Err: fmt.Sprintf("squad %s is not registered", name)}
	}
	res, err := e.manager.RunSquad(ctx, sq, item, e.agentTimeout)
	if err != nil && res.Err == "" {
		// A context error on a squad whose agents all finished cleanly
		// means the deadline lapsed after the work was already done.
		if res.Failed > 0 || len(res.Artifacts) == 0 {
			res.Err = err.Error()
		}
	}
	return res
}

func stepDiagnostic(step models.WorkflowStep, sr StepResult) string {
	if sr.TimedOut {
		return fmt.Sprintf("required step %s timed out after %s", step.Name, step.Timeout)
	}
	for _, r := range sr.SquadResults {
		if !r.OK() {
			return fmt.Sprintf("required step %s failed: %s", step.Name, r.Err)
		}
	}
	return fmt.Sprintf("required step %s produced no artifacts", step.Name)
}
