// Package squad implements the squad manager, which fans one work item
// out to every agent of a named squad and aggregates per-agent results
// into a partial-success tolerant squad result.
package squad

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/forgeworks/squadron/internal/invoker"
	"github.com/forgeworks/squadron/pkg/models"
)

// Emitter receives progress events generated by squad invocations.
// A nil Emitter disables event emission.
type Emitter func(models.ProgressEvent)

// Manager dispatches work items to squads with bounded concurrency.
// The semaphore is shared process-wide across all tasks and workflow
// steps; it is the one piece of mutable shared state in the core.
type Manager struct {
	invoker invoker.Invoker
	sem     *semaphore.Weighted
	emit    Emitter
}

// NewManager creates a squad manager. sem bounds concurrent agent
// invocations across the whole process and must not be nil.
func NewManager(inv invoker.Invoker, sem *semaphore.Weighted, emit Emitter) *Manager {
	return &Manager{invoker: inv, sem: sem, emit: emit}
}

// AgentResult records the outcome of one agent invocation within a squad call.
type AgentResult struct {
	// Agent is the name of the agent.
	Agent string `json:"agent"`
	// Priority is the agent's declared tie-break priority.
	Priority int `json:"priority"`
	// Artifact is the produced artifact, nil on failure.
	Artifact *models.Artifact `json:"artifact,omitempty"`
	// Err is the failure diagnostic, empty on success.
	Err string `json:"err,omitempty"`
	// Duration is how long the invocation took.
	Duration time.Duration `json:"duration"`

	// completionOrder is the order in which this result arrived,
	// used for first-completed tie-breaking.
	completionOrder int
}

// Result aggregates per-agent results for one squad invocation.
type Result struct {
	// Squad is the name of the invoked squad.
	Squad string `json:"squad"`
	// PerAgent holds one result per agent, in declared agent order.
	PerAgent []AgentResult `json:"per_agent"`
	// Succeeded is the number of agents that produced an artifact.
	Succeeded int `json:"succeeded"`
	// Failed is the number of agents that errored or timed out.
	Failed int `json:"failed"`
	// Failed squads have Err set to a human-readable diagnostic.
	Err string `json:"err,omitempty"`
	// Artifacts is the de-duplicated artifact set for the squad, after
	// priority-then-first-completed tie-breaking.
	Artifacts []models.Artifact `json:"artifacts,omitempty"`
}

// OK reports whether the squad call succeeded under its squad's policy.
func (r *Result) OK() bool {
	return r.Err == ""
}

// RunSquad dispatches the work item to every agent in the squad
// concurrently, each call protected by agentTimeout. An individual agent
// failure does not abort the squad: the squad succeeds if at least one
// agent succeeds, unless the squad is marked all-required.
func (m *Manager) RunSquad(ctx context.Context, sq models.Squad, item models.WorkItem, agentTimeout time.Duration) (Result, error) {
	res := Result{Squad: sq.Name, PerAgent: make([]AgentResult, len(sq.Agents))}
	if len(sq.Agents) == 0 {
		res.Err = fmt.Sprintf("squad %s has no agents", sq.Name)
		return res, nil
	}

	if m.emit != nil {
		m.emit(models.ProgressEvent{
			Kind:      models.EventAgentsWorking,
			TaskID:    item.TaskID,
			Timestamp: time.Now(),
			Step:      item.Step,
			Squad:     sq.Name,
			Message:   fmt.Sprintf("%d agents working", len(sq.Agents)),
		})
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
	)

	for i := range sq.Agents {
		wg.Add(1)
		go func(idx int, agent models.AgentDescriptor) {
			defer wg.Done()
			start := time.Now()
			artifact, err := m.invokeOne(ctx, agent, item, agentTimeout)

			mu.Lock()
			defer mu.Unlock()
			out := AgentResult{
				Agent:           agent.Name,
				Priority:        agent.Priority,
				Duration:        time.Since(start),
				completionOrder: completed,
			}
			completed++
			if err != nil {
				out.Err = err.Error()
			} else {
				out.Artifact = &artifact
			}
			res.PerAgent[idx] = out
		}(i, sq.Agents[i])
	}
	wg.Wait()

	for _, ar := range res.PerAgent {
		if ar.Err != "" {
			res.Failed++
		} else {
			res.Succeeded++
		}
	}

	res.Artifacts = mergeArtifacts(res.PerAgent)

	switch {
	case sq.AllRequired && res.Failed > 0:
		res.Err = fmt.Sprintf("squad %s requires all agents; %d of %d failed", sq.Name, res.Failed, len(sq.Agents))
	case res.Succeeded == 0:
		res.Err = fmt.Sprintf("squad %s: all %d agents failed", sq.Name, len(sq.Agents))
	}

	if m.emit != nil {
		msg := fmt.Sprintf("squad %s completed (%d succeeded, %d failed)", sq.Name, res.Succeeded, res.Failed)
		if !res.OK() {
			msg = fmt.Sprintf("squad %s failed: %s", sq.Name, res.Err)
		}
		m.emit(models.ProgressEvent{
			Kind:      models.EventProgressUpdate,
			TaskID:    item.TaskID,
			Timestamp: time.Now(),
			Step:      item.Step,
			Squad:     sq.Name,
			Message:   msg,
		})
	}

	// Squad-level failures are absorbed into the result; only context
	// cancellation surfaces as an error.
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	return res, nil
}

// invokeOne runs a single agent invocation under the global semaphore
// and the per-agent timeout.
func (m *Manager) invokeOne(ctx context.Context, agent models.AgentDescriptor, item models.WorkItem, timeout time.Duration) (models.Artifact, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return models.Artifact{}, fmt.Errorf("acquire agent slot: %w", err)
	}
	defer m.sem.Release(1)

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	artifact, err := m.invoker.Invoke(callCtx, agent, item)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return models.Artifact{}, fmt.Errorf("agent %s timed out after %s", agent.Name, timeout)
		}
		return models.Artifact{}, err
	}
	return artifact, nil
}
