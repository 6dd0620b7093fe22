package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/forgeworks/squadron/internal/gate"
	"github.com/forgeworks/squadron/internal/invoker"
	"github.com/forgeworks/squadron/internal/registry"
	"github.com/forgeworks/squadron/internal/squad"
	"github.com/forgeworks/squadron/internal/state"
	"github.com/forgeworks/squadron/internal/workflow"
	"github.com/forgeworks/squadron/pkg/models"
)

// Config carries the orchestrator's dependencies and tuning knobs.
type Config struct {
	// Registry holds the validated squad and workflow catalog.
	Registry *registry.Registry
	// Invoker executes individual agent calls.
	Invoker invoker.Invoker
	// MaxParallelAgents bounds concurrent agent invocations across all
	// tasks. Zero means the default of 8.
	MaxParallelAgents int
	// AgentTimeout bounds a single agent invocation. Zero means no
	// per-agent timeout beyond step and task scopes.
	AgentTimeout time.Duration
	// DefaultMaxIterations is the fix loop bound applied when neither
	// the request nor the workflow sets one.
	DefaultMaxIterations int
	// EventBuffer is the per-subscriber event channel capacity.
	EventBuffer int
	// Store persists task records across restarts. Optional; when nil
	// tasks are held in memory only.
	Store *state.DB
}

// Orchestrator owns the task state machine: it accepts submissions,
// drives workflow passes and quality gate evaluations, and fans out
// progress events to subscribers.
type Orchestrator struct {
	registry *registry.Registry
	manager  *squad.Manager
	engine   *workflow.Engine
	gate     *gate.Engine
	store    *state.DB

	defaultMaxIterations int
	eventBuffer          int

	mu    sync.RWMutex
	tasks map[string]*taskHandle

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an orchestrator from the given configuration.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("orchestrator requires a registry")
	}
	if cfg.Invoker == nil {
		return nil, fmt.Errorf("orchestrator requires an invoker")
	}
	maxAgents := cfg.MaxParallelAgents
	if maxAgents <= 0 {
		maxAgents = 8
	}
	defaultIters := cfg.DefaultMaxIterations
	if defaultIters <= 0 {
		defaultIters = 2
	}
	buffer := cfg.EventBuffer
	if buffer <= 0 {
		buffer = 100
	}

	o := &Orchestrator{
		registry:             cfg.Registry,
		gate:                 gate.NewEngine(),
		store:                cfg.Store,
		defaultMaxIterations: defaultIters,
		eventBuffer:          buffer,
		tasks:                make(map[string]*taskHandle),
	}
	o.ctx, o.cancel = context.WithCancel(context.Background())

	sem := semaphore.NewWeighted(int64(maxAgents))
	o.manager = squad.NewManager(cfg.Invoker, sem, o.routeEvent)
	o.engine = workflow.NewEngine(o.manager, cfg.Registry.Squad, cfg.AgentTimeout)

	debugLog("orchestrator initialized: max_parallel_agents=%d agent_timeout=%s", maxAgents, cfg.AgentTimeout)
	return o, nil
}

// Registry exposes the catalog for read-only listing operations.
func (o *Orchestrator) Registry() *registry.Registry {
	return o.registry
}

// Submit validates the request, creates the task record, and starts
// execution in the background. It returns the new task ID immediately
// and never blocks on agent availability.
func (o *Orchestrator) Submit(req models.SubmitRequest) (string, error) {
	if strings.TrimSpace(req.Description) == "" {
		return "", fmt.Errorf("%w: description is required", models.ErrInvalidRequest)
	}
	wf, err := o.registry.Resolve(req)
	if err != nil {
		return "", err
	}

	maxIters := wf.MaxIterations
	if req.MaxIterations > 0 {
		maxIters = req.MaxIterations
	}
	if maxIters <= 0 {
		maxIters = o.defaultMaxIterations
	}
	gateEnabled := wf.QualityGateEnabled
	if req.QualityGateEnabled != nil {
		gateEnabled = *req.QualityGateEnabled
	}

	now := time.Now()
	task := &models.Task{
		ID:                 uuid.NewString()[:8],
		Description:        req.Description,
		Context:            req.Context,
		Workflow:           wf.Name,
		State:              models.TaskStateQueued,
		Priority:           req.Priority,
		MaxIterations:      maxIters,
		QualityGateEnabled: gateEnabled,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	taskCtx, taskCancel := context.WithCancel(o.ctx)
	h := newTaskHandle(task, wf, taskCancel, o.eventBuffer)

	o.mu.Lock()
	o.tasks[task.ID] = h
	o.mu.Unlock()

	o.persist(h)
	log.Printf("[orchestrator] task %s submitted: workflow=%s gate=%t max_iterations=%d",
		task.ID, wf.Name, gateEnabled, maxIters)

	o.wg.Add(1)
	go o.runTask(taskCtx, h)
	return task.ID, nil
}

// GetStatus returns a snapshot of the task. The caller's copy is
// independent of the orchestrator's record.
func (o *Orchestrator) GetStatus(id string) (*models.Task, error) {
	o.mu.RLock()
	h, ok := o.tasks[id]
	o.mu.RUnlock()
	if ok {
		return h.snapshot(), nil
	}
	if o.store != nil {
		return o.store.GetTask(id)
	}
	return nil, fmt.Errorf("task %s: %w", id, models.ErrNotFound)
}

// ListTasks returns snapshots of known tasks, newest first.
func (o *Orchestrator) ListTasks(limit int) ([]*models.Task, error) {
	if o.store != nil {
		return o.store.ListTasks(limit)
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*models.Task, 0, len(o.tasks))
	for _, h := range o.tasks {
		out = append(out, h.snapshot())
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.After(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Cancel requests cancellation of a non-terminal task. The transition
// to CANCELLED happens once all in-flight agent invocations have
// returned; Cancel itself does not wait for them.
func (o *Orchestrator) Cancel(id string) error {
	o.mu.RLock()
	h, ok := o.tasks[id]
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("task %s: %w", id, models.ErrNotFound)
	}
	if h.state().Terminal() {
		return fmt.Errorf("task %s is %s: %w", id, h.state(), models.ErrInvalidState)
	}
	log.Printf("[orchestrator] task %s cancellation requested", id)
	h.cancel()
	return nil
}

// Subscribe attaches to a task's event stream. The first event on the
// returned channel is always connection_established with the task's
// current state; there is no replay of earlier events. The returned
// function detaches the subscriber.
func (o *Orchestrator) Subscribe(id string) (<-chan models.ProgressEvent, func(), error) {
	o.mu.RLock()
	h, ok := o.tasks[id]
	o.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("task %s: %w", id, models.ErrNotFound)
	}

	snap := h.snapshot()
	ch, unsubscribe := h.broadcaster.SubscribeWith(models.ProgressEvent{
		Kind:      models.EventConnectionEstablished,
		TaskID:    snap.ID,
		Timestamp: time.Now(),
		State:     snap.State,
		Progress:  snap.Progress,
		Step:      snap.CurrentStep,
	})
	return ch, unsubscribe, nil
}

// RunGate evaluates the quality gate against a set of artifacts outside
// of any task, for standalone gate runs.
func (o *Orchestrator) RunGate(ctx context.Context, artifacts []models.Artifact, req models.GateRequirements) (models.GateResult, error) {
	return o.gate.RunGate(ctx, artifacts, req)
}

// Shutdown cancels every running task and waits for their goroutines
// to drain, bounded by ctx.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.cancel()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// routeEvent delivers squad manager events to the owning task's
// subscribers.
func (o *Orchestrator) routeEvent(ev models.ProgressEvent) {
	o.mu.RLock()
	h, ok := o.tasks[ev.TaskID]
	o.mu.RUnlock()
	if !ok {
		return
	}
	h.publish(ev)
}

// persist writes the current task snapshot to the store. Persistence
// failures are logged, never fatal to the task.
func (o *Orchestrator) persist(h *taskHandle) {
	if o.store == nil {
		return
	}
	snap := h.snapshot()
	if err := o.store.SaveTask(snap); err != nil {
		log.Printf("[orchestrator] task %s: persist failed: %v", snap.ID, err)
	}
}

// runTask drives one task through the full state machine: workflow
// passes, the quality gate, and the bounded fix loop.
func (o *Orchestrator) runTask(ctx context.Context, h *taskHandle) {
	defer o.wg.Done()
	defer h.broadcaster.Close()

	snap := h.snapshot()
	taskID := snap.ID
	wf := h.workflow

	// Cancellation can land between Submit and here.
	if ctx.Err() != nil {
		o.finalizeCancelled(h)
		return
	}

	h.setState(models.TaskStateRunning)
	o.persist(h)
	h.publish(models.ProgressEvent{
		Kind:    models.EventTaskStarted,
		Message: fmt.Sprintf("workflow %s started", wf.Name),
	})
	debugLog("task %s: running workflow %s", taskID, wf.Name)

	// With the gate enabled the workflow pass owns 0-90 and the gate
	// owns 90-100. A fix iteration restarts from the progress recorded
	// when the gate was entered, never from zero.
	scale := 100
	if h.gateEnabled() {
		scale = 90
	}
	floor := 0
	var fixContext map[string]string

	for {
		if ctx.Err() != nil {
			o.finalizeCancelled(h)
			return
		}

		item := h.workItem(fixContext)
		progressFn := func(pct int, step string) {
			p := floor + pct*(scale-floor)/100
			h.updateProgress(p, step)
			o.persist(h)
			h.publish(models.ProgressEvent{
				Kind:     models.EventProgressUpdate,
				Progress: h.progress(),
				Step:     step,
			})
		}

		res, err := o.engine.Run(ctx, wf, item, progressFn)
		h.appendArtifacts(res.Artifacts)
		if err != nil {
			o.finalizeCancelled(h)
			return
		}
		if res.Failed {
			o.finalizeFailed(h, res.Diagnostic)
			return
		}

		if !h.gateEnabled() {
			h.updateProgress(100, "")
			o.finalizeCompleted(h, nil)
			return
		}

		h.setState(models.TaskStateQualityGate)
		gateFloor := h.progress()
		o.persist(h)
		h.publish(models.ProgressEvent{
			Kind:    models.EventQualityGateRunning,
			Message: fmt.Sprintf("quality gate evaluating, iteration %d of %d", h.iteration()+1, h.maxIterations()),
		})
		debugLog("task %s: quality gate running, iteration=%d", taskID, h.iteration())

		gres, err := o.gate.RunGate(ctx, h.artifacts(), wf.Gate)
		if err != nil {
			if ctx.Err() != nil {
				o.finalizeCancelled(h)
				return
			}
			o.finalizeFailed(h, fmt.Sprintf("quality gate error: %v", err))
			return
		}
		h.setCheckResults(gres.Checks)

		if gres.Passed {
			h.updateProgress(100, "")
			o.finalizeCompleted(h, &gres)
			return
		}

		if h.iteration() >= h.maxIterations() {
			o.finalizeFailed(h, iterationDiagnostic(h.maxIterations(), gres))
			return
		}

		iter := h.incrementIteration()
		h.setState(models.TaskStateFixing)
		floor = gateFloor
		h.resetProgress(floor)
		fixContext = map[string]string{
			"fix_iteration":        fmt.Sprintf("%d", iter),
			"gate_score":           fmt.Sprintf("%d", gres.Score),
			"gate_recommendations": strings.Join(gres.Recommendations, "\n"),
		}
		o.persist(h)
		h.publish(models.ProgressEvent{
			Kind:     models.EventProgressUpdate,
			Progress: floor,
			Message:  fmt.Sprintf("quality gate failed with score %d, fix iteration %d of %d", gres.Score, iter, h.maxIterations()),
		})
		log.Printf("[orchestrator] task %s: gate failed (score %d), fix iteration %d of %d",
			taskID, gres.Score, iter, h.maxIterations())

		h.setState(models.TaskStateRunning)
		o.persist(h)
	}
}

func (o *Orchestrator) finalizeCompleted(h *taskHandle, result *models.GateResult) {
	h.setState(models.TaskStateCompleted)
	o.persist(h)
	h.publish(models.ProgressEvent{
		Kind:     models.EventTaskCompleted,
		Progress: 100,
		Result:   result,
	})
	log.Printf("[orchestrator] task %s completed", h.snapshot().ID)
}

func (o *Orchestrator) finalizeFailed(h *taskHandle, diagnostic string) {
	h.setError(diagnostic)
	h.setState(models.TaskStateFailed)
	o.persist(h)
	h.publish(models.ProgressEvent{
		Kind:  models.EventTaskFailed,
		Error: diagnostic,
	})
	log.Printf("[orchestrator] task %s failed: %s", h.snapshot().ID, diagnostic)
}

func (o *Orchestrator) finalizeCancelled(h *taskHandle) {
	h.setError("cancelled")
	h.setState(models.TaskStateCancelled)
	o.persist(h)
	h.publish(models.ProgressEvent{
		Kind:    models.EventTaskCancelled,
		Message: "task cancelled",
	})
	log.Printf("[orchestrator] task %s cancelled", h.snapshot().ID)
}

// iterationDiagnostic explains a fix budget exhaustion, naming the
// checks that were still failing.
func iterationDiagnostic(maxIterations int, gres models.GateResult) string {
	var failing []string
	for _, c := range gres.Checks {
		if !c.Passed {
			failing = append(failing, c.Check)
		}
	}
	return fmt.Sprintf("quality gate failed after %d fix iteration(s): score %d, failing checks: %s",
		maxIterations, gres.Score, strings.Join(failing, ", "))
}
