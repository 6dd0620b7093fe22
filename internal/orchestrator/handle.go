package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/forgeworks/squadron/pkg/models"
)

// taskHandle is the orchestrator's private record of one running task:
// the mutable task model, its cancellation scope, and its event fan-out.
type taskHandle struct {
	mu          sync.RWMutex
	task        *models.Task
	workflow    models.Workflow
	cancel      context.CancelFunc
	done        chan struct{}
	broadcaster *Broadcaster
}

func newTaskHandle(task *models.Task, wf models.Workflow, cancel context.CancelFunc, buffer int) *taskHandle {
	return &taskHandle{
		task:        task,
		workflow:    wf,
		cancel:      cancel,
		done:        make(chan struct{}),
		broadcaster: NewBroadcaster(buffer),
	}
}

// snapshot returns a deep copy of the task for callers.
func (h *taskHandle) snapshot() *models.Task {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.task.Clone()
}

// setState applies a state transition if legal. Returns false when the
// transition is not allowed (e.g. the task is already terminal).
func (h *taskHandle) setState(next models.TaskState) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.task.State.CanTransition(next) {
		return false
	}
	h.task.State = next
	h.task.UpdatedAt = time.Now()
	if next.Terminal() {
		ts := h.task.UpdatedAt
		h.task.CompletedAt = &ts
	}
	return true
}

func (h *taskHandle) state() models.TaskState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.task.State
}

// updateProgress raises the task's progress. Progress never decreases
// through this path; explicit resets on a fix iteration go through
// resetProgress.
func (h *taskHandle) updateProgress(pct int, step string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if pct > h.task.Progress {
		h.task.Progress = pct
	}
	h.task.CurrentStep = step
	h.task.UpdatedAt = time.Now()
}

// resetProgress sets progress to the value it held when the failed
// quality gate pass began. Never resets to zero after the first pass.
func (h *taskHandle) resetProgress(pct int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.task.Progress = pct
	h.task.UpdatedAt = time.Now()
}

func (h *taskHandle) progress() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.task.Progress
}

// appendArtifacts appends a pass's artifacts to the task history.
// Earlier artifacts are preserved; superseding versions accumulate.
func (h *taskHandle) appendArtifacts(artifacts []models.Artifact) {
	if len(artifacts) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.task.Artifacts = append(h.task.Artifacts, artifacts...)
	h.task.UpdatedAt = time.Now()
}

func (h *taskHandle) artifacts() []models.Artifact {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]models.Artifact, len(h.task.Artifacts))
	copy(out, h.task.Artifacts)
	return out
}

func (h *taskHandle) setCheckResults(results []models.QualityCheckResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.task.CheckResults = results
	h.task.UpdatedAt = time.Now()
}

func (h *taskHandle) setError(diag string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.task.Error = diag
}

func (h *taskHandle) incrementIteration() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.task.Iteration++
	return h.task.Iteration
}

func (h *taskHandle) iteration() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.task.Iteration
}

func (h *taskHandle) maxIterations() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.task.MaxIterations
}

func (h *taskHandle) gateEnabled() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.task.QualityGateEnabled
}

// workItem builds the work item for one workflow pass, merging the
// caller context with fix-iteration context.
func (h *taskHandle) workItem(fixContext map[string]string) models.WorkItem {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ctx := make(map[string]string, len(h.task.Context)+len(fixContext))
	for k, v := range h.task.Context {
		ctx[k] = v
	}
	for k, v := range fixContext {
		ctx[k] = v
	}
	return models.WorkItem{
		TaskID:      h.task.ID,
		Description: h.task.Description,
		Context:     ctx,
	}
}

// publish stamps and delivers an event to this task's subscribers.
func (h *taskHandle) publish(ev models.ProgressEvent) {
	h.mu.RLock()
	ev.TaskID = h.task.ID
	if ev.State == "" {
		ev.State = h.task.State
	}
	if ev.Progress == 0 {
		ev.Progress = h.task.Progress
	}
	h.mu.RUnlock()

	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	h.broadcaster.Publish(ev)
}
