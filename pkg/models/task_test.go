package models

import (
	"testing"
	"time"
)

func TestTaskStateValid(t *testing.T) {
	valid := []TaskState{
		TaskStateQueued, TaskStateRunning, TaskStateQualityGate,
		TaskStateFixing, TaskStateCompleted, TaskStateFailed, TaskStateCancelled,
	}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("state %q should be valid", s)
		}
	}
	if TaskState("unknown").Valid() {
		t.Error("unknown state should not be valid")
	}
}

func TestTaskStateTerminal(t *testing.T) {
	tests := []struct {
		state    TaskState
		terminal bool
	}{
		{TaskStateQueued, false},
		{TaskStateRunning, false},
		{TaskStateQualityGate, false},
		{TaskStateFixing, false},
		{TaskStateCompleted, true},
		{TaskStateFailed, true},
		{TaskStateCancelled, true},
	}
	for _, tt := range tests {
		if got := tt.state.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.state, got, tt.terminal)
		}
	}
}

func TestTaskStateCanTransition(t *testing.T) {
	tests := []struct {
		from, to TaskState
		want     bool
	}{
		{TaskStateQueued, TaskStateRunning, true},
		{TaskStateQueued, TaskStateCompleted, false},
		{TaskStateRunning, TaskStateQualityGate, true},
		{TaskStateRunning, TaskStateCompleted, true},
		{TaskStateRunning, TaskStateFailed, true},
		{TaskStateRunning, TaskStateFixing, false},
		{TaskStateQualityGate, TaskStateCompleted, true},
		{TaskStateQualityGate, TaskStateFixing, true},
		{TaskStateQualityGate, TaskStateFailed, true},
		{TaskStateQualityGate, TaskStateRunning, false},
		{TaskStateFixing, TaskStateRunning, true},
		{TaskStateFixing, TaskStateCompleted, false},
		// Cancellation from any non-terminal state.
		{TaskStateQueued, TaskStateCancelled, true},
		{TaskStateRunning, TaskStateCancelled, true},
		{TaskStateQualityGate, TaskStateCancelled, true},
		{TaskStateFixing, TaskStateCancelled, true},
		// Terminal states are immutable.
		{TaskStateCompleted, TaskStateRunning, false},
		{TaskStateCompleted, TaskStateCancelled, false},
		{TaskStateFailed, TaskStateCancelled, false},
		{TaskStateCancelled, TaskStateRunning, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTaskClone(t *testing.T) {
	now := time.Now()
	orig := &Task{
		ID:        "abc123",
		Context:   map[string]string{"key": "value"},
		Artifacts: []Artifact{{ID: "main.go", Step: "build"}},
		CheckResults: []QualityCheckResult{
			{Check: "structure", Passed: true, Score: 100},
		},
		CompletedAt: &now,
	}

	cp := orig.Clone()

	cp.Context["key"] = "changed"
	cp.Artifacts[0].ID = "changed.go"
	cp.CheckResults[0].Score = 0

	if orig.Context["key"] != "value" {
		t.Error("Clone shares the context map")
	}
	if orig.Artifacts[0].ID != "main.go" {
		t.Error("Clone shares the artifact slice")
	}
	if orig.CheckResults[0].Score != 100 {
		t.Error("Clone shares the check result slice")
	}
	if cp.CompletedAt == orig.CompletedAt {
		t.Error("Clone shares the CompletedAt pointer")
	}
}

func TestLatestArtifacts(t *testing.T) {
	history := []Artifact{
		{ID: "schema.sql", Content: "v1", Step: "design"},
		{ID: "main.go", Content: "v1", Step: "build"},
		{ID: "schema.sql", Content: "v2", Step: "design"},
	}

	latest := LatestArtifacts(history)

	if len(latest) != 2 {
		t.Fatalf("expected 2 artifacts, got %d", len(latest))
	}
	if latest[0].ID != "schema.sql" || latest[0].Content != "v2" {
		t.Errorf("expected superseding schema.sql v2 first, got %+v", latest[0])
	}
	if latest[1].ID != "main.go" {
		t.Errorf("expected main.go second, got %+v", latest[1])
	}
}

func TestWorkflowSquadNames(t *testing.T) {
	wf := &Workflow{
		Steps: []WorkflowStep{
			{Name: "design", Squads: []string{"architecture"}},
			{Name: "build", Squads: []string{"backend", "frontend"}},
			{Name: "review", Squads: []string{"backend"}},
		},
	}

	names := wf.SquadNames()
	want := []string{"architecture", "backend", "frontend"}
	if len(names) != len(want) {
		t.Fatalf("expected %d names, got %d", len(want), len(names))
	}
	for i, n := range want {
		if names[i] != n {
			t.Errorf("names[%d] = %q, want %q", i, names[i], n)
		}
	}
}
