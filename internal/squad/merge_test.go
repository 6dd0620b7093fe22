package squad

import (
	"testing"

	"github.com/forgeworks/squadron/pkg/models"
)

func artifactResult(agent string, priority, completionOrder int, id, content string) AgentResult {
	return AgentResult{
		Agent:           agent,
		Priority:        priority,
		Artifact:        &models.Artifact{ID: id, Content: content, Agent: agent},
		completionOrder: completionOrder,
	}
}

func TestMergeArtifactsHigherPriorityWins(t *testing.T) {
	// The lower-priority agent completes first; priority still wins.
	results := []AgentResult{
		artifactResult("junior", 1, 0, "schema.sql", "junior version"),
		artifactResult("senior", 5, 1, "schema.sql", "senior version"),
	}

	merged := mergeArtifacts(results)
	if len(merged) != 1 {
		t.Fatalf("expected 1 artifact, got %d", len(merged))
	}
	if merged[0].Content != "senior version" {
		t.Errorf("higher priority should win, got %q", merged[0].Content)
	}
}

func TestMergeArtifactsEqualPriorityFirstCompletedWins(t *testing.T) {
	results := []AgentResult{
		// Declared first but completed second.
		artifactResult("a", 2, 1, "schema.sql", "second to finish"),
		artifactResult("b", 2, 0, "schema.sql", "first to finish"),
	}

	merged := mergeArtifacts(results)
	if len(merged) != 1 {
		t.Fatalf("expected 1 artifact, got %d", len(merged))
	}
	if merged[0].Content != "first to finish" {
		t.Errorf("first-completed should win on equal priority, got %q", merged[0].Content)
	}
}

func TestMergeArtifactsDistinctIDsAllKept(t *testing.T) {
	results := []AgentResult{
		artifactResult("a", 1, 0, "api.go", "x"),
		artifactResult("b", 1, 1, "ui.tsx", "y"),
		{Agent: "c", Err: "failed"}, // failed agents contribute nothing
	}

	merged := mergeArtifacts(results)
	if len(merged) != 2 {
		t.Fatalf("expected 2 artifacts, got %d", len(merged))
	}
}

func TestMergeArtifactsDeterministic(t *testing.T) {
	results := []AgentResult{
		artifactResult("a", 3, 0, "schema.sql", "a"),
		artifactResult("b", 3, 1, "schema.sql", "b"),
		artifactResult("c", 1, 2, "readme.md", "c"),
	}

	first := mergeArtifacts(results)
	for i := 0; i < 20; i++ {
		again := mergeArtifacts(results)
		if len(again) != len(first) {
			t.Fatal("merge length varies")
		}
		for j := range again {
			if again[j].ID != first[j].ID || again[j].Content != first[j].Content {
				t.Fatalf("merge output varies at %d: %+v vs %+v", j, again[j], first[j])
			}
		}
	}
}
