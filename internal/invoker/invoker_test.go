package invoker

import (
	"context"
	"strings"
	"testing"

	"github.com/forgeworks/squadron/pkg/models"
)

func TestFuncAdapter(t *testing.T) {
	called := false
	inv := Func(func(ctx context.Context, agent models.AgentDescriptor, item models.WorkItem) (models.Artifact, error) {
		called = true
		return models.Artifact{ID: agent.Name + ".md"}, nil
	})

	art, err := inv.Invoke(context.Background(), models.AgentDescriptor{Name: "api-designer"}, models.WorkItem{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("adapter did not call the wrapped function")
	}
	if art.ID != "api-designer.md" {
		t.Errorf("unexpected artifact ID %q", art.ID)
	}
}

func TestUserPromptDeterministic(t *testing.T) {
	item := models.WorkItem{
		Description: "implement the login endpoint",
		Context: map[string]string{
			"framework": "echo",
			"auth":      "jwt",
			"db":        "postgres",
		},
	}

	first := userPrompt(item)
	for i := 0; i < 10; i++ {
		if got := userPrompt(item); got != first {
			t.Fatal("userPrompt output varies across calls with identical input")
		}
	}
	if !strings.Contains(first, "implement the login endpoint") {
		t.Error("prompt missing description")
	}
	// Context keys must appear sorted.
	if strings.Index(first, "auth") > strings.Index(first, "db") {
		t.Error("context keys not sorted")
	}
}

func TestSystemPromptIncludesRoleAndSquad(t *testing.T) {
	agent := models.AgentDescriptor{Name: "schema-author", Role: "database engineer", Squad: "backend"}
	prompt := systemPrompt(agent)
	if !strings.Contains(prompt, "database engineer") || !strings.Contains(prompt, "backend") {
		t.Errorf("system prompt missing role or squad: %q", prompt)
	}
}
