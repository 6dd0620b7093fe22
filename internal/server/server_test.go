package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/forgeworks/squadron/internal/invoker"
	"github.com/forgeworks/squadron/internal/orchestrator"
	"github.com/forgeworks/squadron/internal/registry"
	"github.com/forgeworks/squadron/pkg/models"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	squads := []models.Squad{
		{
			Name:        "build",
			Description: "builds things",
			Agents: []models.AgentDescriptor{
				{Name: "builder", Role: "engineer", Squad: "build", Priority: 5},
			},
		},
	}
	workflows := []models.Workflow{
		{
			Name: "feature",
			Type: "feature",
			Steps: []models.WorkflowStep{
				{Name: "implement", Squads: []string{"build"}, Required: true},
			},
		},
	}
	reg, err := registry.New(squads, workflows, 2)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	return reg
}

func echoInvoker() invoker.Invoker {
	return invoker.Func(func(ctx context.Context, agent models.AgentDescriptor, item models.WorkItem) (models.Artifact, error) {
		return models.Artifact{
			Type:    "document",
			ID:      item.Step + "/" + agent.Name + ".md",
			Content: "work for " + item.Description,
			Step:    item.Step,
			Squad:   agent.Squad,
			Agent:   agent.Name,
		}, nil
	})
}

func newTestServer(t *testing.T, inv invoker.Invoker) *Server {
	t.Helper()
	reg := testRegistry(t)
	core, err := orchestrator.New(orchestrator.Config{
		Registry:    reg,
		Invoker:     inv,
		EventBuffer: 64,
	})
	if err != nil {
		t.Fatalf("orchestrator.New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		core.Shutdown(ctx)
	})

	s, err := NewServer(core, reg, zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func doJSON(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, []byte) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec, rec.Body.Bytes()
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, echoInvoker())
	rec, body := doJSON(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var res HealthResponse
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Status != "ok" {
		t.Errorf("status field = %q, want ok", res.Status)
	}
}

func TestSubmitAndStatus(t *testing.T) {
	s := newTestServer(t, echoInvoker())

	rec, body := doJSON(t, s, http.MethodPost, "/api/v1/tasks",
		`{"description":"build the widget","workflow":"feature"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d, body %s", rec.Code, body)
	}
	var sub SubmitResponse
	if err := json.Unmarshal(body, &sub); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sub.TaskID == "" {
		t.Fatal("submit returned empty task id")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		rec, body = doJSON(t, s, http.MethodGet, "/api/v1/tasks/"+sub.TaskID, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("get status = %d", rec.Code)
		}
		var task models.Task
		if err := json.Unmarshal(body, &task); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if task.State.Terminal() {
			if task.State != models.TaskStateCompleted {
				t.Fatalf("state = %s, want completed (error: %s)", task.State, task.Error)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("task never reached a terminal state")
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec, body = doJSON(t, s, http.MethodGet, "/api/v1/tasks", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var tasks []models.Task
	if err := json.Unmarshal(body, &tasks); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("listed %d tasks, want 1", len(tasks))
	}
}

func TestSubmitValidationErrors(t *testing.T) {
	s := newTestServer(t, echoInvoker())

	rec, _ := doJSON(t, s, http.MethodPost, "/api/v1/tasks", `{"description":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty description status = %d, want 400", rec.Code)
	}

	rec, _ = doJSON(t, s, http.MethodPost, "/api/v1/tasks",
		`{"description":"x","workflow":"no-such"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown workflow status = %d, want 400", rec.Code)
	}

	rec, _ = doJSON(t, s, http.MethodPost, "/api/v1/tasks", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", rec.Code)
	}
}

func TestGetUnknownTask(t *testing.T) {
	s := newTestServer(t, echoInvoker())
	rec, _ := doJSON(t, s, http.MethodGet, "/api/v1/tasks/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCancelConflictsOnTerminalTask(t *testing.T) {
	s := newTestServer(t, echoInvoker())

	rec, body := doJSON(t, s, http.MethodPost, "/api/v1/tasks",
		`{"description":"build the widget","workflow":"feature"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d", rec.Code)
	}
	var sub SubmitResponse
	if err := json.Unmarshal(body, &sub); err != nil {
		t.Fatalf("decode: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		rec, body = doJSON(t, s, http.MethodGet, "/api/v1/tasks/"+sub.TaskID, "")
		var task models.Task
		if err := json.Unmarshal(body, &task); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if task.State.Terminal() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("task never reached a terminal state")
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec, _ = doJSON(t, s, http.MethodPost, "/api/v1/tasks/"+sub.TaskID+"/cancel", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("cancel terminal status = %d, want 409", rec.Code)
	}

	rec, _ = doJSON(t, s, http.MethodPost, "/api/v1/tasks/nope/cancel", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("cancel unknown status = %d, want 404", rec.Code)
	}
}

func TestCatalogListing(t *testing.T) {
	s := newTestServer(t, echoInvoker())

	rec, body := doJSON(t, s, http.MethodGet, "/api/v1/squads", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("squads status = %d", rec.Code)
	}
	var squads []models.Squad
	if err := json.Unmarshal(body, &squads); err != nil {
		t.Fatalf("decode squads: %v", err)
	}
	if len(squads) != 1 || squads[0].Name != "build" {
		t.Errorf("squads = %+v, want the build squad", squads)
	}

	rec, body = doJSON(t, s, http.MethodGet, "/api/v1/agents", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("agents status = %d", rec.Code)
	}
	var agents []models.AgentDescriptor
	if err := json.Unmarshal(body, &agents); err != nil {
		t.Fatalf("decode agents: %v", err)
	}
	if len(agents) != 1 || agents[0].Name != "builder" {
		t.Errorf("agents = %+v, want the builder agent", agents)
	}

	rec, body = doJSON(t, s, http.MethodGet, "/api/v1/workflows", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("workflows status = %d", rec.Code)
	}
	var workflows []models.Workflow
	if err := json.Unmarshal(body, &workflows); err != nil {
		t.Fatalf("decode workflows: %v", err)
	}
	if len(workflows) != 1 || workflows[0].Name != "feature" {
		t.Errorf("workflows = %+v, want the feature workflow", workflows)
	}
}

func TestStandaloneGate(t *testing.T) {
	s := newTestServer(t, echoInvoker())

	rec, body := doJSON(t, s, http.MethodPost, "/api/v1/gate", `{
		"artifacts": [{"type":"document","id":"a.md","content":"clean","step":"implement"}],
		"requirements": {"checks":["structure","security"],"required_checks":["security"]}
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("gate status = %d, body %s", rec.Code, body)
	}
	var res models.GateResult
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Passed {
		t.Errorf("gate failed: %+v", res.Checks)
	}

	rec, _ = doJSON(t, s, http.MethodPost, "/api/v1/gate", `{"artifacts":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty artifacts status = %d, want 400", rec.Code)
	}
}

func TestEventStream(t *testing.T) {
	release := make(chan struct{})
	base := echoInvoker()
	inv := invoker.Func(func(ctx context.Context, agent models.AgentDescriptor, item models.WorkItem) (models.Artifact, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return models.Artifact{}, ctx.Err()
		}
		return base.Invoke(ctx, agent, item)
	})
	s := newTestServer(t, inv)

	ts := httptest.NewServer(s.echo)
	defer ts.Close()

	rec, body := doJSON(t, s, http.MethodPost, "/api/v1/tasks",
		`{"description":"build the widget","workflow":"feature"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d", rec.Code)
	}
	var sub SubmitResponse
	if err := json.Unmarshal(body, &sub); err != nil {
		t.Fatalf("decode: %v", err)
	}

	res, err := http.Get(ts.URL + "/api/v1/tasks/" + sub.TaskID + "/events")
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	defer res.Body.Close()
	if ct := res.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %q, want text/event-stream", ct)
	}

	var kinds []string
	scanner := bufio.NewScanner(res.Body)
	released := false
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "event: ") {
			continue
		}
		kind := strings.TrimPrefix(line, "event: ")
		kinds = append(kinds, kind)
		if !released {
			// The task is held until the subscriber is attached, so the
			// full event sequence is observable.
			close(release)
			released = true
		}
		if kind == string(models.EventTaskCompleted) {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(kinds) == 0 || kinds[0] != string(models.EventConnectionEstablished) {
		t.Fatalf("event kinds = %v, want connection_established first", kinds)
	}
	if kinds[len(kinds)-1] != string(models.EventTaskCompleted) {
		t.Errorf("event kinds = %v, want task_completed last", kinds)
	}
}

func TestUnknownTaskEventStream(t *testing.T) {
	s := newTestServer(t, echoInvoker())
	rec, _ := doJSON(t, s, http.MethodGet, "/api/v1/tasks/nope/events", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
