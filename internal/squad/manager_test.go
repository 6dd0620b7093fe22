package squad

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/forgeworks/squadron/internal/invoker"
	"github.com/forgeworks/squadron/pkg/models"
)

func testSquad(allRequired bool, agents ...models.AgentDescriptor) models.Squad {
	return models.Squad{Name: "backend", AllRequired: allRequired, Agents: agents}
}

func okInvoker(id string) invoker.Invoker {
	return invoker.Func(func(ctx context.Context, agent models.AgentDescriptor, item models.WorkItem) (models.Artifact, error) {
		return models.Artifact{ID: id, Agent: agent.Name, Step: item.Step}, nil
	})
}

func TestRunSquadPartialSuccess(t *testing.T) {
	inv := invoker.Func(func(ctx context.Context, agent models.AgentDescriptor, item models.WorkItem) (models.Artifact, error) {
		if agent.Name == "flaky" {
			return models.Artifact{}, errors.New("model refused")
		}
		return models.Artifact{ID: agent.Name + ".md", Agent: agent.Name}, nil
	})
	m := NewManager(inv, semaphore.NewWeighted(4), nil)

	sq := testSquad(false,
		models.AgentDescriptor{Name: "solid"},
		models.AgentDescriptor{Name: "flaky"},
	)
	res, err := m.RunSquad(context.Background(), sq, models.WorkItem{TaskID: "t1"}, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.OK() {
		t.Errorf("squad should succeed with one agent succeeding: %s", res.Err)
	}
	if res.Succeeded != 1 || res.Failed != 1 {
		t.Errorf("got succeeded=%d failed=%d, want 1/1", res.Succeeded, res.Failed)
	}
	if len(res.Artifacts) != 1 {
		t.Errorf("expected 1 artifact, got %d", len(res.Artifacts))
	}
}

func TestRunSquadAllRequired(t *testing.T) {
	inv := invoker.Func(func(ctx context.Context, agent models.AgentDescriptor, item models.WorkItem) (models.Artifact, error) {
		if agent.Name == "flaky" {
			return models.Artifact{}, errors.New("model refused")
		}
		return models.Artifact{ID: agent.Name + ".md"}, nil
	})
	m := NewManager(inv, semaphore.NewWeighted(4), nil)

	sq := testSquad(true,
		models.AgentDescriptor{Name: "solid"},
		models.AgentDescriptor{Name: "flaky"},
	)
	res, err := m.RunSquad(context.Background(), sq, models.WorkItem{}, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OK() {
		t.Error("all-required squad should fail when any agent fails")
	}
}

func TestRunSquadAllAgentsFail(t *testing.T) {
	inv := invoker.Func(func(ctx context.Context, agent models.AgentDescriptor, item models.WorkItem) (models.Artifact, error) {
		return models.Artifact{}, errors.New("boom")
	})
	m := NewManager(inv, semaphore.NewWeighted(4), nil)

	res, err := m.RunSquad(context.Background(), testSquad(false, models.AgentDescriptor{Name: "a"}), models.WorkItem{}, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OK() {
		t.Error("squad with zero successes should fail")
	}
	if res.Failed != 1 {
		t.Errorf("failed = %d, want 1", res.Failed)
	}
}

func TestRunSquadEmptySquadFails(t *testing.T) {
	m := NewManager(okInvoker("x"), semaphore.NewWeighted(1), nil)
	res, err := m.RunSquad(context.Background(), testSquad(false), models.WorkItem{}, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OK() {
		t.Error("empty squad should fail")
	}
}

func TestRunSquadAgentTimeout(t *testing.T) {
	inv := invoker.Func(func(ctx context.Context, agent models.AgentDescriptor, item models.WorkItem) (models.Artifact, error) {
		if agent.Name == "slow" {
			select {
			case <-ctx.Done():
				return models.Artifact{}, ctx.Err()
			case <-time.After(5 * time.Second):
				return models.Artifact{ID: "late.md"}, nil
			}
		}
		return models.Artifact{ID: "fast.md"}, nil
	})
	m := NewManager(inv, semaphore.NewWeighted(4), nil)

	sq := testSquad(false,
		models.AgentDescriptor{Name: "fast"},
		models.AgentDescriptor{Name: "slow"},
	)
	res, err := m.RunSquad(context.Background(), sq, models.WorkItem{}, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.OK() {
		t.Errorf("timeout of one agent should not fail the squad: %s", res.Err)
	}
	if res.Failed != 1 {
		t.Errorf("timed-out agent should be recorded as failed, got failed=%d", res.Failed)
	}
}

func TestRunSquadCancellation(t *testing.T) {
	started := make(chan struct{})
	inv := invoker.Func(func(ctx context.Context, agent models.AgentDescriptor, item models.WorkItem) (models.Artifact, error) {
		close(started)
		<-ctx.Done()
		return models.Artifact{}, ctx.Err()
	})
	m := NewManager(inv, semaphore.NewWeighted(1), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := m.RunSquad(ctx, testSquad(false, models.AgentDescriptor{Name: "a"}), models.WorkItem{}, 0)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRunSquadBoundedConcurrency(t *testing.T) {
	const limit = 2
	var current, peak atomic.Int64
	inv := invoker.Func(func(ctx context.Context, agent models.AgentDescriptor, item models.WorkItem) (models.Artifact, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		current.Add(-1)
		return models.Artifact{ID: agent.Name}, nil
	})
	m := NewManager(inv, semaphore.NewWeighted(limit), nil)

	agents := make([]models.AgentDescriptor, 8)
	for i := range agents {
		agents[i] = models.AgentDescriptor{Name: string(rune('a' + i))}
	}
	res, err := m.RunSquad(context.Background(), testSquad(false, agents...), models.WorkItem{}, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Succeeded != 8 {
		t.Errorf("succeeded = %d, want 8", res.Succeeded)
	}
	if p := peak.Load(); p > limit {
		t.Errorf("peak concurrency %d exceeded limit %d", p, limit)
	}
}

func TestRunSquadEmitsEvents(t *testing.T) {
	var mu sync.Mutex
	var kinds []models.EventKind
	emit := func(ev models.ProgressEvent) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
	}
	m := NewManager(okInvoker("a.md"), semaphore.NewWeighted(1), emit)

	_, err := m.RunSquad(context.Background(), testSquad(false, models.AgentDescriptor{Name: "a"}), models.WorkItem{TaskID: "t1"}, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(kinds) != 2 {
		t.Fatalf("expected 2 events, got %d", len(kinds))
	}
	if kinds[0] != models.EventAgentsWorking {
		t.Errorf("first event = %s, want agents_working", kinds[0])
	}
	if kinds[1] != models.EventProgressUpdate {
		t.Errorf("second event = %s, want progress_update", kinds[1])
	}
}
