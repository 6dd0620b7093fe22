package orchestrator

import (
	"fmt"
	"testing"

	"github.com/forgeworks/squadron/pkg/models"
)

func TestBroadcasterDeliversInOrder(t *testing.T) {
	b := NewBroadcaster(8)
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	for i := 0; i < 5; i++ {
		b.Publish(models.ProgressEvent{Kind: models.EventProgressUpdate, Progress: i})
	}

	for i := 0; i < 5; i++ {
		ev := <-ch
		if ev.Progress != i {
			t.Fatalf("event %d progress = %d, want %d", i, ev.Progress, i)
		}
	}
}

func TestBroadcasterDropsOldestWhenFull(t *testing.T) {
	b := NewBroadcaster(2)
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	for i := 0; i < 5; i++ {
		b.Publish(models.ProgressEvent{Kind: models.EventProgressUpdate, Progress: i})
	}

	// Buffer holds the two newest events; the three oldest were dropped.
	first := <-ch
	second := <-ch
	if first.Progress != 3 || second.Progress != 4 {
		t.Errorf("got progress %d, %d; want 3, 4", first.Progress, second.Progress)
	}
	if b.Dropped() != 3 {
		t.Errorf("dropped = %d, want 3", b.Dropped())
	}
}

func TestBroadcasterSubscribeWithSeedsFirst(t *testing.T) {
	b := NewBroadcaster(8)
	ch, unsubscribe := b.SubscribeWith(models.ProgressEvent{Kind: models.EventConnectionEstablished})
	defer unsubscribe()

	b.Publish(models.ProgressEvent{Kind: models.EventProgressUpdate})

	first := <-ch
	if first.Kind != models.EventConnectionEstablished {
		t.Errorf("first event = %s, want connection_established", first.Kind)
	}
	second := <-ch
	if second.Kind != models.EventProgressUpdate {
		t.Errorf("second event = %s, want progress_update", second.Kind)
	}
}

func TestBroadcasterCloseEndsStreams(t *testing.T) {
	b := NewBroadcaster(4)
	ch, _ := b.Subscribe()
	b.Publish(models.ProgressEvent{Kind: models.EventTaskCompleted})
	b.Close()

	var kinds []models.EventKind
	for ev := range ch {
		kinds = append(kinds, ev.Kind)
	}
	if len(kinds) != 1 || kinds[0] != models.EventTaskCompleted {
		t.Errorf("drained %v, want the single pre-close event", kinds)
	}

	// Publishing after close is a no-op, and new subscribers get a
	// closed channel.
	b.Publish(models.ProgressEvent{Kind: models.EventProgressUpdate})
	late, _ := b.Subscribe()
	if _, ok := <-late; ok {
		t.Error("subscriber on a closed broadcaster received an event")
	}
}

func TestBroadcasterUnsubscribeIsIdempotent(t *testing.T) {
	b := NewBroadcaster(4)
	_, unsubscribe := b.Subscribe()
	unsubscribe()
	unsubscribe()

	// Remaining subscriber is unaffected.
	ch, cancel := b.Subscribe()
	defer cancel()
	b.Publish(models.ProgressEvent{Kind: models.EventTaskStarted})
	if ev := <-ch; ev.Kind != models.EventTaskStarted {
		t.Errorf("got %s, want task_started", ev.Kind)
	}
}

func TestBroadcasterManySubscribers(t *testing.T) {
	b := NewBroadcaster(16)
	var chans []<-chan models.ProgressEvent
	for i := 0; i < 4; i++ {
		ch, unsubscribe := b.Subscribe()
		defer unsubscribe()
		chans = append(chans, ch)
	}

	b.Publish(models.ProgressEvent{Kind: models.EventTaskStarted, Message: "shared"})
	for i, ch := range chans {
		ev := <-ch
		if ev.Message != "shared" {
			t.Errorf("subscriber %d got %q", i, fmt.Sprintf("%v", ev.Message))
		}
	}
}
