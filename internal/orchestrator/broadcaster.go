package orchestrator

import (
	"sync"
	"sync/atomic"

	"github.com/forgeworks/squadron/pkg/models"
)

// Broadcaster fans a task's progress events out to zero or more
// subscribers over bounded channels. The orchestrator is the single
// producer per task, so subscribers observe events in generation order.
// A slow subscriber never blocks the task: when its buffer is full the
// oldest buffered event is dropped to make room.
type Broadcaster struct {
	mu      sync.Mutex
	subs    map[int]chan models.ProgressEvent
	nextID  int
	buffer  int
	closed  bool
	dropped atomic.Uint64
}

// NewBroadcaster creates a broadcaster with the given per-subscriber
// buffer size.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 100
	}
	return &Broadcaster{
		subs:   make(map[int]chan models.ProgressEvent),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function. There is no replay: events emitted before
// subscription are not delivered.
func (b *Broadcaster) Subscribe() (<-chan models.ProgressEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan models.ProgressEvent, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, unsubscribe
}

// SubscribeWith registers a new subscriber with an initial event
// already in its buffer. The seed is guaranteed to precede any event
// published after registration.
func (b *Broadcaster) SubscribeWith(seed models.ProgressEvent) (<-chan models.ProgressEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan models.ProgressEvent, b.buffer)
	if b.closed {
		ch <- seed
		close(ch)
		return ch, func() {}
	}
	ch <- seed

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, unsubscribe
}

// Publish delivers an event to every subscriber, dropping the oldest
// buffered event of a full subscriber rather than blocking.
func (b *Broadcaster) Publish(ev models.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	for _, ch := range b.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		// Full buffer: drop the oldest and retry once.
		select {
		case <-ch:
			b.dropped.Add(1)
		default:
		}
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns the total number of events dropped across subscribers.
func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes all subscriber channels. Further Publish calls are no-ops.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
