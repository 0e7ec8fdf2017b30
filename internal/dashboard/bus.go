package dashboard

import (
	"sort"
	"sync"
)

// Handler receives every dispatched action.
type Handler func(Action)

// Bus is the single dispatch point for dashboard mutations.
type Bus interface {
	// Dispatch delivers a to every subscribed handler.
	Dispatch(a Action)

	// Subscribe registers h and returns an id for Unsubscribe. Handlers run
	// in subscription order.
	Subscribe(h Handler) int

	// Unsubscribe removes a handler.
	Unsubscribe(id int)
}

// SyncBus processes actions one at a time in dispatch order. A Dispatch made
// while another action is being handled (from a handler or from another
// goroutine) is queued and drained by the call already in progress, so no
// handler ever observes a half-applied action.
type SyncBus struct {
	mu       sync.Mutex
	queue    []Action
	draining bool

	subsMu    sync.Mutex
	nextSubID int
	handlers  map[int]Handler
}

var _ Bus = (*SyncBus)(nil)

// NewSyncBus creates an empty bus.
func NewSyncBus() *SyncBus {
	return &SyncBus{handlers: make(map[int]Handler)}
}

// Dispatch enqueues a and, unless a drain is already running, processes the
// queue until it is empty.
func (b *SyncBus) Dispatch(a Action) {
	b.mu.Lock()
	b.queue = append(b.queue, a)
	if b.draining {
		b.mu.Unlock()
		return
	}
	b.draining = true
	for len(b.queue) > 0 {
		next := b.queue[0]
		b.queue = b.queue[1:]
		b.mu.Unlock()

		for _, h := range b.snapshotHandlers() {
			h(next)
		}

		b.mu.Lock()
	}
	b.draining = false
	b.mu.Unlock()
}

// Subscribe registers a handler.
func (b *SyncBus) Subscribe(h Handler) int {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	id := b.nextSubID
	b.nextSubID++
	b.handlers[id] = h
	return id
}

// Unsubscribe removes a handler.
func (b *SyncBus) Unsubscribe(id int) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	delete(b.handlers, id)
}

func (b *SyncBus) snapshotHandlers() []Handler {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	ids := make([]int, 0, len(b.handlers))
	for id := range b.handlers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Handler, len(ids))
	for i, id := range ids {
		out[i] = b.handlers[id]
	}
	return out
}
