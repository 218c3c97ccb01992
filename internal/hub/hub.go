// Package hub delivers post-commit notifications to registered observers.
//
// Observers are invoked in registration order, synchronously, and always
// after the store's lock has been released — an observer is expected to
// re-read the store rather than rely on captured values. A failing observer
// (error or panic) never blocks the remaining observers and never reaches
// the caller that triggered the mutation.
package hub

import (
	"context"
	"log/slog"
	"sync"
)

// Observer is called after a batch of mutations commits. changed carries the
// tickers touched by the commit; the observer re-reads current state from
// the store.
type Observer func(ctx context.Context, changed []string) error

// Subscription is the handle returned by Register. Callers that want
// deduplication track their own handles; the hub does not deduplicate.
type Subscription struct {
	id int64
}

type entry struct {
	sub  *Subscription
	name string
	fn   Observer
}

// Hub holds the observer registry.
type Hub struct {
	mu        sync.RWMutex
	observers []entry
	nextID    int64

	// OnObserverError is an optional metrics hook, called with the observer
	// name whenever an observer returns an error or panics.
	OnObserverError func(name string)
}

// New creates an empty Hub.
func New() *Hub {
	return &Hub{}
}

// Register appends an observer to the registry and returns its handle.
// Registering the same function twice means it runs twice per commit.
func (h *Hub) Register(name string, fn Observer) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &Subscription{id: h.nextID}
	h.observers = append(h.observers, entry{sub: sub, name: name, fn: fn})
	return sub
}

// Unregister removes the observer identified by sub. Returns false if the
// subscription is unknown (already removed or never registered).
func (h *Hub) Unregister(sub *Subscription) bool {
	if sub == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, e := range h.observers {
		if e.sub == sub {
			h.observers = append(h.observers[:i], h.observers[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of registered observers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// Notify invokes every observer in registration order. Call it only after
// the mutating lock window has been released; observers commonly read the
// store, and invoking them under the store lock would deadlock.
func (h *Hub) Notify(ctx context.Context, changed []string) {
	h.mu.RLock()
	snapshot := make([]entry, len(h.observers))
	copy(snapshot, h.observers)
	h.mu.RUnlock()

	for _, e := range snapshot {
		h.invoke(ctx, e, changed)
	}
}

// invoke runs one observer with failure isolation.
func (h *Hub) invoke(ctx context.Context, e entry, changed []string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("observer panicked", "observer", e.name, "panic", r)
			if h.OnObserverError != nil {
				h.OnObserverError(e.name)
			}
		}
	}()

	if err := e.fn(ctx, changed); err != nil {
		slog.Warn("observer failed", "observer", e.name, "err", err)
		if h.OnObserverError != nil {
			h.OnObserverError(e.name)
		}
	}
}
