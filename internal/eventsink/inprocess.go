package eventsink

import "sync"

// EventHandler receives a published TaskStateChange.
type EventHandler func(change TaskStateChange)

// InProcess is an EventSink that broadcasts to in-process subscribers via a
// subscriber map. Subscribers are meant to be composed at construction, not
// discovered at runtime, though Subscribe/Unsubscribe remain available for
// wiring tests.
type InProcess struct {
	mu          sync.RWMutex
	subscribers map[string]EventHandler
}

// NewInProcess creates an EventSink with no subscribers.
func NewInProcess() *InProcess {
	return &InProcess{subscribers: make(map[string]EventHandler)}
}

// Subscribe registers a handler under id. Handlers should be non-blocking:
// Publish calls them synchronously and in no particular order.
func (b *InProcess) Subscribe(id string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[id] = handler
}

// Unsubscribe removes a handler.
func (b *InProcess) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, id)
}

// Publish broadcasts change to every subscriber.
func (b *InProcess) Publish(change TaskStateChange) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, handler := range b.subscribers {
		handler(change)
	}
}
