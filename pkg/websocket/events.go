package websocket

import (
	"sync"
	"sync/atomic"
)

// Subscription identifies one listener registered on an Event.
type Subscription uint64

var lastSubscription atomic.Uint64

// Event is a multicast notification. Emit calls every listener registered at
// the time of the call, in registration order, on the emitting goroutine.
type Event[T any] struct {
	mu        sync.RWMutex
	listeners []listener[T]
}

type listener[T any] struct {
	id Subscription
	fn func(T)
}

// Subscribe registers fn and returns a handle for Unsubscribe.
func (e *Event[T]) Subscribe(fn func(T)) Subscription {
	if fn == nil {
		return 0
	}
	id := Subscription(lastSubscription.Add(1))
	e.mu.Lock()
	e.listeners = append(e.listeners, listener[T]{id: id, fn: fn})
	e.mu.Unlock()
	return id
}

// Unsubscribe removes the listener and reports whether it was registered.
func (e *Event[T]) Unsubscribe(id Subscription) bool {
	if id == 0 {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, l := range e.listeners {
		if l.id != id {
			continue
		}
		list := make([]listener[T], 0, len(e.listeners)-1)
		list = append(list, e.listeners[:i]...)
		e.listeners = append(list, e.listeners[i+1:]...)
		return true
	}
	return false
}

// Clear removes every listener.
func (e *Event[T]) Clear() {
	e.mu.Lock()
	e.listeners = nil
	e.mu.Unlock()
}

// Len returns the number of registered listeners.
func (e *Event[T]) Len() int {
	e.mu.RLock()
	n := len(e.listeners)
	e.mu.RUnlock()
	return n
}

// Emit calls every registered listener with v.
func (e *Event[T]) Emit(v T) {
	e.mu.RLock()
	list := e.listeners
	e.mu.RUnlock()
	for _, l := range list {
		l.fn(v)
	}
}
