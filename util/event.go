package util

import (
	"sync"
	"time"
)

// Event is a one-shot synchronization flag: any number of waiters block
// until Set is called once. Later Sets are no-ops.
type Event struct {
	mu   sync.Mutex
	done chan struct{}
	set  bool
}

func NewEvent() *Event {
	return &Event{done: make(chan struct{})}
}

// Set marks the event and releases all waiters. Returns whether it was
// already set.
func (e *Event) Set() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.set {
		return true
	}
	e.set = true
	close(e.done)
	return false
}

// Wait blocks until the event is set.
func (e *Event) Wait() {
	<-e.done
}

// WaitTimeout blocks until the event is set or the timeout passes, and
// reports whether the event was set.
func (e *Event) WaitTimeout(d time.Duration) bool {
	select {
	case <-e.done:
		return true
	case <-time.After(d):
		return false
	}
}

// IsSet reports whether Set has been called.
func (e *Event) IsSet() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.set
}
