package pubsub

import (
	"sort"
	"sync"
)

// Conn is the live connection handle used to reach a subscriber. Notify
// returns an error when the subscriber is unreachable; the broker treats
// that as transient and retries later.
type Conn interface {
	Notify(ev *Event) error
}

// ConnFunc adapts a function to the Conn interface.
type ConnFunc func(ev *Event) error

func (f ConnFunc) Notify(ev *Event) error {
	return f(ev)
}

// SubscriberRegistry allocates subscriber ids and tracks each id's
// connection. An id with a nil connection is offline but still known: its
// subscriptions stay in place until it rebinds or is removed for good.
// Ids are never reused.
type SubscriberRegistry struct {
	mu     sync.Mutex
	conns  map[int]Conn
	nextID int
}

func NewSubscriberRegistry() *SubscriberRegistry {
	return &SubscriberRegistry{conns: map[int]Conn{}}
}

// RegisterNew allocates the next id and binds the connection to it.
func (r *SubscriberRegistry) RegisterNew(conn Conn) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.conns[r.nextID] = conn
	return r.nextID
}

// Rebind restores the connection of a subscriber returning after being
// offline. No new id is allocated.
func (r *SubscriberRegistry) Rebind(id int, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = conn
}

// MarkOffline clears the connection but keeps the id registered.
func (r *SubscriberRegistry) MarkOffline(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, known := r.conns[id]; known {
		r.conns[id] = nil
	}
}

// MarkOfflineIf clears the connection only if it is still the given one,
// and reports whether it did. A stale connection tearing down after the
// subscriber already rebound must not clobber the fresh binding.
func (r *SubscriberRegistry) MarkOfflineIf(id int, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, known := r.conns[id]; known && current == conn {
		r.conns[id] = nil
		return true
	}
	return false
}

// Remove forgets the id entirely. The counter never goes back, so the id
// will not be handed to anyone else.
func (r *SubscriberRegistry) Remove(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

// ConnOf returns the connection for an id, or nil if offline or unknown.
func (r *SubscriberRegistry) ConnOf(id int) Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[id]
}

// IDs lists the known subscriber ids in allocation order.
func (r *SubscriberRegistry) IDs() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := []int{}
	for id := range r.conns {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
