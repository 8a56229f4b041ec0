package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func noopConn() Conn {
	return ConnFunc(func(*Event) error { return nil })
}

func TestRegistryIDsNeverReused(t *testing.T) {
	registry := NewSubscriberRegistry()
	first := registry.RegisterNew(noopConn())
	assert.Equal(t, 1, first)

	registry.Remove(first)
	second := registry.RegisterNew(noopConn())
	assert.Equal(t, 2, second)
}

func TestRegistryOfflineKeepsID(t *testing.T) {
	registry := NewSubscriberRegistry()
	id := registry.RegisterNew(noopConn())

	registry.MarkOffline(id)
	assert.Nil(t, registry.ConnOf(id))
	assert.Equal(t, []int{id}, registry.IDs(), "offline is not removal")

	conn := noopConn()
	registry.Rebind(id, conn)
	assert.NotNil(t, registry.ConnOf(id))
}

func TestRegistryRemove(t *testing.T) {
	registry := NewSubscriberRegistry()
	id := registry.RegisterNew(noopConn())
	registry.Remove(id)
	assert.Nil(t, registry.ConnOf(id))
	assert.Empty(t, registry.IDs())
}

type namedConn struct {
	name string
}

func (c *namedConn) Notify(*Event) error {
	return nil
}

// A connection tearing down after its subscriber rebound elsewhere must
// not clear the fresh binding.
func TestRegistryStaleOfflineIgnored(t *testing.T) {
	registry := NewSubscriberRegistry()
	stale := &namedConn{name: "stale"}
	id := registry.RegisterNew(stale)

	fresh := &namedConn{name: "fresh"}
	registry.Rebind(id, fresh)

	assert.False(t, registry.MarkOfflineIf(id, stale))
	assert.Equal(t, Conn(fresh), registry.ConnOf(id), "fresh binding survives")

	assert.True(t, registry.MarkOfflineIf(id, fresh))
	assert.Nil(t, registry.ConnOf(id))
	assert.False(t, registry.MarkOfflineIf(id, fresh), "already offline")
}

// Rebinding an id the registry has never seen binds it anyway. Historical
// behaviour: a subscriber restored from a snapshot reuses its old id even
// against a freshly started broker.
func TestRegistryRebindUnknownID(t *testing.T) {
	registry := NewSubscriberRegistry()
	registry.Rebind(42, noopConn())
	assert.NotNil(t, registry.ConnOf(42))
}
