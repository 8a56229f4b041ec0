// Test doubles for the pubsub package.
package dummy

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/mcrae/pubsub/pubsub"
)

var ErrUnreachable = errors.New("dummy: unreachable")

// Conn records every notify it receives. Set Fail to simulate a
// subscriber that is reachable but failing at the transport level.
type Conn struct {
	mu     sync.Mutex
	events []*pubsub.Event
	Fail   bool
}

func (c *Conn) Notify(ev *pubsub.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Fail {
		return ErrUnreachable
	}
	c.events = append(c.events, ev)
	return nil
}

// Events returns the notifies received so far.
func (c *Conn) Events() []*pubsub.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	events := make([]*pubsub.Event, len(c.events))
	copy(events, c.events)
	return events
}

// SetFail flips the failure mode.
func (c *Conn) SetFail(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Fail = fail
}
