package pubsub

import (
	"fmt"
	"strings"
	"sync"
)

// Event is one published message. It carries the list of subscriber ids
// still waiting to receive it; the pending set is fixed at publish time
// and only ever shrinks. The id is assigned by the broker on publish; 0
// means not yet published.
type Event struct {
	ID       int      `json:"id"`
	Topic    *Topic   `json:"topic"`
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Keywords []string `json:"keywords"`

	mu      sync.Mutex
	pending *idSet
}

// NewEvent creates an event on a topic. If no keywords are given the
// topic's keywords are used for content filtering.
func NewEvent(topic *Topic, title, content string, keywords ...string) *Event {
	if len(keywords) == 0 {
		keywords = topic.Keywords
	}
	return &Event{
		Topic:    topic,
		Title:    title,
		Content:  content,
		Keywords: keywords,
		pending:  newIDSet(),
	}
}

// EventKey is the identity of an event: topic name and title. Content is
// deliberately not part of it - two events with the same title under the
// same topic collapse to one in any key-based store.
type EventKey struct {
	Topic string
	Title string
}

func (e *Event) Key() EventKey {
	return EventKey{Topic: e.Topic.Name, Title: e.Title}
}

func (e *Event) Equal(other *Event) bool {
	return e.Key() == other.Key()
}

func (e *Event) String() string {
	return fmt.Sprintf("Event %d-%s on %d-%s [%s]: %s",
		e.ID, e.Title, e.Topic.ID, e.Topic.Name, strings.Join(e.Keywords, ","), e.Content)
}

// addRecipients merges subscriber ids into the pending set, collapsing
// duplicates.
func (e *Event) addRecipients(ids []int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		e.pending = newIDSet()
	}
	for _, id := range ids {
		e.pending.Add(id)
	}
}

// Pending returns a snapshot of the recipients still to be notified, in
// insertion order. Safe to iterate while deliveries remove ids.
func (e *Event) Pending() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		return nil
	}
	return e.pending.IDs()
}

func (e *Event) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		return 0
	}
	return e.pending.Size()
}

func (e *Event) delivered(subID int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending != nil {
		e.pending.Remove(subID)
	}
}
