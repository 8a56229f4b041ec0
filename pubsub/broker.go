// Package pubsub implements a topic and content based publish/subscribe
// broker. Publishers advertise topics and publish events; subscribers
// register by topic or by free-form keyword. Delivery is at-least-once:
// an event that cannot reach a subscriber stays queued and is retried in
// the background until the subscriber comes back.
package pubsub

import (
	"log"
	"sync"
	"time"
)

// DefaultRetryInterval is the pause between background delivery rounds.
const DefaultRetryInterval = time.Second

// Broker composes the topic index, the content filter, the subscriber
// registry and the delivery engine into the publish/subscribe operations
// exposed over the wire.
type Broker struct {
	// RetryInterval is read when Start is called.
	RetryInterval time.Duration

	topics   *TopicIndex
	filter   *ContentFilterIndex
	registry *SubscriberRegistry

	eventMu     sync.Mutex
	nextEventID int

	pendingMu sync.Mutex
	pending   []*Event
	wake      chan struct{}

	stopping chan struct{}
	stopped  chan struct{}
	startMu  sync.Mutex
	running  bool
}

func NewBroker() *Broker {
	return &Broker{
		RetryInterval: DefaultRetryInterval,
		topics:        NewTopicIndex(),
		filter:        NewContentFilterIndex(),
		registry:      NewSubscriberRegistry(),
		wake:          make(chan struct{}, 1),
	}
}

// Start launches the background retry worker.
func (b *Broker) Start() {
	b.startMu.Lock()
	defer b.startMu.Unlock()
	if b.running {
		return
	}
	b.running = true
	b.stopping = make(chan struct{})
	b.stopped = make(chan struct{})
	go b.retryLoop()
}

// Stop shuts down the retry worker and waits for it to exit. Pending
// events stay queued and resume retrying on the next Start.
func (b *Broker) Stop() {
	b.startMu.Lock()
	defer b.startMu.Unlock()
	if !b.running {
		return
	}
	b.running = false
	close(b.stopping)
	<-b.stopped
}

// RegisterSubscriber binds a first-time subscriber and returns its id.
func (b *Broker) RegisterSubscriber(conn Conn) int {
	return b.registry.RegisterNew(conn)
}

// Rebind restores the connection of a returning subscriber under its old
// id and returns that id.
func (b *Broker) Rebind(id int, conn Conn) int {
	b.registry.Rebind(id, conn)
	return id
}

// MarkOffline records that a subscriber is temporarily away. Its
// subscriptions are kept.
func (b *Broker) MarkOffline(id int) {
	b.registry.MarkOffline(id)
}

// MarkOfflineIf records the subscriber as away only if conn is still its
// current connection, and reports whether it did. Transport teardown uses
// this so a lingering old connection cannot knock a rebound subscriber
// back offline.
func (b *Broker) MarkOfflineIf(id int, conn Conn) bool {
	return b.registry.MarkOfflineIf(id, conn)
}

// RemovePermanently forgets a subscriber and removes it from every topic
// and keyword. The id is never reused.
func (b *Broker) RemovePermanently(id int) {
	b.registry.Remove(id)
	b.topics.RemoveSubscriberAll(id)
	b.filter.RemoveSubscriberAll(id)
}

// AdvertiseTopic registers a topic and returns its assigned id, or 0 if a
// topic of that name already exists.
func (b *Broker) AdvertiseTopic(topic *Topic) int {
	id := b.topics.Register(topic)
	if id != 0 {
		log.Printf("advertised %s", topic)
	}
	return id
}

// SubscribeTopic returns false if the topic is unknown or the subscriber
// is already subscribed.
func (b *Broker) SubscribeTopic(subID, topicID int) bool {
	return b.topics.AddSubscriber(topicID, subID)
}

// SubscribeKeyword returns false if the subscriber already follows the
// keyword.
func (b *Broker) SubscribeKeyword(subID int, keyword string) bool {
	return b.filter.AddSubscriber(keyword, subID)
}

// UnsubscribeTopic returns false if the topic is unknown or the
// subscriber was not subscribed.
func (b *Broker) UnsubscribeTopic(subID, topicID int) bool {
	return b.topics.RemoveSubscriber(topicID, subID)
}

// UnsubscribeKeyword returns false if the subscriber did not follow the
// keyword.
func (b *Broker) UnsubscribeKeyword(subID int, keyword string) bool {
	return b.filter.RemoveSubscriber(keyword, subID)
}

// UnsubscribeAll removes the subscriber from every topic and keyword but
// keeps it registered.
func (b *Broker) UnsubscribeAll(subID int) bool {
	b.topics.RemoveSubscriberAll(subID)
	b.filter.RemoveSubscriberAll(subID)
	return true
}

// Topics lists the advertised topics in registration order.
func (b *Broker) Topics() []*Topic {
	return b.topics.Topics()
}

// Topic returns a registered topic by id, or nil.
func (b *Broker) Topic(topicID int) *Topic {
	return b.topics.Topic(topicID)
}

// Subscribers reports the current topic and keyword memberships, for the
// operator surface.
func (b *Broker) Subscribers() (topics map[string][]int, keywords map[string][]int) {
	topics = map[string][]int{}
	for _, t := range b.topics.Topics() {
		topics[t.Name] = b.topics.SubscribersOf(t.ID)
	}
	keywords = map[string][]int{}
	for _, k := range b.filter.Keywords() {
		keywords[k] = b.filter.SubscribersOf(k)
	}
	return
}

// SubscriberIDs lists the registered subscriber ids.
func (b *Broker) SubscriberIDs() []int {
	return b.registry.IDs()
}

// ConnAlive reports whether the subscriber currently has a connection.
func (b *Broker) ConnAlive(id int) bool {
	return b.registry.ConnOf(id) != nil
}

func (b *Broker) nextEvent() int {
	b.eventMu.Lock()
	defer b.eventMu.Unlock()
	b.nextEventID++
	return b.nextEventID
}
