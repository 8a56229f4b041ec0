// Package agent is the client side of the broker: one Agent serves as
// both publisher and subscriber. Remote actions are queued on a small
// worker pool and retried with a bounded attempt count, so a briefly
// unreachable broker is endured rather than surfaced.
package agent

import (
	"log"
	"sync"
	"time"

	"github.com/mcrae/pubsub/pubsub"
	"github.com/mcrae/pubsub/util"
)

const (
	// DefaultMaxTries is how often an action is attempted before giving up.
	DefaultMaxTries = 100
	// DefaultRetryInterval is the pause between attempts.
	DefaultRetryInterval = time.Second

	poolWorkers = 4
	poolBacklog = 64
)

// Agent tracks its server-assigned id, its subscriptions and everything
// it has published or received.
type Agent struct {
	MaxTries      int
	RetryInterval time.Duration
	// OnEvent, when set, is called for every event delivered to the agent.
	OnEvent func(ev *pubsub.Event)

	server Server
	pool   *TaskPool

	mu        sync.Mutex
	id        int
	topics    []*pubsub.Topic
	keywords  []string
	received  []*pubsub.Event
	pubTopics []*pubsub.Topic
	pubEvents []*pubsub.Event
}

func newAgent(server Server) *Agent {
	return &Agent{
		MaxTries:      DefaultMaxTries,
		RetryInterval: DefaultRetryInterval,
		server:        server,
		pool:          NewTaskPool(poolWorkers, poolBacklog),
	}
}

// New registers a first-time agent with the broker.
func New(server Server) (*Agent, error) {
	a := newAgent(server)
	id, err := server.Register(a.notify)
	if err != nil {
		a.pool.Close()
		return nil, err
	}
	a.id = id
	return a, nil
}

func (a *Agent) notify(ev *pubsub.Event) {
	a.mu.Lock()
	a.received = append(a.received, ev)
	hook := a.OnEvent
	a.mu.Unlock()
	if hook != nil {
		hook(ev)
	}
}

// ID assigned by the broker.
func (a *Agent) ID() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.id
}

func (a *Agent) submit(name string, fn func() error) *util.Event {
	return a.pool.Submit(name, a.MaxTries, a.RetryInterval, fn)
}

// Subscribe to a topic.
func (a *Agent) Subscribe(topic *pubsub.Topic) *util.Event {
	return a.submit("subscribe to topic "+topic.Name, func() error {
		ok, err := a.server.SubscribeTopic(a.ID(), topic.ID)
		if err != nil {
			return err
		}
		if ok {
			a.mu.Lock()
			a.topics = append(a.topics, topic)
			a.mu.Unlock()
		}
		return nil
	})
}

// SubscribeKeyword subscribes to a content keyword.
func (a *Agent) SubscribeKeyword(keyword string) *util.Event {
	return a.submit("subscribe to keyword "+keyword, func() error {
		ok, err := a.server.SubscribeKeyword(a.ID(), keyword)
		if err != nil {
			return err
		}
		if ok {
			a.mu.Lock()
			a.keywords = append(a.keywords, keyword)
			a.mu.Unlock()
		}
		return nil
	})
}

// Unsubscribe from a topic.
func (a *Agent) Unsubscribe(topic *pubsub.Topic) *util.Event {
	return a.submit("unsubscribe from topic "+topic.Name, func() error {
		ok, err := a.server.UnsubscribeTopic(a.ID(), topic.ID)
		if err != nil {
			return err
		}
		if ok {
			a.mu.Lock()
			a.topics = removeTopic(a.topics, topic)
			a.mu.Unlock()
		}
		return nil
	})
}

// UnsubscribeKeyword stops following a keyword.
func (a *Agent) UnsubscribeKeyword(keyword string) *util.Event {
	return a.submit("unsubscribe from keyword "+keyword, func() error {
		ok, err := a.server.UnsubscribeKeyword(a.ID(), keyword)
		if err != nil {
			return err
		}
		if ok {
			a.mu.Lock()
			a.keywords = removeString(a.keywords, keyword)
			a.mu.Unlock()
		}
		return nil
	})
}

// UnsubscribeAll drops every topic and keyword subscription.
func (a *Agent) UnsubscribeAll() *util.Event {
	return a.submit("full unsubscribe", func() error {
		ok, err := a.server.UnsubscribeAll(a.ID())
		if err != nil {
			return err
		}
		if ok {
			a.mu.Lock()
			a.topics = nil
			a.keywords = nil
			a.mu.Unlock()
		}
		return nil
	})
}

// Advertise a new topic. The broker writes the assigned id onto the
// topic; a duplicate name is reported and dropped.
func (a *Agent) Advertise(topic *pubsub.Topic) *util.Event {
	return a.submit("advertise topic "+topic.Name, func() error {
		id, err := a.server.Advertise(topic)
		if err != nil {
			return err
		}
		if id == 0 {
			log.Printf("Topic %s already exists on server", topic.Name)
			return nil
		}
		a.mu.Lock()
		a.pubTopics = append(a.pubTopics, topic)
		a.mu.Unlock()
		return nil
	})
}

// Publish an event. The broker writes the assigned id onto the event.
func (a *Agent) Publish(ev *pubsub.Event) *util.Event {
	return a.submit("publish event "+ev.Title, func() error {
		id, err := a.server.Publish(ev)
		if err != nil {
			return err
		}
		if id != 0 {
			a.mu.Lock()
			a.pubEvents = append(a.pubEvents, ev)
			a.mu.Unlock()
		}
		return nil
	})
}

// PublishWait publishes and blocks until the action settles, returning
// the assigned event id (0 on rejection or give-up).
func (a *Agent) PublishWait(ev *pubsub.Event) int {
	a.Publish(ev).Wait()
	return ev.ID
}

// Topics lists the topics advertised on the broker.
func (a *Agent) Topics() ([]*pubsub.Topic, error) {
	return a.server.Topics()
}

// FindTopic looks a topic up by name on the broker.
func (a *Agent) FindTopic(name string) (*pubsub.Topic, error) {
	topics, err := a.server.Topics()
	if err != nil {
		return nil, err
	}
	for _, topic := range topics {
		if topic.Name == name {
			return topic, nil
		}
	}
	return nil, nil
}

// Received returns the events delivered so far.
func (a *Agent) Received() []*pubsub.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	events := make([]*pubsub.Event, len(a.received))
	copy(events, a.received)
	return events
}

// SubscribedTopics returns the topics this agent subscribed to.
func (a *Agent) SubscribedTopics() []*pubsub.Topic {
	a.mu.Lock()
	defer a.mu.Unlock()
	topics := make([]*pubsub.Topic, len(a.topics))
	copy(topics, a.topics)
	return topics
}

// SubscribedKeywords returns the keywords this agent follows.
func (a *Agent) SubscribedKeywords() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	keywords := make([]string, len(a.keywords))
	copy(keywords, a.keywords)
	return keywords
}

// Published returns the events this agent has published.
func (a *Agent) Published() []*pubsub.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	events := make([]*pubsub.Event, len(a.pubEvents))
	copy(events, a.pubEvents)
	return events
}

// GoOffline tells the broker the agent is away but will return.
func (a *Agent) GoOffline() error {
	return a.server.Offline(a.ID())
}

// Quit removes the agent from the broker for good and stops the pool.
func (a *Agent) Quit() error {
	err := a.server.Remove(a.ID())
	a.pool.Close()
	return err
}

// Close stops the worker pool, waiting for queued actions.
func (a *Agent) Close() {
	a.pool.Close()
}

func removeTopic(topics []*pubsub.Topic, topic *pubsub.Topic) []*pubsub.Topic {
	var ret []*pubsub.Topic
	for _, t := range topics {
		if !t.Equal(topic) {
			ret = append(ret, t)
		}
	}
	return ret
}

func removeString(values []string, value string) []string {
	var ret []string
	for _, v := range values {
		if v != value {
			ret = append(ret, v)
		}
	}
	return ret
}
