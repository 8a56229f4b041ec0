package pubsub

import (
	"fmt"
	"strings"
	"sync"
)

// Topic is a named channel of events carrying a default keyword set. Two
// topics are the same topic iff their names match - keywords are not part
// of the identity. The id is assigned by the broker on registration; 0
// means not yet registered.
type Topic struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
}

func NewTopic(name string, keywords ...string) *Topic {
	return &Topic{Name: name, Keywords: keywords}
}

func (t *Topic) Equal(other *Topic) bool {
	return t.Name == other.Name
}

func (t *Topic) String() string {
	return fmt.Sprintf("Topic %d-%s [%s]", t.ID, t.Name, strings.Join(t.Keywords, ","))
}

// topicContainer pairs a topic with its subscriber set. The subscriber set
// has its own lock so that subscribing to one topic never blocks
// subscribing to another.
type topicContainer struct {
	topic       *Topic
	mu          sync.Mutex
	subscribers *idSet
}

func newTopicContainer(topic *Topic) *topicContainer {
	return &topicContainer{topic: topic, subscribers: newIDSet()}
}

func (tc *topicContainer) addSubscriber(subID int) bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.subscribers.Add(subID)
}

func (tc *topicContainer) removeSubscriber(subID int) bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.subscribers.Remove(subID)
}

func (tc *topicContainer) subscriberIDs() []int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.subscribers.IDs()
}

// TopicIndex is the registry of topics and, per topic, its subscribers.
// The index lock covers topic registration and lookup only; per-topic
// subscriber sets are locked independently.
type TopicIndex struct {
	mu         sync.Mutex
	containers []*topicContainer
	byName     map[string]*topicContainer
	byID       map[int]*topicContainer
	nextID     int
}

func NewTopicIndex() *TopicIndex {
	return &TopicIndex{
		byName: map[string]*topicContainer{},
		byID:   map[int]*topicContainer{},
	}
}

// Register adds the topic and assigns it a fresh id, or returns 0 if a
// topic with the same name already exists. The id is written back onto
// the topic.
func (x *TopicIndex) Register(topic *Topic) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, exists := x.byName[topic.Name]; exists {
		return 0
	}
	x.nextID++
	topic.ID = x.nextID
	tc := newTopicContainer(topic)
	x.containers = append(x.containers, tc)
	x.byName[topic.Name] = tc
	x.byID[topic.ID] = tc
	return topic.ID
}

func (x *TopicIndex) container(topicID int) *topicContainer {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.byID[topicID]
}

// Topic returns the registered topic for an id, or nil.
func (x *TopicIndex) Topic(topicID int) *Topic {
	if tc := x.container(topicID); tc != nil {
		return tc.topic
	}
	return nil
}

// AddSubscriber returns false if the topic is unknown or the subscriber is
// already present.
func (x *TopicIndex) AddSubscriber(topicID, subID int) bool {
	tc := x.container(topicID)
	if tc == nil {
		return false
	}
	return tc.addSubscriber(subID)
}

// RemoveSubscriber returns false if the topic is unknown or the subscriber
// was not present.
func (x *TopicIndex) RemoveSubscriber(topicID, subID int) bool {
	tc := x.container(topicID)
	if tc == nil {
		return false
	}
	return tc.removeSubscriber(subID)
}

// RemoveSubscriberAll removes the subscriber from every topic.
func (x *TopicIndex) RemoveSubscriberAll(subID int) {
	for _, tc := range x.all() {
		tc.removeSubscriber(subID)
	}
}

// SubscribersOf returns a snapshot of the subscriber ids of a topic, in
// subscription order.
func (x *TopicIndex) SubscribersOf(topicID int) []int {
	tc := x.container(topicID)
	if tc == nil {
		return nil
	}
	return tc.subscriberIDs()
}

// Topics lists the registered topics in registration order.
func (x *TopicIndex) Topics() []*Topic {
	topics := []*Topic{}
	for _, tc := range x.all() {
		topics = append(topics, tc.topic)
	}
	return topics
}

func (x *TopicIndex) all() []*topicContainer {
	x.mu.Lock()
	defer x.mu.Unlock()
	containers := make([]*topicContainer, len(x.containers))
	copy(containers, x.containers)
	return containers
}
