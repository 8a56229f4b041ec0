package agent

import "github.com/mcrae/pubsub/pubsub"

// Notify is the callback invoked for each event delivered to the agent.
type Notify func(ev *pubsub.Event)

// Server is the broker surface the agent talks to. Errors mean the
// broker could not be reached and the call is safe to retry; rejections
// (duplicate topic, unknown id) come back as zero/false values.
type Server interface {
	Register(notify Notify) (int, error)
	Rebind(id int, notify Notify) error
	Advertise(topic *pubsub.Topic) (int, error)
	SubscribeTopic(subID, topicID int) (bool, error)
	SubscribeKeyword(subID int, keyword string) (bool, error)
	UnsubscribeTopic(subID, topicID int) (bool, error)
	UnsubscribeKeyword(subID int, keyword string) (bool, error)
	UnsubscribeAll(subID int) (bool, error)
	Publish(ev *pubsub.Event) (int, error)
	Topics() ([]*pubsub.Topic, error)
	Offline(id int) error
	Remove(id int) error
}
