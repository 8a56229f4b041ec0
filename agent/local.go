package agent

import "github.com/mcrae/pubsub/pubsub"

// Local adapts an in-process broker to the Server interface. Used when
// broker and clients share a process, and by tests.
type Local struct {
	Broker *pubsub.Broker
}

func (l Local) conn(notify Notify) pubsub.Conn {
	return pubsub.ConnFunc(func(ev *pubsub.Event) error {
		notify(ev)
		return nil
	})
}

func (l Local) Register(notify Notify) (int, error) {
	return l.Broker.RegisterSubscriber(l.conn(notify)), nil
}

func (l Local) Rebind(id int, notify Notify) error {
	l.Broker.Rebind(id, l.conn(notify))
	return nil
}

func (l Local) Advertise(topic *pubsub.Topic) (int, error) {
	return l.Broker.AdvertiseTopic(topic), nil
}

func (l Local) SubscribeTopic(subID, topicID int) (bool, error) {
	return l.Broker.SubscribeTopic(subID, topicID), nil
}

func (l Local) SubscribeKeyword(subID int, keyword string) (bool, error) {
	return l.Broker.SubscribeKeyword(subID, keyword), nil
}

func (l Local) UnsubscribeTopic(subID, topicID int) (bool, error) {
	return l.Broker.UnsubscribeTopic(subID, topicID), nil
}

func (l Local) UnsubscribeKeyword(subID int, keyword string) (bool, error) {
	return l.Broker.UnsubscribeKeyword(subID, keyword), nil
}

func (l Local) UnsubscribeAll(subID int) (bool, error) {
	return l.Broker.UnsubscribeAll(subID), nil
}

func (l Local) Publish(ev *pubsub.Event) (int, error) {
	return l.Broker.Publish(ev), nil
}

func (l Local) Topics() ([]*pubsub.Topic, error) {
	return l.Broker.Topics(), nil
}

func (l Local) Offline(id int) error {
	l.Broker.MarkOffline(id)
	return nil
}

func (l Local) Remove(id int) error {
	l.Broker.RemovePermanently(id)
	return nil
}
