// Package trading is a small stock market demo built as an ordinary
// client of the broker. A Market advertises the two market-wide topics
// and keeps a log of every offer published through it; buyers and
// sellers are traders composed around an agent, settling offers
// first-come-first-serve with a token handshake.
package trading

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/mcrae/pubsub/agent"
	"github.com/mcrae/pubsub/pubsub"
)

const (
	// BuyTopicName carries market-wide offers to buy stock.
	BuyTopicName = "Stock Market Buys"
	// SellTopicName carries market-wide offers to sell stock.
	SellTopicName = "Stock Market Sells"
)

// Market wraps a broker connection. Offers published through it are
// logged in arrival order, one entry per (topic, title) pair, so
// repeated offers with the same title keep the first entry.
type Market struct {
	agent.Server

	// Buys and Sells are the market-wide topics, advertised on creation.
	Buys  *pubsub.Topic
	Sells *pubsub.Topic

	mu   sync.Mutex
	seen map[pubsub.EventKey]bool
	log  []*pubsub.Event
}

// NewMarket advertises the market topics on the broker and returns a
// Server that traders connect through. Topics already advertised by an
// earlier market are reused.
func NewMarket(server agent.Server) (*Market, error) {
	m := &Market{
		Server: server,
		Buys:   pubsub.NewTopic(BuyTopicName, "buy"),
		Sells:  pubsub.NewTopic(SellTopicName, "sell"),
		seen:   make(map[pubsub.EventKey]bool),
	}
	for _, topic := range []*pubsub.Topic{m.Buys, m.Sells} {
		id, err := server.Advertise(topic)
		if err != nil {
			return nil, errors.Wrap(err, "advertising market topic")
		}
		if id == 0 {
			if err := m.adopt(topic); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// adopt looks up an already-advertised topic so its broker id is known.
func (m *Market) adopt(topic *pubsub.Topic) error {
	topics, err := m.Server.Topics()
	if err != nil {
		return errors.Wrap(err, "listing topics")
	}
	for _, t := range topics {
		if t.Name == topic.Name {
			topic.ID = t.ID
			topic.Keywords = t.Keywords
			return nil
		}
	}
	return errors.Errorf("topic %s missing on broker", topic.Name)
}

// Publish forwards to the broker and logs accepted offers.
func (m *Market) Publish(ev *pubsub.Event) (int, error) {
	id, err := m.Server.Publish(ev)
	if err == nil && id != 0 {
		m.mu.Lock()
		if key := ev.Key(); !m.seen[key] {
			m.seen[key] = true
			m.log = append(m.log, ev)
		}
		m.mu.Unlock()
	}
	return id, err
}

// Events returns the logged offers in arrival order.
func (m *Market) Events() []*pubsub.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := make([]*pubsub.Event, len(m.log))
	copy(events, m.log)
	return events
}
