package pubsub

import (
	"log"
	"time"
)

// Publish resolves the event's recipients, delivers to everyone reachable
// right now, queues the rest for background retry, and returns the
// assigned event id. It returns 0 if the event was already published or
// its topic is unknown; both are caller errors and are not retried.
func (b *Broker) Publish(ev *Event) int {
	if ev.ID != 0 {
		log.Printf("event %q has already been published", ev.Title)
		return 0
	}
	topic := b.topics.Topic(ev.Topic.ID)
	if topic == nil {
		log.Printf("event %q topic not found", ev.Title)
		return 0
	}

	ev.ID = b.nextEvent()
	// Recipients are fixed here: topic subscribers plus keyword
	// subscribers, duplicates collapse. Later subscribers do not receive
	// already published events.
	ev.addRecipients(b.topics.SubscribersOf(topic.ID))
	for _, keyword := range ev.Keywords {
		ev.addRecipients(b.filter.SubscribersOf(keyword))
	}

	if b.attemptDelivery(ev) > 0 {
		b.enqueue(ev)
	}
	return ev.ID
}

// attemptDelivery makes one notify pass over the event's pending
// recipients and returns how many are still waiting. Offline subscribers
// are skipped; a failed notify leaves the recipient pending for a later
// round. A successful notify removes the recipient for good - no
// subscriber is notified twice for one event.
func (b *Broker) attemptDelivery(ev *Event) int {
	for _, subID := range ev.Pending() {
		conn := b.registry.ConnOf(subID)
		if conn == nil {
			continue
		}
		if err := conn.Notify(ev); err != nil {
			continue
		}
		ev.delivered(subID)
	}
	return ev.PendingCount()
}

func (b *Broker) enqueue(ev *Event) {
	b.pendingMu.Lock()
	b.pending = append(b.pending, ev)
	b.pendingMu.Unlock()
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// PendingEvents returns how many events are queued for retry.
func (b *Broker) PendingEvents() int {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	return len(b.pending)
}

// retryLoop is the single background worker. It runs a delivery round
// every RetryInterval, or sooner when a new event is queued. There is no
// retry limit: an event whose recipient never comes back stays queued for
// the lifetime of the broker.
func (b *Broker) retryLoop() {
	defer close(b.stopped)
	timer := time.NewTimer(b.RetryInterval)
	defer timer.Stop()
	for {
		select {
		case <-b.stopping:
			return
		case <-b.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
		}
		b.retryRound()
		timer.Reset(b.RetryInterval)
	}
}

// retryRound re-attempts every queued event, then drops the fully
// delivered ones. The queue is snapshotted first and pruned under lock
// afterwards, so deliveries never run while the queue lock is held.
func (b *Broker) retryRound() {
	b.pendingMu.Lock()
	snapshot := make([]*Event, len(b.pending))
	copy(snapshot, b.pending)
	b.pendingMu.Unlock()

	done := map[*Event]bool{}
	for _, ev := range snapshot {
		if b.attemptDelivery(ev) == 0 {
			done[ev] = true
			log.Printf("event %d-%s fully delivered", ev.ID, ev.Title)
		}
	}
	if len(done) == 0 {
		return
	}

	b.pendingMu.Lock()
	remaining := b.pending[:0]
	for _, ev := range b.pending {
		if !done[ev] {
			remaining = append(remaining, ev)
		}
	}
	b.pending = remaining
	b.pendingMu.Unlock()
}
