package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventDefaultKeywords(t *testing.T) {
	topic := NewTopic("Weather", "rain", "sun")
	ev := NewEvent(topic, "Storm", "heavy rain")
	assert.Equal(t, topic.Keywords, ev.Keywords)

	explicit := NewEvent(topic, "Storm", "heavy rain", "flood")
	assert.Equal(t, []string{"flood"}, explicit.Keywords)
}

// Event identity is (topic, title) only. Two events with the same title
// under the same topic collapse to one key even when the content differs.
// That is the historical dedup-by-title behaviour and key-based stores
// rely on it.
func TestEventKeyIgnoresContent(t *testing.T) {
	topic := NewTopic("Weather", "rain")
	a := NewEvent(topic, "Storm", "first")
	b := NewEvent(topic, "Storm", "entirely different content")
	assert.Equal(t, a.Key(), b.Key())
	assert.True(t, a.Equal(b))

	c := NewEvent(topic, "Sunshine", "first")
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestPendingShrinkOnly(t *testing.T) {
	topic := NewTopic("Weather")
	ev := NewEvent(topic, "Storm", "x")
	ev.addRecipients([]int{3, 1, 2})
	ev.addRecipients([]int{2, 4}) // duplicate collapses
	assert.Equal(t, []int{3, 1, 2, 4}, ev.Pending())
	assert.Equal(t, 4, ev.PendingCount())

	ev.delivered(1)
	ev.delivered(1) // repeated removal is harmless
	assert.Equal(t, []int{3, 2, 4}, ev.Pending())

	ev.delivered(3)
	ev.delivered(2)
	ev.delivered(4)
	assert.Equal(t, 0, ev.PendingCount())
}
