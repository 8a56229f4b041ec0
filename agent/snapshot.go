package agent

import (
	"encoding/json"
	"io/ioutil"

	"github.com/pkg/errors"

	"github.com/mcrae/pubsub/pubsub"
)

// SnapshotVersion is bumped whenever the snapshot schema changes.
const SnapshotVersion = 1

// Snapshot is the agent's saved state: enough to come back later under
// the same id with the same subscriptions and event log.
type Snapshot struct {
	Version  int             `json:"version"`
	ID       int             `json:"id"`
	Topics   []*pubsub.Topic `json:"topics"`
	Keywords []string        `json:"keywords"`
	Events   []*pubsub.Event `json:"events"`
}

// Snapshot captures the agent's current state.
func (a *Agent) Snapshot() *Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	snap := &Snapshot{
		Version:  SnapshotVersion,
		ID:       a.id,
		Topics:   make([]*pubsub.Topic, len(a.topics)),
		Keywords: make([]string, len(a.keywords)),
		Events:   make([]*pubsub.Event, len(a.received)),
	}
	copy(snap.Topics, a.topics)
	copy(snap.Keywords, a.keywords)
	copy(snap.Events, a.received)
	return snap
}

// Save writes the snapshot to disk.
func (a *Agent) Save(path string) error {
	data, err := json.MarshalIndent(a.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	return errors.Wrap(ioutil.WriteFile(path, data, 0644), "writing snapshot")
}

// LoadSnapshot reads a snapshot from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading snapshot")
	}
	snap := &Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, errors.Wrap(err, "parsing snapshot")
	}
	if snap.Version != SnapshotVersion {
		return nil, errors.Errorf("snapshot version %d, want %d", snap.Version, SnapshotVersion)
	}
	return snap, nil
}

// Resume restores an agent from a snapshot and rebinds it to the broker
// under its old id.
func Resume(server Server, snap *Snapshot) (*Agent, error) {
	a := newAgent(server)
	a.id = snap.ID
	a.topics = snap.Topics
	a.keywords = snap.Keywords
	a.received = snap.Events
	if err := server.Rebind(snap.ID, a.notify); err != nil {
		a.pool.Close()
		return nil, err
	}
	return a, nil
}
