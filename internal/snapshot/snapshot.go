// Package snapshot builds immutable render snapshots from the world
// store.
//
// A DataSnapshot captures the full agent roster, message history, and
// event feed at a point in time. Snapshots are rebuilt on each store
// change and swapped atomically into the UI model, so a redraw always
// works from one consistent view of the world.
package snapshot

import (
	"time"

	"worldview/internal/model"
	"worldview/internal/store"
)

// Mood is the pre-computed dominant emotion for one agent.
type Mood struct {
	Name  string
	Score float64
}

// DataSnapshot is an immutable, self-contained view of the world state.
type DataSnapshot struct {
	Agents           []model.Agent
	MessagesBySender map[model.ID][]model.Message
	Events           []model.Event

	// Pre-computed per-agent dominant emotion.
	Moods map[model.ID]Mood

	// Counts.
	TotalAgents   int
	TotalMessages int
	TotalEvents   int

	// Timestamp of snapshot creation.
	BuiltAt time.Time
}

// Build reads the store and returns a complete snapshot.
func Build(s *store.Store) *DataSnapshot {
	agents := s.Agents()

	bys := make(map[model.ID][]model.Message)
	var total int
	for _, id := range s.Senders() {
		msgs := s.MessagesFor(id)
		bys[id] = msgs
		total += len(msgs)
	}

	events := s.Events()

	moods := make(map[model.ID]Mood, len(agents))
	for _, ag := range agents {
		name, score := ag.DominantEmotion()
		moods[ag.ID] = Mood{Name: name, Score: score}
	}

	return &DataSnapshot{
		Agents:           agents,
		MessagesBySender: bys,
		Events:           events,
		Moods:            moods,
		TotalAgents:      len(agents),
		TotalMessages:    total,
		TotalEvents:      len(events),
		BuiltAt:          time.Now(),
	}
}

// AgentByID returns the snapshot's agent with the given id, if present.
func (snap *DataSnapshot) AgentByID(id model.ID) (model.Agent, bool) {
	for _, ag := range snap.Agents {
		if ag.ID == id {
			return ag, true
		}
	}
	return model.Agent{}, false
}

// Conversation returns the messages between two agents in either
// direction, including broadcasts from both. Messages from a come first,
// each block in its sender's history order.
func (snap *DataSnapshot) Conversation(a, b model.ID) []model.Message {
	var out []model.Message
	for _, m := range snap.MessagesBySender[a] {
		if m.ReceiverID == b || m.Broadcast() {
			out = append(out, m)
		}
	}
	for _, m := range snap.MessagesBySender[b] {
		if m.ReceiverID == a || m.Broadcast() {
			out = append(out, m)
		}
	}
	return out
}
