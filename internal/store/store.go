// Package store holds the authoritative in-memory world state: the
// current agent roster, per-sender message history, and the world event
// feed. Updates come from the connection's router callbacks; readers get
// copies and never observe partial mutations.
//
// The store is an explicit object handed to its consumers — there is no
// package-level state. Consumers that want to redraw on change register
// an observer with Subscribe instead of being called from data-layer
// code.
package store

import (
	"sync"

	"worldview/internal/model"
)

// DefaultHistoryLimit caps each sender's retained message history. The
// backend accumulates messages indefinitely; the client keeps a bounded
// window and drops the oldest entries past it.
const DefaultHistoryLimit = 500

// DefaultEventLimit caps the retained world event feed.
const DefaultEventLimit = 500

// Store is safe for concurrent use by the connection read goroutine and
// the render layer.
type Store struct {
	mu           sync.RWMutex
	agents       []model.Agent
	agentIndex   map[model.ID]int
	messages     map[model.ID][]model.Message
	seen         map[model.ID]map[model.ID]struct{}
	events       []model.Event
	historyLimit int
	eventLimit   int

	subMu   sync.Mutex
	subs    map[int]func()
	nextSub int
}

// New returns an empty store with default retention limits.
func New() *Store {
	return NewWithLimits(DefaultHistoryLimit, DefaultEventLimit)
}

// NewWithLimits returns an empty store with explicit per-sender history
// and event feed caps. Non-positive limits fall back to the defaults.
func NewWithLimits(historyLimit, eventLimit int) *Store {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	if eventLimit <= 0 {
		eventLimit = DefaultEventLimit
	}
	return &Store{
		agentIndex:   make(map[model.ID]int),
		messages:     make(map[model.ID][]model.Message),
		seen:         make(map[model.ID]map[model.ID]struct{}),
		events:       nil,
		historyLimit: historyLimit,
		eventLimit:   eventLimit,
		subs:         make(map[int]func()),
	}
}

// Subscribe registers fn to run after every store mutation and returns a
// cancel func. fn is called outside the store lock, so it may read the
// store freely; it must be fast or hand off to its own goroutine.
func (s *Store) Subscribe(fn func()) (cancel func()) {
	s.subMu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// ApplyWorldState applies a full snapshot: the agent roster is replaced
// wholesale (agents absent from the snapshot disappear, order is
// preserved), and each recent message is appended to its sender's
// history unless a retained message already carries its id.
func (s *Store) ApplyWorldState(ws *model.WorldState) {
	s.mu.Lock()
	s.agents = make([]model.Agent, len(ws.Agents))
	copy(s.agents, ws.Agents)
	s.agentIndex = make(map[model.ID]int, len(s.agents))
	for i, ag := range s.agents {
		s.agentIndex[ag.ID] = i
	}
	for _, m := range ws.RecentMessages {
		s.appendLocked(m)
	}
	s.mu.Unlock()
	s.notify()
}

// ApplyAgentMessage appends a single message to its sender's history,
// with the same id-based de-duplication as the snapshot path.
func (s *Store) ApplyAgentMessage(m *model.Message) {
	s.mu.Lock()
	s.appendLocked(*m)
	s.mu.Unlock()
	s.notify()
}

// appendLocked appends m to its sender's list unless the retained window
// already holds its id, then trims the oldest entries past the cap.
// De-duplication is keyed solely on id equality: two distinct messages
// colliding on id are treated as duplicates and the second is dropped.
func (s *Store) appendLocked(m model.Message) {
	ids := s.seen[m.SenderID]
	if ids == nil {
		ids = make(map[model.ID]struct{})
		s.seen[m.SenderID] = ids
	}
	if _, dup := ids[m.ID]; dup {
		return
	}
	ids[m.ID] = struct{}{}
	list := append(s.messages[m.SenderID], m)
	if over := len(list) - s.historyLimit; over > 0 {
		for _, old := range list[:over] {
			delete(ids, old.ID)
		}
		list = append([]model.Message(nil), list[over:]...)
	}
	s.messages[m.SenderID] = list
}

// ApplyEvent appends a world event to the bounded feed.
func (s *Store) ApplyEvent(e *model.Event) {
	s.mu.Lock()
	s.events = append(s.events, *e)
	if over := len(s.events) - s.eventLimit; over > 0 {
		s.events = append([]model.Event(nil), s.events[over:]...)
	}
	s.mu.Unlock()
	s.notify()
}

// Agents returns a deep copy of the current roster in snapshot order;
// callers may mutate the result freely.
func (s *Store) Agents() []model.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Agent, len(s.agents))
	for i, ag := range s.agents {
		out[i] = ag.Clone()
	}
	return out
}

// AgentByID returns a deep copy of the agent with the given id, if
// present.
func (s *Store) AgentByID(id model.ID) (model.Agent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.agentIndex[id]
	if !ok {
		return model.Agent{}, false
	}
	return s.agents[i].Clone(), true
}

// MessagesFor returns a copy of the ordered message history for a
// sender; the result is empty (never nil-panicky) for unknown senders.
func (s *Store) MessagesFor(senderID model.ID) []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.messages[senderID]
	out := make([]model.Message, len(list))
	copy(out, list)
	return out
}

// Senders returns the ids that have at least one retained message.
func (s *Store) Senders() []model.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ID, 0, len(s.messages))
	for id, list := range s.messages {
		if len(list) > 0 {
			out = append(out, id)
		}
	}
	return out
}

// Events returns a copy of the retained world event feed, oldest first.
func (s *Store) Events() []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Event, len(s.events))
	copy(out, s.events)
	return out
}

// MessageCount returns the total number of retained messages.
func (s *Store) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	for _, list := range s.messages {
		n += len(list)
	}
	return n
}
