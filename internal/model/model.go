// Package model defines the wire and domain types for the virtual world
// simulator: agents with OCEAN personality, emotions, relationships, and
// memories, plus the messages and world events they exchange.
//
// The simulator backend is loose about two things this package normalizes
// at the decode boundary: identifiers may arrive as JSON strings or
// numbers, and timestamps may arrive as epoch seconds or as pre-formatted
// display strings. Both decode to a single canonical form here so nothing
// downstream has to care.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ID identifies an agent or a message. The backend serializes ids as
// strings in some payloads and as numbers in others; both decode to the
// string form.
type ID string

func (id ID) String() string { return string(id) }

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode id: %w", err)
		}
		*id = ID(s)
		return nil
	}
	// Numeric id. Decode as json.Number to keep integer ids exact.
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Timestamp is the canonical internal time representation. Inbound wire
// messages carry epoch seconds (possibly fractional); locally originated
// messages carry a pre-formatted display string. That asymmetry is part
// of the backend contract, so Timestamp accepts both and keeps the
// original display string for rendering when no parseable instant exists.
type Timestamp struct {
	time.Time

	// Display holds the original string form when the source sent one.
	Display string
}

// Now returns a Timestamp for the current instant with a pre-formatted
// display string, matching how locally originated messages are stamped.
func Now() Timestamp {
	t := time.Now()
	return Timestamp{Time: t, Display: t.Format("15:04:05")}
}

// String formats the timestamp for display, preferring the original
// display string when the instant could not be parsed.
func (ts Timestamp) String() string {
	if !ts.IsZero() {
		return ts.Format("15:04:05")
	}
	return ts.Display
}

// MarshalJSON emits epoch seconds, matching the inbound wire format.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return json.Marshal(ts.Display)
	}
	sec := float64(ts.UnixMilli()) / 1000
	return json.Marshal(sec)
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*ts = Timestamp{}
		return nil
	}
	if data[0] != '"' {
		var sec float64
		if err := json.Unmarshal(data, &sec); err != nil {
			return fmt.Errorf("decode timestamp: %w", err)
		}
		*ts = Timestamp{Time: time.UnixMilli(int64(math.Round(sec * 1000)))}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode timestamp: %w", err)
	}
	*ts = parseTimeString(s)
	return nil
}

// parseTimeString tries the formats the backend is known to emit, falling
// back to a display-only timestamp for anything unrecognized (e.g. a
// localized "15:04:05" clock string).
func parseTimeString(s string) Timestamp {
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t, Display: s}
		}
	}
	// Epoch seconds quoted as a string show up in older captures.
	if sec, err := strconv.ParseFloat(s, 64); err == nil && sec > 1e9 {
		return Timestamp{Time: time.UnixMilli(int64(math.Round(sec * 1000)))}
	}
	return Timestamp{Display: s}
}

// Personality holds the five OCEAN trait scores, each in [0, 1].
type Personality struct {
	Openness          float64 `json:"openness"`
	Conscientiousness float64 `json:"conscientiousness"`
	Extraversion      float64 `json:"extraversion"`
	Agreeableness     float64 `json:"agreeableness"`
	Neuroticism       float64 `json:"neuroticism"`
}

// Traits returns the scores in canonical OCEAN order with their names,
// for table and bar rendering.
func (p Personality) Traits() []Trait {
	return []Trait{
		{"openness", p.Openness},
		{"conscientiousness", p.Conscientiousness},
		{"extraversion", p.Extraversion},
		{"agreeableness", p.Agreeableness},
		{"neuroticism", p.Neuroticism},
	}
}

// Trait is one named personality score.
type Trait struct {
	Name  string
	Score float64
}

// Relationship is one agent's view of another. Affinity is signed
// strength in [-1, 1]; Familiarity is depth in [0, 1]. Relationships are
// symmetric only by convention — entries may be one-directional, and
// nothing here enforces reciprocity.
type Relationship struct {
	Affinity    float64 `json:"affinity"`
	Familiarity float64 `json:"familiarity"`
}

// Memory is one entry in an agent's episodic memory.
type Memory struct {
	Content   string             `json:"content"`
	Timestamp string             `json:"timestamp"`
	Emotions  map[string]float64 `json:"emotions,omitempty"`
}

// Agent is one inhabitant of the simulated world.
//
// MemoryCount is a summary counter maintained by the backend and may
// exceed len(Memories): roster payloads omit memory bodies and send only
// the count.
type Agent struct {
	ID            ID                      `json:"id"`
	Name          string                  `json:"name"`
	Avatar        string                  `json:"avatar,omitempty"`
	Personality   Personality             `json:"personality"`
	Emotions      map[string]float64      `json:"emotions"`
	Relationships map[ID]Relationship     `json:"relationships"`
	Memories      []Memory                `json:"memories,omitempty"`
	CurrentPlan   string                  `json:"current_plan,omitempty"`
	Location      string                  `json:"location,omitempty"`
	Status        string                  `json:"status,omitempty"`
	MemoryCount   int                     `json:"memory_count"`
}

// Clone returns a deep copy of the agent: mutating the result's emotion
// and relationship maps or memory list never affects the receiver.
func (a Agent) Clone() Agent {
	out := a
	if a.Emotions != nil {
		out.Emotions = make(map[string]float64, len(a.Emotions))
		for k, v := range a.Emotions {
			out.Emotions[k] = v
		}
	}
	if a.Relationships != nil {
		out.Relationships = make(map[ID]Relationship, len(a.Relationships))
		for k, v := range a.Relationships {
			out.Relationships[k] = v
		}
	}
	if a.Memories != nil {
		out.Memories = make([]Memory, len(a.Memories))
		copy(out.Memories, a.Memories)
		for i, mem := range out.Memories {
			if mem.Emotions == nil {
				continue
			}
			em := make(map[string]float64, len(mem.Emotions))
			for k, v := range mem.Emotions {
				em[k] = v
			}
			out.Memories[i].Emotions = em
		}
	}
	return out
}

// DominantEmotion returns the highest-scoring emotion, or ("", 0) when
// the agent reports none.
func (a Agent) DominantEmotion() (string, float64) {
	var name string
	var best float64
	for k, v := range a.Emotions {
		if name == "" || v > best || (v == best && k < name) {
			name, best = k, v
		}
	}
	return name, best
}

// Message is one utterance between agents. An empty ReceiverID means
// broadcast. ID must be unique within a sender's history; the store
// de-duplicates on it.
type Message struct {
	ID         ID        `json:"id"`
	SenderID   ID        `json:"sender_id"`
	ReceiverID ID        `json:"receiver_id,omitempty"`
	Content    string    `json:"content"`
	Timestamp  Timestamp `json:"timestamp"`
}

// Broadcast reports whether the message is addressed to everyone.
func (m Message) Broadcast() bool { return m.ReceiverID == "" }

// EventKind classifies a world event for rendering.
type EventKind string

const (
	EventGeneric  EventKind = "generic"
	EventWeather  EventKind = "weather"
	EventArrival  EventKind = "arrival"
	EventConflict EventKind = "conflict"
)

// Event is a free-text happening in the world. The backend carries no
// structured kind on legacy frames; Kind is taken from an explicit
// "kind" field when present and otherwise derived from the text.
type Event struct {
	ID        ID        `json:"id,omitempty"`
	Text      string    `json:"text"`
	Timestamp Timestamp `json:"timestamp"`
	Kind      EventKind `json:"kind,omitempty"`
}

func (e *Event) UnmarshalJSON(data []byte) error {
	// Older backends send "description" instead of "text".
	type wireEvent struct {
		ID          ID        `json:"id"`
		Text        string    `json:"text"`
		Description string    `json:"description"`
		Timestamp   Timestamp `json:"timestamp"`
		Kind        EventKind `json:"kind"`
	}
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	text := w.Text
	if text == "" {
		text = w.Description
	}
	kind := w.Kind
	if kind == "" {
		kind = ClassifyEventText(text)
	}
	*e = Event{ID: w.ID, Text: text, Timestamp: w.Timestamp, Kind: kind}
	return nil
}

// ClassifyEventText derives an EventKind from free text. This mirrors the
// pattern matching legacy clients performed and exists only as a fallback
// for frames without an explicit kind field.
func ClassifyEventText(text string) EventKind {
	t := strings.ToLower(text)
	switch {
	case containsAny(t, "rain", "storm", "sunny", "snow", "fog", "weather"):
		return EventWeather
	case containsAny(t, "arrived", "joined", "entered", "appeared"):
		return EventArrival
	case containsAny(t, "argument", "fight", "conflict", "dispute"):
		return EventConflict
	default:
		return EventGeneric
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// WorldState is a full replacement snapshot: the entire current agent
// roster plus a window of recent messages.
type WorldState struct {
	Agents         []Agent   `json:"agents"`
	RecentMessages []Message `json:"recent_messages"`
}
