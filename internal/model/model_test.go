package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestIDDecodesStringAndNumber(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want ID
	}{
		{"string", `"agent-1"`, "agent-1"},
		{"integer", `42`, "42"},
		{"large integer stays exact", `9007199254740993`, "9007199254740993"},
		{"null", `null`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id ID
			if err := json.Unmarshal([]byte(tt.in), &id); err != nil {
				t.Fatalf("Unmarshal(%s): %v", tt.in, err)
			}
			if id != tt.want {
				t.Errorf("got %q, want %q", id, tt.want)
			}
		})
	}
}

func TestIDDecodeRejectsGarbage(t *testing.T) {
	var id ID
	if err := json.Unmarshal([]byte(`{"no":"id"}`), &id); err == nil {
		t.Error("expected error decoding object as ID")
	}
}

func TestTimestampDecodesEpochSeconds(t *testing.T) {
	var ts Timestamp
	if err := json.Unmarshal([]byte(`1714000000.25`), &ts); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := time.UnixMilli(1714000000250)
	if !ts.Equal(want) {
		t.Errorf("got %v, want %v", ts.Time, want)
	}
	if ts.Display != "" {
		t.Errorf("epoch timestamps should carry no display string, got %q", ts.Display)
	}
}

func TestTimestampDecodesISOString(t *testing.T) {
	var ts Timestamp
	if err := json.Unmarshal([]byte(`"2024-04-24T12:26:40Z"`), &ts); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if ts.IsZero() {
		t.Fatal("ISO string should parse to an instant")
	}
	if got := ts.UTC().Format(time.RFC3339); got != "2024-04-24T12:26:40Z" {
		t.Errorf("got %s", got)
	}
}

func TestTimestampKeepsUnparseableDisplayString(t *testing.T) {
	var ts Timestamp
	if err := json.Unmarshal([]byte(`"14:32:07"`), &ts); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !ts.IsZero() {
		t.Errorf("clock string should not parse to an instant, got %v", ts.Time)
	}
	if ts.Display != "14:32:07" {
		t.Errorf("Display = %q, want original string", ts.Display)
	}
	if ts.String() != "14:32:07" {
		t.Errorf("String() = %q, want display fallback", ts.String())
	}
}

func TestTimestampMarshalsEpochSeconds(t *testing.T) {
	ts := Timestamp{Time: time.UnixMilli(1714000000500)}
	data, err := json.Marshal(ts)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var sec float64
	if err := json.Unmarshal(data, &sec); err != nil {
		t.Fatalf("round-trip: %v", err)
	}
	if sec != 1714000000.5 {
		t.Errorf("got %v, want 1714000000.5", sec)
	}
}

func TestAgentDecodeFull(t *testing.T) {
	raw := `{
		"id": 7,
		"name": "Alice",
		"avatar": "a1",
		"personality": {"openness": 0.8, "conscientiousness": 0.4, "extraversion": 0.9, "agreeableness": 0.6, "neuroticism": 0.2},
		"emotions": {"happiness": 0.7, "anger": 0.1},
		"relationships": {"2": {"affinity": -0.3, "familiarity": 0.5}},
		"memories": [{"content": "met Bob", "timestamp": "2024-04-24T10:00:00Z", "emotions": {"surprise": 0.4}}],
		"current_plan": "find the market",
		"memory_count": 12
	}`
	var ag Agent
	if err := json.Unmarshal([]byte(raw), &ag); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if ag.ID != "7" {
		t.Errorf("ID = %q", ag.ID)
	}
	if ag.Personality.Openness != 0.8 {
		t.Errorf("Openness = %v", ag.Personality.Openness)
	}
	rel, ok := ag.Relationships["2"]
	if !ok {
		t.Fatal("missing relationship to agent 2")
	}
	if rel.Affinity != -0.3 || rel.Familiarity != 0.5 {
		t.Errorf("relationship = %+v", rel)
	}
	// memory_count is a separate summary counter, not derived from the
	// memories actually present.
	if ag.MemoryCount != 12 || len(ag.Memories) != 1 {
		t.Errorf("MemoryCount = %d, len(Memories) = %d", ag.MemoryCount, len(ag.Memories))
	}
}

func TestDominantEmotion(t *testing.T) {
	ag := Agent{Emotions: map[string]float64{"happiness": 0.7, "anger": 0.1, "fear": 0.7}}
	name, score := ag.DominantEmotion()
	// Ties break alphabetically so the result is stable across map order.
	if name != "fear" || score != 0.7 {
		t.Errorf("got (%q, %v), want (fear, 0.7)", name, score)
	}

	name, score = Agent{}.DominantEmotion()
	if name != "" || score != 0 {
		t.Errorf("empty agent: got (%q, %v)", name, score)
	}
}

func TestPersonalityTraitsOrder(t *testing.T) {
	p := Personality{Openness: 1, Conscientiousness: 2, Extraversion: 3, Agreeableness: 4, Neuroticism: 5}
	traits := p.Traits()
	wantNames := []string{"openness", "conscientiousness", "extraversion", "agreeableness", "neuroticism"}
	if len(traits) != 5 {
		t.Fatalf("len = %d", len(traits))
	}
	for i, tr := range traits {
		if tr.Name != wantNames[i] {
			t.Errorf("trait %d = %q, want %q", i, tr.Name, wantNames[i])
		}
		if tr.Score != float64(i+1) {
			t.Errorf("trait %d score = %v", i, tr.Score)
		}
	}
}

func TestEventDecodeDescriptionFallback(t *testing.T) {
	var e Event
	if err := json.Unmarshal([]byte(`{"type":"event","description":"A storm rolls in","timestamp":1714000000}`), &e); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if e.Text != "A storm rolls in" {
		t.Errorf("Text = %q", e.Text)
	}
	if e.Kind != EventWeather {
		t.Errorf("Kind = %q, want weather (derived from text)", e.Kind)
	}
}

func TestEventDecodeExplicitKindWins(t *testing.T) {
	var e Event
	if err := json.Unmarshal([]byte(`{"text":"A storm of applause","kind":"arrival"}`), &e); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if e.Kind != EventArrival {
		t.Errorf("Kind = %q, explicit field should win over text matching", e.Kind)
	}
}

func TestClassifyEventText(t *testing.T) {
	tests := []struct {
		text string
		want EventKind
	}{
		{"Heavy rain falls over the square", EventWeather},
		{"Dana arrived at the tavern", EventArrival},
		{"An argument breaks out near the well", EventConflict},
		{"The market opens", EventGeneric},
	}
	for _, tt := range tests {
		if got := ClassifyEventText(tt.text); got != tt.want {
			t.Errorf("ClassifyEventText(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestMessageBroadcast(t *testing.T) {
	if !(Message{SenderID: "1"}).Broadcast() {
		t.Error("message without receiver should be broadcast")
	}
	if (Message{SenderID: "1", ReceiverID: "2"}).Broadcast() {
		t.Error("addressed message should not be broadcast")
	}
}

func TestWorldStateDecode(t *testing.T) {
	raw := `{"agents":[{"id":"1","name":"Alice"}],"recent_messages":[{"id":3,"sender_id":1,"receiver_id":2,"content":"hi","timestamp":1714000000}]}`
	var ws WorldState
	if err := json.Unmarshal([]byte(raw), &ws); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(ws.Agents) != 1 || ws.Agents[0].Name != "Alice" {
		t.Fatalf("agents = %+v", ws.Agents)
	}
	m := ws.RecentMessages[0]
	if m.ID != "3" || m.SenderID != "1" || m.ReceiverID != "2" {
		t.Errorf("ids not normalized: %+v", m)
	}
}

func TestAgentCloneIsIndependent(t *testing.T) {
	a := Agent{
		ID:            "1",
		Emotions:      map[string]float64{"joy": 0.5},
		Relationships: map[ID]Relationship{"2": {Affinity: 0.3, Familiarity: 0.4}},
		Memories: []Memory{
			{Content: "met Bob", Emotions: map[string]float64{"fear": 0.2}},
		},
	}

	c := a.Clone()
	c.Emotions["joy"] = 1
	c.Relationships["2"] = Relationship{Affinity: -1}
	c.Memories[0].Content = "changed"
	c.Memories[0].Emotions["fear"] = 1

	if a.Emotions["joy"] != 0.5 {
		t.Errorf("Emotions shared: joy = %v", a.Emotions["joy"])
	}
	if a.Relationships["2"].Affinity != 0.3 {
		t.Errorf("Relationships shared: %+v", a.Relationships["2"])
	}
	if a.Memories[0].Content != "met Bob" {
		t.Errorf("Memories shared: %q", a.Memories[0].Content)
	}
	if a.Memories[0].Emotions["fear"] != 0.2 {
		t.Errorf("memory Emotions shared: %v", a.Memories[0].Emotions["fear"])
	}
}

func TestAgentCloneNilCollections(t *testing.T) {
	c := Agent{ID: "1", Name: "Alice"}.Clone()
	if c.Emotions != nil || c.Relationships != nil || c.Memories != nil {
		t.Errorf("nil collections should stay nil: %+v", c)
	}
}
