package ws

import (
	"testing"

	"worldview/internal/model"
)

// capture records every emit for assertions.
type capture struct {
	channels []Channel
	payloads []any
	logs     []string
}

func (c *capture) router() *Router {
	return &Router{
		Emit: func(ch Channel, v any) {
			c.channels = append(c.channels, ch)
			c.payloads = append(c.payloads, v)
		},
		Logf: func(format string, args ...any) {
			c.logs = append(c.logs, format)
		},
	}
}

func TestDispatchEventFrame(t *testing.T) {
	var c capture
	c.router().Dispatch([]byte(`{"type":"event","text":"Rain begins to fall","timestamp":1714000000}`))

	if len(c.channels) != 1 || c.channels[0] != ChanEvent {
		t.Fatalf("channels = %v, want [event]", c.channels)
	}
	ev, ok := c.payloads[0].(*model.Event)
	if !ok {
		t.Fatalf("payload type %T", c.payloads[0])
	}
	if ev.Text != "Rain begins to fall" || ev.Kind != model.EventWeather {
		t.Errorf("event = %+v", ev)
	}
}

func TestDispatchMessageFrame(t *testing.T) {
	var c capture
	c.router().Dispatch([]byte(`{"type":"message","id":9,"sender_id":"1","receiver_id":"2","content":"hello","timestamp":1714000000}`))

	if len(c.channels) != 1 || c.channels[0] != ChanAgentMessage {
		t.Fatalf("channels = %v, want [agent_message]", c.channels)
	}
	msg := c.payloads[0].(*model.Message)
	if msg.ID != "9" || msg.SenderID != "1" || msg.Content != "hello" {
		t.Errorf("message = %+v", msg)
	}
}

func TestDispatchWorldStateByShape(t *testing.T) {
	// No type tag: classification is structural, on key presence alone.
	// Empty collections still match.
	var c capture
	c.router().Dispatch([]byte(`{"agents":[],"recent_messages":[]}`))

	if len(c.channels) != 1 || c.channels[0] != ChanWorldState {
		t.Fatalf("channels = %v, want [world_state]", c.channels)
	}
	ws := c.payloads[0].(*model.WorldState)
	if len(ws.Agents) != 0 || len(ws.RecentMessages) != 0 {
		t.Errorf("world state = %+v", ws)
	}
}

func TestDispatchWorldStateByDiscriminant(t *testing.T) {
	var c capture
	c.router().Dispatch([]byte(`{"type":"world_state","agents":[{"id":"1","name":"Alice"}],"recent_messages":[]}`))

	if len(c.channels) != 1 || c.channels[0] != ChanWorldState {
		t.Fatalf("channels = %v, want [world_state]", c.channels)
	}
}

func TestDispatchOrderTypeTagWinsOverShape(t *testing.T) {
	// A frame carrying both a known type tag and the snapshot keys must
	// follow the tag: the decision list is ordered, first match wins.
	var c capture
	c.router().Dispatch([]byte(`{"type":"event","text":"odd frame","agents":[],"recent_messages":[]}`))

	if len(c.channels) != 1 || c.channels[0] != ChanEvent {
		t.Fatalf("channels = %v, want [event]", c.channels)
	}
}

func TestDispatchShapeNeedsBothKeys(t *testing.T) {
	var c capture
	r := c.router()
	r.Dispatch([]byte(`{"agents":[]}`))
	r.Dispatch([]byte(`{"recent_messages":[]}`))

	if len(c.channels) != 0 {
		t.Errorf("channels = %v, want none", c.channels)
	}
	if len(c.logs) != 2 {
		t.Errorf("expected 2 unrecognized-frame logs, got %d", len(c.logs))
	}
}

func TestDispatchUnrecognizedFrame(t *testing.T) {
	var c capture
	c.router().Dispatch([]byte(`{"type":"telemetry","cpu":0.4}`))

	if len(c.channels) != 0 {
		t.Errorf("channels = %v, want none", c.channels)
	}
	if len(c.logs) != 1 {
		t.Errorf("expected unrecognized-frame log, got %v", c.logs)
	}
}

func TestDispatchMalformedJSON(t *testing.T) {
	var c capture
	c.router().Dispatch([]byte(`{"type":`))

	if len(c.channels) != 0 {
		t.Errorf("channels = %v, want none", c.channels)
	}
	if len(c.logs) != 1 {
		t.Errorf("expected malformed-frame log, got %v", c.logs)
	}
}
