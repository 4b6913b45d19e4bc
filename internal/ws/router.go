package ws

import (
	"encoding/json"

	"worldview/internal/model"
)

// Wire type tags the backend puts on typed frames.
const (
	typeEvent      = "event"
	typeMessage    = "message"
	typeWorldState = "world_state"
)

// Router classifies one decoded inbound frame and emits it on the
// matching channel. Classification is a closed, ordered decision list,
// first match wins:
//
//  1. type tag "event"        -> ChanEvent
//  2. type tag "message"      -> ChanAgentMessage
//  3. type tag "world_state"  -> ChanWorldState
//  4. both "agents" and "recent_messages" keys present -> ChanWorldState
//  5. anything else is logged and dropped
//
// Rule 3 is the explicit discriminant newer backends send; rule 4 keeps
// compatibility with snapshot frames that carry no type tag at all. The
// shape rule matches on key presence, not content, so an empty snapshot
// still classifies as world_state.
type Router struct {
	Emit func(ch Channel, v any)
	Logf func(format string, args ...any)
}

// frameProbe pulls out just enough of a frame to classify it.
type frameProbe struct {
	Type           string          `json:"type"`
	Agents         json.RawMessage `json:"agents"`
	RecentMessages json.RawMessage `json:"recent_messages"`
}

// Dispatch classifies data and notifies the matching channel. Malformed
// frames are logged and discarded; no error propagates to the transport.
func (r *Router) Dispatch(data []byte) {
	var probe frameProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		r.Logf("ws: discarding malformed frame: %v", err)
		return
	}

	switch {
	case probe.Type == typeEvent:
		var ev model.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			r.Logf("ws: discarding malformed event frame: %v", err)
			return
		}
		r.Emit(ChanEvent, &ev)

	case probe.Type == typeMessage:
		var msg model.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			r.Logf("ws: discarding malformed message frame: %v", err)
			return
		}
		r.Emit(ChanAgentMessage, &msg)

	case probe.Type == typeWorldState, probe.Agents != nil && probe.RecentMessages != nil:
		var ws model.WorldState
		if err := json.Unmarshal(data, &ws); err != nil {
			r.Logf("ws: discarding malformed world_state frame: %v", err)
			return
		}
		r.Emit(ChanWorldState, &ws)

	default:
		r.Logf("ws: unrecognized frame (type=%q), dropping", probe.Type)
	}
}
