// Package ws maintains the WebSocket connection to the simulator backend
// and routes inbound frames to registered listeners.
//
// The Client owns at most one logical connection. Transient transport
// failures are retried with a linear backoff (base delay times attempt
// number) up to a fixed ceiling; exhausting the ceiling is terminal and
// requires the caller to restart the client.
package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	}
	return "?"
}

// Channel names one of the fixed notification channels.
type Channel string

const (
	ChanConnected    Channel = "connected"
	ChanDisconnected Channel = "disconnected"
	ChanError        Channel = "error"
	ChanEvent        Channel = "event"
	ChanAgentMessage Channel = "agent_message"
	ChanWorldState   Channel = "world_state"
)

// Handler receives the decoded payload for a channel: *model.Event,
// *model.Message, or *model.WorldState for the data channels, an error
// for ChanError, and nil for the lifecycle channels. Handlers run in
// registration order on the connection's read goroutine; a panicking
// handler interrupts delivery to later handlers.
type Handler func(v any)

// DefaultMaxRetries is the reconnect attempt ceiling.
const DefaultMaxRetries = 5

// DefaultBaseDelay is multiplied by the attempt number to produce each
// reconnect delay. The growth is linear, not exponential.
const DefaultBaseDelay = time.Second

type registration struct {
	id int
	fn Handler
}

// Client manages a single duplex connection to the simulator.
type Client struct {
	url       string
	dialer    *websocket.Dialer
	logf      func(format string, args ...any)
	frameHook func(frame []byte)

	maxRetries int
	baseDelay  time.Duration

	mu         sync.Mutex
	state      State
	conn       *websocket.Conn
	attempts   int
	nextID     int
	handlers   map[Channel][]registration
	retryTimer *time.Timer

	// gen increments on every Close/dial cycle so stale read loops and
	// retry timers from an abandoned connection cannot mutate state.
	gen int
}

// Option configures a Client.
type Option func(*Client)

// WithMaxRetries overrides the reconnect attempt ceiling.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithBaseDelay overrides the linear backoff base delay.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) { c.baseDelay = d }
}

// WithLogf overrides the warning log destination.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(c *Client) { c.logf = logf }
}

// WithFrameHook registers fn to observe every raw inbound frame before
// it is classified, e.g. for capture recording.
func WithFrameHook(fn func(frame []byte)) Option {
	return func(c *Client) { c.frameHook = fn }
}

// NewClient creates a client for the given ws:// or wss:// URL. No
// connection is attempted until Connect.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:        url,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logf:       log.Printf,
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
		handlers:   make(map[Channel][]registration),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the current consecutive failure count, for display.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// MaxRetries returns the configured reconnect attempt ceiling.
func (c *Client) MaxRetries() int {
	return c.maxRetries
}

// On registers a handler on a channel and returns a subscription id for
// Off. Handlers fire in registration order.
func (c *Client) On(ch Channel, fn Handler) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.handlers[ch] = append(c.handlers[ch], registration{id: c.nextID, fn: fn})
	return c.nextID
}

// Off removes a handler registered with On. Unknown ids are ignored.
func (c *Client) Off(ch Channel, id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	regs := c.handlers[ch]
	for i, r := range regs {
		if r.id == id {
			c.handlers[ch] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

// emit invokes the channel's handlers outside the state lock, in
// registration order.
func (c *Client) emit(ch Channel, v any) {
	c.mu.Lock()
	regs := make([]registration, len(c.handlers[ch]))
	copy(regs, c.handlers[ch])
	c.mu.Unlock()
	for _, r := range regs {
		r.fn(v)
	}
}

// Connect establishes the connection. It is idempotent: calling it while
// connecting or connected is a no-op. Dialing happens on a background
// goroutine; success fires the connected channel, failure enters the
// retry state machine. Connect also restarts a client that previously
// exhausted its retries.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected || c.state == StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.attempts = 0
	gen := c.gen
	c.mu.Unlock()

	go c.dial(gen)
}

func (c *Client) dial(gen int) {
	conn, _, err := c.dialer.Dial(c.url, nil)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		c.mu.Unlock()
		c.emit(ChanError, err)
		c.transportFailed(gen)
		return
	}
	c.conn = conn
	c.state = StateConnected
	c.attempts = 0
	c.mu.Unlock()

	c.emit(ChanConnected, nil)
	go c.readLoop(conn, gen)
}

// transportFailed runs the retry state machine after a dial failure or a
// connection drop. Below the ceiling it schedules a reconnect after
// baseDelay*attempt; at the ceiling it parks in terminal Disconnected.
func (c *Client) transportFailed(gen int) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.attempts++
	if c.attempts > c.maxRetries {
		c.state = StateDisconnected
		c.mu.Unlock()
		c.logf("ws: giving up after %d reconnect attempts", c.maxRetries)
		c.emit(ChanDisconnected, nil)
		return
	}
	c.state = StateReconnecting
	delay := c.baseDelay * time.Duration(c.attempts)
	attempt := c.attempts
	c.retryTimer = time.AfterFunc(delay, func() { c.dial(gen) })
	c.mu.Unlock()
	c.logf("ws: connection lost, retrying in %s (attempt %d/%d)", delay, attempt, c.maxRetries)
	c.emit(ChanDisconnected, nil)
}

func (c *Client) readLoop(conn *websocket.Conn, gen int) {
	router := &Router{Emit: c.emit, Logf: c.logf}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			stale := gen != c.gen
			c.mu.Unlock()
			if !stale {
				c.emit(ChanError, err)
				c.transportFailed(gen)
			}
			return
		}
		if c.frameHook != nil {
			c.frameHook(data)
		}
		router.Dispatch(data)
	}
}

// Send serializes v and transmits it. When the connection is not live
// the frame is dropped with a logged warning: there is no send queue,
// and messages sent while disconnected are unrecoverably lost.
func (c *Client) Send(v any) {
	c.mu.Lock()
	conn := c.conn
	live := c.state == StateConnected && conn != nil
	c.mu.Unlock()

	if !live {
		c.logf("ws: not connected, dropping outbound frame")
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.logf("ws: marshal outbound frame: %v", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logf("ws: write: %v", err)
		c.emit(ChanError, err)
	}
}

// SendMessage transmits a send_message frame on behalf of a sender.
func (c *Client) SendMessage(senderID, receiverID, content string) {
	c.Send(map[string]any{
		"type":        "send_message",
		"sender_id":   senderID,
		"receiver_id": receiverID,
		"content":     content,
	})
}

// Close tears the connection down and stops any pending reconnect. The
// client may be reused via Connect afterwards.
func (c *Client) Close() {
	c.mu.Lock()
	c.gen++
	c.state = StateDisconnected
	c.attempts = 0
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}
