// wv is a real-time TUI viewer for a virtual world simulator populated
// by AI agents with personality, emotion, and memory.
//
// It connects to the simulator's WebSocket endpoint, mirrors the pushed
// world state into a local store, and displays agents, conversations,
// relationships, and world events in real time.
//
// Usage:
//
//	wv                          # Connect to ws://localhost:8000/ws
//	wv --url ws://host:8000/ws  # Use a specific endpoint
//	wv --config path            # Use a specific config file
//	wv --json                   # Dump the first world state as JSON and exit
//	wv --record capture.jsonl   # Append all inbound frames to a capture file
//	wv --replay capture.jsonl   # Play a capture file instead of connecting
//	wv --follow                 # With --replay: keep tailing the capture
//	wv --rate 10                # With --replay: pace playback (frames/sec)
//	wv --agent <id>             # Focus on a specific agent on startup
//	wv --view dashboard         # Start in a specific view
//	wv --as <id>                # Sender identity for composed messages
//	wv --version                # Print version and exit
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"worldview/internal/config"
	"worldview/internal/datasource"
	"worldview/internal/model"
	"worldview/internal/snapshot"
	"worldview/internal/store"
	"worldview/internal/ws"
)

// Version is set via ldflags at build time (e.g. -X main.Version=v0.1.0).
var Version = "dev"

// parseViewFlag maps a --view flag string to a viewID.
func parseViewFlag(s string) (viewID, error) {
	switch strings.ToLower(s) {
	case "dashboard", "d":
		return viewDashboard, nil
	case "messages", "m":
		return viewMessages, nil
	case "relationships", "r":
		return viewRelationships, nil
	case "events", "e":
		return viewEvents, nil
	default:
		return 0, fmt.Errorf("unknown view %q (valid: dashboard, messages, relationships, events)", s)
	}
}

func main() {
	urlFlag := flag.String("url", "", "simulator websocket URL (default: from config, ws://localhost:8000/ws)")
	configFlag := flag.String("config", "", "path to config file (default: auto-discover .worldview.yaml)")
	jsonMode := flag.Bool("json", false, "dump the first world state as JSON and exit (no TUI)")
	recordFlag := flag.String("record", "", "append all inbound frames to a capture file")
	replayFlag := flag.String("replay", "", "play a capture file instead of connecting")
	followFlag := flag.Bool("follow", false, "with --replay: keep tailing the capture file")
	rateFlag := flag.Float64("rate", 0, "with --replay: playback pace in frames/sec (0 = unpaced)")
	agentFlag := flag.String("agent", "", "highlight/focus a specific agent on startup")
	viewFlag := flag.String("view", "", "start in specific view (dashboard|messages|relationships|events)")
	asFlag := flag.String("as", "observer", "sender identity for composed messages")
	versionFlag := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("wv %s\n", Version)
		os.Exit(0)
	}

	cfg, err := loadConfig(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wv: %v\n", err)
		os.Exit(1)
	}
	if *urlFlag != "" {
		cfg.Server.URL = *urlFlag
	}

	// The TUI owns the terminal; route library warnings to a debug file
	// when asked for, otherwise drop them.
	logf := log.Printf
	if !*jsonMode {
		if path := os.Getenv("WORLDVIEW_DEBUG"); path != "" {
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				fmt.Fprintf(os.Stderr, "wv: debug log: %v\n", err)
				os.Exit(1)
			}
			defer f.Close()
			logf = log.New(f, "", log.LstdFlags).Printf
		} else {
			logf = log.New(io.Discard, "", 0).Printf
		}
	}

	st := store.NewWithLimits(cfg.History.MaxPerSender, cfg.History.MaxEvents)

	var recorder *datasource.Recorder
	if *recordFlag != "" {
		recorder, err = datasource.NewRecorder(*recordFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "wv: %v\n", err)
			os.Exit(1)
		}
		defer recorder.Close()
	}

	if *replayFlag != "" {
		if err := runReplay(st, *replayFlag, *rateFlag, *followFlag, *jsonMode, *agentFlag, *viewFlag, *asFlag, logf); err != nil {
			fmt.Fprintf(os.Stderr, "wv: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := runLive(st, cfg, recorder, *jsonMode, *agentFlag, *viewFlag, *asFlag, logf); err != nil {
		fmt.Fprintf(os.Stderr, "wv: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		discovered, err := config.Discover()
		if err != nil {
			return nil, err
		}
		if discovered == "" {
			return config.Default(), nil
		}
		path = discovered
	}
	return config.Load(path)
}

// wireStore routes decoded payloads from any source into the store.
func wireStore(st *store.Store) func(ch ws.Channel, v any) {
	return func(ch ws.Channel, v any) {
		switch ch {
		case ws.ChanWorldState:
			st.ApplyWorldState(v.(*model.WorldState))
		case ws.ChanAgentMessage:
			st.ApplyAgentMessage(v.(*model.Message))
		case ws.ChanEvent:
			st.ApplyEvent(v.(*model.Event))
		}
	}
}

// runLive connects to the simulator and runs the TUI (or --json dump).
func runLive(st *store.Store, cfg *config.Config, recorder *datasource.Recorder, jsonMode bool, agentFlag, viewFlag, senderID string, logf func(string, ...any)) error {
	opts := []ws.Option{
		ws.WithMaxRetries(cfg.Server.MaxRetries),
		ws.WithBaseDelay(time.Duration(cfg.Server.RetryBaseDelay)),
		ws.WithLogf(logf),
	}
	if recorder != nil {
		opts = append(opts, ws.WithFrameHook(func(frame []byte) {
			if err := recorder.Record(frame); err != nil {
				logf("wv: record: %v", err)
			}
		}))
	}
	client := ws.NewClient(cfg.Server.URL, opts...)
	defer client.Close()

	apply := wireStore(st)
	firstState := make(chan struct{}, 1)
	client.On(ws.ChanWorldState, func(v any) {
		apply(ws.ChanWorldState, v)
		select {
		case firstState <- struct{}{}:
		default:
		}
	})
	client.On(ws.ChanAgentMessage, func(v any) { apply(ws.ChanAgentMessage, v) })
	client.On(ws.ChanEvent, func(v any) { apply(ws.ChanEvent, v) })

	client.Connect()

	// --json mode: wait for the first snapshot, print, exit.
	if jsonMode {
		select {
		case <-firstState:
		case <-time.After(15 * time.Second):
			return fmt.Errorf("no world state received from %s within 15s", cfg.Server.URL)
		}
		return dumpJSON(snapshot.Build(st))
	}

	m := newModel(st, client, senderID)
	return runTUI(m, st, agentFlag, viewFlag)
}

// runReplay plays a capture file into the store and runs the TUI.
func runReplay(st *store.Store, path string, rate float64, follow, jsonMode bool, agentFlag, viewFlag, senderID string, logf func(string, ...any)) error {
	// --json replays the whole capture synchronously first.
	if jsonMode {
		rep, err := datasource.NewReplayer(path, 0, false)
		if err != nil {
			return err
		}
		defer rep.Close()
		router := &ws.Router{Emit: wireStore(st), Logf: logf}
		for frame := range rep.Frames() {
			router.Dispatch(frame)
		}
		if err := rep.Err(); err != nil {
			return err
		}
		return dumpJSON(snapshot.Build(st))
	}

	rep, err := datasource.NewReplayer(path, rate, follow)
	if err != nil {
		return err
	}
	defer rep.Close()

	router := &ws.Router{Emit: wireStore(st), Logf: logf}
	go func() {
		for frame := range rep.Frames() {
			router.Dispatch(frame)
		}
	}()

	m := newModel(st, nil, senderID)
	m.replayPath = path
	return runTUI(m, st, agentFlag, viewFlag)
}

// runTUI applies startup flags and runs the bubbletea program, feeding
// store changes in as messages.
func runTUI(m uiModel, st *store.Store, agentFlag, viewFlag string) error {
	if viewFlag != "" {
		v, err := parseViewFlag(viewFlag)
		if err != nil {
			return err
		}
		m.activeView = v
	}

	m.snap = snapshot.Build(st)
	if agentFlag != "" {
		for i, ag := range m.snap.Agents {
			if ag.ID == model.ID(agentFlag) {
				m.selectedAgent = i
				m.detailAgentID = ag.ID
				m.activeView = viewAgentDetail
				break
			}
		}
	}

	p := tea.NewProgram(m, tea.WithAltScreen())

	// Feed store mutations into the TUI, coalescing bursts.
	changed := make(chan struct{}, 1)
	cancel := st.Subscribe(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer cancel()
	go func() {
		for range changed {
			p.Send(storeChangedMsg{})
		}
	}()

	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}

// --- JSON output mode ---

// jsonOutput is the structure for --json mode.
type jsonOutput struct {
	Agents   []jsonAgent   `json:"agents"`
	Messages []jsonMessage `json:"messages"`
	Events   []jsonEvent   `json:"events"`
	Stats    jsonStats     `json:"stats"`
}

type jsonAgent struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Mood        string             `json:"mood"`
	Plan        string             `json:"plan,omitempty"`
	Location    string             `json:"location,omitempty"`
	Emotions    map[string]float64 `json:"emotions,omitempty"`
	MemoryCount int                `json:"memory_count"`
}

type jsonMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to,omitempty"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

type jsonEvent struct {
	Text      string `json:"text"`
	Kind      string `json:"kind"`
	Timestamp string `json:"timestamp,omitempty"`
}

type jsonStats struct {
	TotalAgents   int `json:"total_agents"`
	TotalMessages int `json:"total_messages"`
	TotalEvents   int `json:"total_events"`
}

func dumpJSON(snap *snapshot.DataSnapshot) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(buildJSONOutput(snap))
}

// buildJSONOutput converts a snapshot into the JSON output structure.
func buildJSONOutput(snap *snapshot.DataSnapshot) jsonOutput {
	agents := make([]jsonAgent, len(snap.Agents))
	for i, ag := range snap.Agents {
		agents[i] = jsonAgent{
			ID:          ag.ID.String(),
			Name:        ag.Name,
			Mood:        snap.Moods[ag.ID].Name,
			Plan:        ag.CurrentPlan,
			Location:    ag.Location,
			Emotions:    ag.Emotions,
			MemoryCount: ag.MemoryCount,
		}
	}

	messages := make([]jsonMessage, 0, snap.TotalMessages)
	for _, ag := range snap.Agents {
		for _, m := range snap.MessagesBySender[ag.ID] {
			messages = append(messages, jsonMessage{
				ID:        m.ID.String(),
				From:      m.SenderID.String(),
				To:        m.ReceiverID.String(),
				Content:   m.Content,
				Timestamp: m.Timestamp.String(),
			})
		}
	}

	events := make([]jsonEvent, len(snap.Events))
	for i, e := range snap.Events {
		events[i] = jsonEvent{
			Text:      e.Text,
			Kind:      string(e.Kind),
			Timestamp: e.Timestamp.String(),
		}
	}

	return jsonOutput{
		Agents:   agents,
		Messages: messages,
		Events:   events,
		Stats: jsonStats{
			TotalAgents:   snap.TotalAgents,
			TotalMessages: snap.TotalMessages,
			TotalEvents:   snap.TotalEvents,
		},
	}
}

// --- Messages ---

type storeChangedMsg struct{}

type snapshotReadyMsg struct {
	snap *snapshot.DataSnapshot
}

type tickMsg struct{}

// --- Key bindings ---

type keyMap struct {
	Quit    key.Binding
	Tab     key.Binding
	Up      key.Binding
	Down    key.Binding
	Help    key.Binding
	Enter   key.Binding
	Esc     key.Binding
	Filter  key.Binding
	Compose key.Binding
}

var keys = keyMap{
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Tab:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next view")),
	Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("k/up", "up")),
	Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("j/down", "down")),
	Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Enter:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select agent")),
	Esc:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	Filter:  key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "filter agent")),
	Compose: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "compose message")),
}

// viewKeys maps single keys to views for fast navigation.
var viewKeys = map[string]viewID{
	"d": viewDashboard,
	"m": viewMessages,
	"r": viewRelationships,
	"e": viewEvents,
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.Compose, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Tab, k.Up, k.Down, k.Filter},
		{k.Enter, k.Esc, k.Compose, k.Quit},
	}
}

// contextHelp returns help text appropriate for the current view.
func contextHelp(v viewID) string {
	switch v {
	case viewDashboard:
		return "j/k: select agent | enter: drill down | c: compose | d/m/r/e: views | tab: next | ?: help | q: quit"
	case viewAgentDetail:
		return "j/k: scroll | c: compose | esc: back to dashboard | d/m/r/e: views | ?: help | q: quit"
	case viewMessages:
		return "j/k: scroll | /: filter agent | d/m/r/e: views | tab: next | ?: help | q: quit"
	default:
		return "j/k: scroll | d/m/r/e: views | tab: next | ?: help | q: quit"
	}
}

// --- Views ---

type viewID int

const (
	viewDashboard viewID = iota
	viewMessages
	viewRelationships
	viewEvents
	viewCount // sentinel — views below here are not in the tab bar
	viewAgentDetail
)

func (v viewID) String() string {
	switch v {
	case viewDashboard:
		return "Dashboard"
	case viewMessages:
		return "Messages"
	case viewRelationships:
		return "Relationships"
	case viewEvents:
		return "Events"
	case viewAgentDetail:
		return "Agent Detail"
	}
	return "?"
}

// --- Model ---

type uiModel struct {
	st       *store.Store
	client   *ws.Client // nil in replay mode
	snap     *snapshot.DataSnapshot
	senderID string

	replayPath string // non-empty in replay mode

	activeView    viewID
	width         int
	height        int
	scrollPos     int
	selectedAgent int
	detailAgentID model.ID
	filterAgent   model.ID // agent filter for Messages ("" = all)

	composing     bool
	composeTarget model.ID
	composeInput  textinput.Model

	help     help.Model
	showHelp bool

	lastRefresh time.Time
}

func newModel(st *store.Store, client *ws.Client, senderID string) uiModel {
	ti := textinput.New()
	ti.Placeholder = "message"
	ti.CharLimit = 280
	return uiModel{
		st:           st,
		client:       client,
		senderID:     senderID,
		snap:         snapshot.Build(st),
		composeInput: ti,
		help:         help.New(),
		lastRefresh:  time.Now(),
	}
}

func (m uiModel) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg{}
	})
}

func (m uiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.composing {
			return m.updateCompose(msg)
		}

		// Check single-key view shortcuts first (always available).
		if v, ok := viewKeys[msg.String()]; ok {
			m.activeView = v
			m.scrollPos = 0
			m.detailAgentID = ""
			if v != viewMessages {
				m.filterAgent = ""
			}
			return m, nil
		}

		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, keys.Esc):
			if m.activeView == viewAgentDetail {
				m.activeView = viewDashboard
				m.detailAgentID = ""
				m.scrollPos = 0
			}

		case key.Matches(msg, keys.Enter):
			if m.activeView == viewDashboard && len(m.snap.Agents) > 0 {
				if m.selectedAgent >= 0 && m.selectedAgent < len(m.snap.Agents) {
					m.detailAgentID = m.snap.Agents[m.selectedAgent].ID
					m.activeView = viewAgentDetail
					m.scrollPos = 0
				}
			}

		case key.Matches(msg, keys.Tab):
			if m.activeView == viewAgentDetail {
				m.activeView = viewDashboard
				m.detailAgentID = ""
			} else {
				m.activeView = (m.activeView + 1) % viewCount
			}
			if m.activeView != viewMessages {
				m.filterAgent = ""
			}
			m.scrollPos = 0

		case key.Matches(msg, keys.Compose):
			if target, ok := m.composeCandidate(); ok {
				m.composing = true
				m.composeTarget = target
				m.composeInput.SetValue("")
				m.composeInput.Focus()
				return m, textinput.Blink
			}

		case key.Matches(msg, keys.Up):
			if m.activeView == viewDashboard {
				if m.selectedAgent > 0 {
					m.selectedAgent--
				}
			} else if m.scrollPos > 0 {
				m.scrollPos--
			}

		case key.Matches(msg, keys.Down):
			if m.activeView == viewDashboard {
				if m.selectedAgent < len(m.snap.Agents)-1 {
					m.selectedAgent++
				}
			} else {
				// Estimate max scroll generously; View() clamps overshoot.
				maxScroll := (m.snap.TotalMessages+m.snap.TotalAgents+m.snap.TotalEvents)*8 + 20
				if m.scrollPos < maxScroll {
					m.scrollPos++
				}
			}

		case key.Matches(msg, keys.Filter):
			// Cycle agent filter: "" -> agent1 -> agent2 -> ... -> "".
			if m.activeView == viewMessages {
				m.filterAgent = nextFilter(m.snap.Agents, m.filterAgent)
				m.scrollPos = 0
			}

		case key.Matches(msg, keys.Help):
			m.showHelp = !m.showHelp
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case storeChangedMsg:
		return m, m.refreshSnapshot()

	case snapshotReadyMsg:
		m.snap = msg.snap
		m.lastRefresh = time.Now()
		// Clamp selection: the roster may shrink between snapshots.
		if len(m.snap.Agents) == 0 {
			m.selectedAgent = 0
		} else if m.selectedAgent >= len(m.snap.Agents) {
			m.selectedAgent = len(m.snap.Agents) - 1
		}

	case tickMsg:
		return m, tickEvery()
	}

	return m, nil
}

// composeCandidate picks the receiver for a new message: the drilled-in
// agent on the detail view, else the selected roster row.
func (m uiModel) composeCandidate() (model.ID, bool) {
	if m.activeView == viewAgentDetail && m.detailAgentID != "" {
		return m.detailAgentID, true
	}
	if m.activeView == viewDashboard && m.selectedAgent >= 0 && m.selectedAgent < len(m.snap.Agents) {
		return m.snap.Agents[m.selectedAgent].ID, true
	}
	return "", false
}

// updateCompose handles key input while the compose line is open.
func (m uiModel) updateCompose(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Esc):
		m.composing = false
		m.composeInput.Blur()
		return m, nil

	case msg.Type == tea.KeyEnter:
		content := strings.TrimSpace(m.composeInput.Value())
		m.composing = false
		m.composeInput.Blur()
		if content == "" {
			return m, nil
		}
		if m.client != nil {
			m.client.SendMessage(m.senderID, m.composeTarget.String(), content)
		}
		// Local echo: composed messages get a client-generated id and a
		// pre-formatted display timestamp, unlike wire messages which
		// carry epoch seconds. Both normalize in the model layer.
		m.st.ApplyAgentMessage(&model.Message{
			ID:         model.ID(uuid.NewString()),
			SenderID:   model.ID(m.senderID),
			ReceiverID: m.composeTarget,
			Content:    content,
			Timestamp:  model.Now(),
		})
		return m, nil
	}

	var cmd tea.Cmd
	m.composeInput, cmd = m.composeInput.Update(msg)
	return m, cmd
}

// nextFilter advances the agent filter cycle: all -> first -> ... -> all.
func nextFilter(agents []model.Agent, current model.ID) model.ID {
	if len(agents) == 0 {
		return ""
	}
	if current == "" {
		return agents[0].ID
	}
	for i, ag := range agents {
		if ag.ID == current {
			if i+1 < len(agents) {
				return agents[i+1].ID
			}
			return "" // wrap to "all"
		}
	}
	return ""
}

func (m uiModel) refreshSnapshot() tea.Cmd {
	st := m.st
	return func() tea.Msg {
		return snapshotReadyMsg{snap: snapshot.Build(st)}
	}
}

// connStatus describes the data source for the status bar.
func (m uiModel) connStatus() string {
	if m.client == nil {
		return "replay " + m.replayPath
	}
	state := m.client.State()
	if state == ws.StateReconnecting {
		return fmt.Sprintf("reconnecting (attempt %d/%d)", m.client.Attempts(), m.client.MaxRetries())
	}
	return state.String()
}
