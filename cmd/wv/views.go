package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"worldview/internal/model"
)

// --- Styles ---

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Background(lipgloss.Color("#1E1E2E")).
			Padding(0, 1)

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#CDD6F4")).
			Background(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#6C7086")).
				Background(lipgloss.Color("#313244")).
				Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#89B4FA"))

	agentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A6E3A1"))

	agentIdleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F38BA8"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C7086"))

	msgFromStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#89B4FA")).
			Bold(true)

	msgToStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A6E3A1"))

	broadcastStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F9E2AF")).
			Bold(true)

	positiveStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A6E3A1")).
			Bold(true)

	negativeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F38BA8")).
			Bold(true)

	eventWeatherStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#89DCEB"))

	eventConflictStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#F38BA8"))

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CDD6F4")).
			Background(lipgloss.Color("#1E1E2E"))

	composeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F9E2AF")).
			Bold(true)
)

// --- View rendering ---

func (m uiModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	b.WriteString(m.renderTitleBar())
	b.WriteRune('\n')

	b.WriteString(m.renderTabBar())
	b.WriteRune('\n')
	b.WriteRune('\n')

	contentHeight := m.height - 5 // title + tabs + status + padding
	if m.showHelp {
		contentHeight -= 3
	}
	// Tiny terminals leave no content rows at all; clamp rather than
	// slice with a negative bound.
	if contentHeight < 0 {
		contentHeight = 0
	}

	var content string

	// Split-pane: Dashboard + Agent Detail side by side on wide terminals.
	if m.activeView == viewDashboard && m.width >= 120 && m.detailAgentID == "" &&
		len(m.snap.Agents) > 0 && m.selectedAgent < len(m.snap.Agents) {
		leftWidth := m.width/2 - 1
		rightWidth := m.width - leftWidth - 3 // 3 for separator

		left := m.renderDashboard()
		agentID := m.snap.Agents[m.selectedAgent].ID
		right := m.renderAgentDetailFor(agentID)

		content = renderSplitPane(left, right, leftWidth, rightWidth, contentHeight)
	} else {
		switch m.activeView {
		case viewDashboard:
			content = m.renderDashboard()
		case viewMessages:
			content = m.renderMessages()
		case viewRelationships:
			content = m.renderRelationships()
		case viewEvents:
			content = m.renderEvents()
		case viewAgentDetail:
			content = m.renderAgentDetailFor(m.detailAgentID)
		}

		// Apply scroll using a local variable; View() has a value
		// receiver, so mutating m.scrollPos here would be dead code.
		lines := strings.Split(content, "\n")
		scrollPos := m.scrollPos
		if scrollPos >= len(lines) {
			scrollPos = max(0, len(lines)-1)
		}
		if scrollPos > 0 && scrollPos < len(lines) {
			lines = lines[scrollPos:]
		}
		if len(lines) > contentHeight {
			lines = lines[:contentHeight]
		}
		content = strings.Join(lines, "\n")
	}

	// Truncate each line to terminal width so content doesn't wrap on
	// resize. Uses ANSI-aware width measurement.
	content = truncateLines(content, m.width)

	b.WriteString(content)

	// Pad to fill screen.
	rendered := strings.Count(b.String(), "\n")
	for rendered < m.height-2 {
		b.WriteRune('\n')
		rendered++
	}

	switch {
	case m.composing:
		b.WriteString(m.renderComposeBar())
	case m.showHelp:
		b.WriteString(m.help.View(keys))
	default:
		b.WriteString(m.renderStatusBar())
	}

	return b.String()
}

func (m uiModel) renderTitleBar() string {
	title := titleStyle.Render("world viewer")
	stats := dimStyle.Render(fmt.Sprintf(
		"%d agents | %d messages | %d events",
		m.snap.TotalAgents,
		m.snap.TotalMessages,
		m.snap.TotalEvents,
	))
	gap := strings.Repeat(" ", max(0, m.width-lipgloss.Width(title)-lipgloss.Width(stats)-2))
	return title + gap + stats
}

func (m uiModel) renderTabBar() string {
	var tabs []string
	for i := viewID(0); i < viewCount; i++ {
		if i == m.activeView {
			tabs = append(tabs, tabActiveStyle.Render(i.String()))
		} else {
			tabs = append(tabs, tabInactiveStyle.Render(i.String()))
		}
	}
	if m.activeView == viewAgentDetail {
		tabs = append(tabs, tabActiveStyle.Render("Agent: "+m.detailAgentName()))
	}
	return strings.Join(tabs, " ")
}

func (m uiModel) detailAgentName() string {
	if ag, ok := m.snap.AgentByID(m.detailAgentID); ok {
		return ag.Name
	}
	return m.detailAgentID.String()
}

func (m uiModel) renderStatusBar() string {
	ago := time.Since(m.lastRefresh).Truncate(time.Second)
	left := fmt.Sprintf(" %s", contextHelp(m.activeView))
	right := fmt.Sprintf("%s | refreshed %s ago ", m.connStatus(), ago)
	gap := strings.Repeat(" ", max(0, m.width-len(left)-len(right)))
	return statusBarStyle.Render(left + gap + right)
}

func (m uiModel) renderComposeBar() string {
	to := m.detailAgentName()
	if m.activeView != viewAgentDetail {
		if ag, ok := m.snap.AgentByID(m.composeTarget); ok {
			to = ag.Name
		} else {
			to = m.composeTarget.String()
		}
	}
	prompt := composeStyle.Render(fmt.Sprintf(" To %s: ", to))
	return prompt + m.composeInput.View()
}

// --- Dashboard view ---

func (m uiModel) renderDashboard() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("Agents"))
	b.WriteRune('\n')
	b.WriteString(dimStyle.Render(fmt.Sprintf("  %-14s %-16s %-14s %-6s %-5s %s",
		"Name", "Mood", "Location", "Msgs", "Mem", "Plan")))
	b.WriteRune('\n')

	for i, ag := range m.snap.Agents {
		style := agentStyle
		if ag.Status != "" && ag.Status != "active" {
			style = agentIdleStyle
		}

		mood := m.snap.Moods[ag.ID]
		moodStr := "-"
		if mood.Name != "" {
			moodStr = fmt.Sprintf("%s %.2f", mood.Name, mood.Score)
		}

		cursor := "  "
		if i == m.selectedAgent {
			cursor = "> "
		}
		line := fmt.Sprintf("%s%-14s %-16s %-14s %-6d %-5d %s",
			cursor,
			truncate(ag.Name, 14),
			moodStr,
			truncate(ag.Location, 14),
			len(m.snap.MessagesBySender[ag.ID]),
			ag.MemoryCount,
			truncate(ag.CurrentPlan, 40))
		if i == m.selectedAgent {
			b.WriteString(style.Bold(true).Render(line))
		} else {
			b.WriteString(style.Render(line))
		}
		b.WriteRune('\n')
	}

	if len(m.snap.Agents) == 0 {
		b.WriteString(dimStyle.Render("  (no agents in the world yet)"))
		b.WriteRune('\n')
	}

	b.WriteRune('\n')

	// Recent world events.
	b.WriteString(headerStyle.Render("Recent Events"))
	b.WriteRune('\n')
	events := m.snap.Events
	start := max(0, len(events)-5)
	for i := len(events) - 1; i >= start; i-- {
		b.WriteString("  ")
		b.WriteString(renderEventLine(events[i]))
		b.WriteRune('\n')
	}
	if len(events) == 0 {
		b.WriteString(dimStyle.Render("  (no events yet)"))
		b.WriteRune('\n')
	}

	return b.String()
}

// --- Messages view ---

// feedEntry pairs a message with a sortable instant for the merged feed.
type feedEntry struct {
	msg   model.Message
	order int // arrival order within the sender, for ties and zero times
}

func (m uiModel) renderMessages() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Messages"))
	if m.filterAgent != "" {
		b.WriteString(dimStyle.Render(" "))
		b.WriteString(msgFromStyle.Render(fmt.Sprintf("[filter: %s]", m.agentName(m.filterAgent))))
	}
	b.WriteRune('\n')

	feed := mergeFeed(m.snap.MessagesBySender)
	if m.filterAgent != "" {
		var filtered []feedEntry
		for _, e := range feed {
			if e.msg.SenderID == m.filterAgent || e.msg.ReceiverID == m.filterAgent {
				filtered = append(filtered, e)
			}
		}
		feed = filtered
	}

	if len(feed) == 0 {
		if m.filterAgent != "" {
			b.WriteString(dimStyle.Render(fmt.Sprintf("  (no messages involving %s)", m.agentName(m.filterAgent))))
		} else {
			b.WriteString(dimStyle.Render("  (no messages)"))
		}
		b.WriteRune('\n')
		return b.String()
	}

	bodyIndent := "        " // 8 spaces
	bodyWidth := m.width - len(bodyIndent) - 1
	if bodyWidth < 20 {
		bodyWidth = 20
	}

	// Most recent first.
	for i := len(feed) - 1; i >= 0; i-- {
		msg := feed[i].msg
		from := msgFromStyle.Render(m.agentName(msg.SenderID))
		var to string
		if msg.Broadcast() {
			to = broadcastStyle.Render("everyone")
		} else {
			to = msgToStyle.Render(m.agentName(msg.ReceiverID))
		}
		ts := dimStyle.Render("[" + msg.Timestamp.String() + "]")
		b.WriteString(fmt.Sprintf("  %s %s -> %s\n", ts, from, to))
		for _, line := range wrapText(msg.Content, bodyWidth) {
			b.WriteString(bodyIndent)
			b.WriteString(line)
			b.WriteRune('\n')
		}
	}

	return b.String()
}

// mergeFeed flattens per-sender histories into one chronological feed.
// Messages without a parseable instant keep their per-sender order and
// sort after timestamped ones from the same comparison.
func mergeFeed(bySender map[model.ID][]model.Message) []feedEntry {
	var feed []feedEntry
	for _, msgs := range bySender {
		for i, msg := range msgs {
			feed = append(feed, feedEntry{msg: msg, order: i})
		}
	}
	sort.SliceStable(feed, func(i, j int) bool {
		ti, tj := feed[i].msg.Timestamp, feed[j].msg.Timestamp
		switch {
		case !ti.IsZero() && !tj.IsZero():
			return ti.Before(tj.Time)
		case ti.IsZero() && tj.IsZero():
			return feed[i].order < feed[j].order
		default:
			return tj.IsZero() // timestamped entries first
		}
	})
	return feed
}

// agentName resolves an id to a display name, falling back to the id.
func (m uiModel) agentName(id model.ID) string {
	if ag, ok := m.snap.AgentByID(id); ok && ag.Name != "" {
		return ag.Name
	}
	return id.String()
}

// --- Relationships view ---

func (m uiModel) renderRelationships() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Relationships"))
	b.WriteRune('\n')
	b.WriteString(dimStyle.Render("  One row per directed edge. Entries may be one-sided: the"))
	b.WriteRune('\n')
	b.WriteString(dimStyle.Render("  reverse direction is shown only if that agent reports it."))
	b.WriteRune('\n')
	b.WriteRune('\n')

	var any bool
	for _, ag := range m.snap.Agents {
		ids := make([]model.ID, 0, len(ag.Relationships))
		for other := range ag.Relationships {
			ids = append(ids, other)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		for _, other := range ids {
			rel := ag.Relationships[other]
			any = true
			affStyle := positiveStyle
			if rel.Affinity < 0 {
				affStyle = negativeStyle
			}
			b.WriteString(fmt.Sprintf("  %-14s -> %-14s  affinity %s  familiarity %s %s\n",
				truncate(ag.Name, 14),
				truncate(m.agentName(other), 14),
				affStyle.Render(fmt.Sprintf("%+.2f", rel.Affinity)),
				dimStyle.Render(fmt.Sprintf("%.2f", rel.Familiarity)),
				renderBar(rel.Familiarity, 10)))
		}
	}

	if !any {
		b.WriteString(dimStyle.Render("  (no relationships reported)"))
		b.WriteRune('\n')
	}

	return b.String()
}

// --- Events view ---

func renderEventLine(e model.Event) string {
	ts := dimStyle.Render("[" + e.Timestamp.String() + "]")
	var badge string
	switch e.Kind {
	case model.EventWeather:
		badge = eventWeatherStyle.Render("weather")
	case model.EventConflict:
		badge = eventConflictStyle.Render("conflict")
	case model.EventArrival:
		badge = positiveStyle.Render("arrival")
	default:
		badge = dimStyle.Render("event")
	}
	return fmt.Sprintf("%s %-8s %s", ts, badge, e.Text)
}

func (m uiModel) renderEvents() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("World Events"))
	b.WriteRune('\n')

	events := m.snap.Events
	if len(events) == 0 {
		b.WriteString(dimStyle.Render("  (no events)"))
		b.WriteRune('\n')
		return b.String()
	}

	// Most recent first.
	for i := len(events) - 1; i >= 0; i-- {
		b.WriteString("  ")
		b.WriteString(renderEventLine(events[i]))
		b.WriteRune('\n')
	}

	return b.String()
}

// --- Agent Detail view ---

var (
	detailHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#CBA6F7"))

	detailSectionStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#89B4FA")).
				MarginTop(1)
)

func (m uiModel) renderAgentDetailFor(agentID model.ID) string {
	var b strings.Builder

	agent, ok := m.snap.AgentByID(agentID)
	if !ok {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  Agent %q not found", agentID)))
		return b.String()
	}

	// Header.
	b.WriteString(detailHeaderStyle.Render(fmt.Sprintf("Agent: %s", agent.Name)))
	if agent.Avatar != "" {
		b.WriteString(dimStyle.Render("  " + agent.Avatar))
	}
	if agent.Status != "" {
		b.WriteString("  ")
		if agent.Status == "active" {
			b.WriteString(positiveStyle.Render("ACTIVE"))
		} else {
			b.WriteString(negativeStyle.Render(strings.ToUpper(agent.Status)))
		}
	}
	b.WriteRune('\n')
	b.WriteString(dimStyle.Render(fmt.Sprintf("  id: %s | location: %s | memories: %d",
		agent.ID, orDash(agent.Location), agent.MemoryCount)))
	b.WriteRune('\n')
	if agent.CurrentPlan != "" {
		b.WriteString(fmt.Sprintf("  Plan: %s\n", agent.CurrentPlan))
	}

	// Personality (OCEAN).
	b.WriteString(detailSectionStyle.Render("Personality"))
	b.WriteRune('\n')
	for _, tr := range agent.Personality.Traits() {
		b.WriteString(fmt.Sprintf("  %-18s %s %.2f\n", tr.Name, renderBar(tr.Score, 20), tr.Score))
	}

	// Emotions, strongest first.
	b.WriteString(detailSectionStyle.Render("Emotions"))
	b.WriteRune('\n')
	if len(agent.Emotions) == 0 {
		b.WriteString(dimStyle.Render("  (none reported)"))
		b.WriteRune('\n')
	} else {
		names := make([]string, 0, len(agent.Emotions))
		for name := range agent.Emotions {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			vi, vj := agent.Emotions[names[i]], agent.Emotions[names[j]]
			if vi != vj {
				return vi > vj
			}
			return names[i] < names[j]
		})
		for _, name := range names {
			b.WriteString(fmt.Sprintf("  %-18s %s %.2f\n", name, renderBar(agent.Emotions[name], 20), agent.Emotions[name]))
		}
	}

	// Relationships.
	b.WriteString(detailSectionStyle.Render("Relationships"))
	b.WriteRune('\n')
	if len(agent.Relationships) == 0 {
		b.WriteString(dimStyle.Render("  (none)"))
		b.WriteRune('\n')
	} else {
		ids := make([]model.ID, 0, len(agent.Relationships))
		for other := range agent.Relationships {
			ids = append(ids, other)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, other := range ids {
			rel := agent.Relationships[other]
			affStyle := positiveStyle
			if rel.Affinity < 0 {
				affStyle = negativeStyle
			}
			b.WriteString(fmt.Sprintf("  %-14s affinity %s  familiarity %.2f\n",
				truncate(m.agentName(other), 14),
				affStyle.Render(fmt.Sprintf("%+.2f", rel.Affinity)),
				rel.Familiarity))
		}
	}

	// Memories, newest last as delivered.
	b.WriteString(detailSectionStyle.Render("Memories"))
	b.WriteRune('\n')
	if len(agent.Memories) == 0 {
		b.WriteString(dimStyle.Render("  (roster payloads carry only the count)"))
		b.WriteRune('\n')
	} else {
		for _, mem := range agent.Memories {
			b.WriteString(fmt.Sprintf("  %s %s\n",
				dimStyle.Render("["+mem.Timestamp+"]"),
				truncate(mem.Content, 80)))
		}
	}

	// Recent messages sent by this agent.
	b.WriteString(detailSectionStyle.Render("Messages Sent"))
	b.WriteRune('\n')
	sent := m.snap.MessagesBySender[agentID]
	var count int
	for i := len(sent) - 1; i >= 0 && count < 15; i-- {
		msg := sent[i]
		var to string
		if msg.Broadcast() {
			to = broadcastStyle.Render("everyone")
		} else {
			to = msgToStyle.Render(m.agentName(msg.ReceiverID))
		}
		b.WriteString(fmt.Sprintf("  %s -> %s: %s\n",
			dimStyle.Render("["+msg.Timestamp.String()+"]"),
			to,
			truncate(msg.Content, 60)))
		count++
	}
	if count == 0 {
		b.WriteString(dimStyle.Render("  (none)"))
		b.WriteRune('\n')
	}

	return b.String()
}

// --- Split-pane rendering ---

// renderSplitPane renders two content panes side by side with a vertical
// separator.
func renderSplitPane(left, right string, leftWidth, rightWidth, maxHeight int) string {
	leftLines := strings.Split(left, "\n")
	rightLines := strings.Split(right, "\n")

	maxLines := max(len(leftLines), len(rightLines))
	if maxLines > maxHeight {
		maxLines = maxHeight
	}
	for len(leftLines) < maxLines {
		leftLines = append(leftLines, "")
	}
	for len(rightLines) < maxLines {
		rightLines = append(rightLines, "")
	}

	sep := dimStyle.Render("│")
	var b strings.Builder
	for i := 0; i < maxLines; i++ {
		l := padOrTruncate(leftLines[i], leftWidth)
		r := ansi.Truncate(rightLines[i], rightWidth, "")
		b.WriteString(l)
		b.WriteString(" ")
		b.WriteString(sep)
		b.WriteString(" ")
		b.WriteString(r)
		b.WriteRune('\n')
	}
	return b.String()
}

// padOrTruncate pads or truncates a line to the target visible width,
// preserving ANSI styling.
func padOrTruncate(styled string, width int) string {
	visWidth := lipgloss.Width(styled)
	if visWidth > width {
		return ansi.Truncate(styled, width, "")
	}
	return styled + strings.Repeat(" ", width-visWidth)
}

// --- Helpers ---

// renderBar draws a fixed-width unipolar bar for a score in [0, 1].
func renderBar(score float64, width int) string {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	filled := int(score*float64(width) + 0.5)
	return dimStyle.Render(strings.Repeat("█", filled) + strings.Repeat("░", width-filled))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncateLines truncates each line in content to at most width visible
// characters, preserving ANSI escape codes. This prevents terminal line
// wrapping when the window is resized narrower.
func truncateLines(content string, width int) string {
	if width <= 0 {
		return content
	}
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if lipgloss.Width(line) > width {
			lines[i] = ansi.Truncate(line, width, "")
		}
	}
	return strings.Join(lines, "\n")
}

// wrapText breaks s into lines of at most width characters, splitting on
// word boundaries where possible. If a single word exceeds width it is
// hard-split. Embedded newlines are respected.
func wrapText(s string, width int) []string {
	if width <= 0 {
		width = 80
	}

	paragraphs := strings.Split(s, "\n")
	var lines []string
	for _, para := range paragraphs {
		lines = append(lines, wrapParagraph(para, width)...)
	}
	return lines
}

// wrapParagraph wraps a single paragraph (no embedded newlines) to width.
func wrapParagraph(s string, width int) []string {
	if len(s) <= width {
		return []string{s}
	}

	var lines []string
	for len(s) > 0 {
		if len(s) <= width {
			lines = append(lines, s)
			break
		}
		// Try to break at a space at or before position width.
		cut := -1
		for i := width; i > 0; i-- {
			if s[i] == ' ' {
				cut = i
				break
			}
		}
		if cut <= 0 {
			// No space found — hard-split at width.
			cut = width
			lines = append(lines, s[:cut])
			s = s[cut:]
		} else {
			lines = append(lines, s[:cut])
			s = s[cut+1:] // skip the space
		}
	}
	return lines
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
