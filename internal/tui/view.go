package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ShawnNotFound/20251115GreatAgent/internal/domain"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/service"
)

var (
	panelBorder     = lipgloss.Color("#2D6A80")
	accentPrimary   = lipgloss.Color("#50E3C2")
	accentSecondary = lipgloss.Color("#F6AE2D")
	mutedText       = lipgloss.Color("#8CA1AE")
	warningText     = lipgloss.Color("#FF6B6B")
)

var (
	headerStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Bold(true).
			Foreground(accentPrimary)

	statusStyle = lipgloss.NewStyle().
			Foreground(accentSecondary).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(warningText).
			Bold(true)

	panelTitleStyle = lipgloss.NewStyle().
			Foreground(accentPrimary).
			Bold(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(panelBorder).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedText)

	selectedStyle = lipgloss.NewStyle().
			Foreground(accentPrimary).
			Bold(true)
)

var statusGlyphs = map[domain.NodeStatus]string{
	domain.NodeStatusIdle:      "·",
	domain.NodeStatusReady:     "○",
	domain.NodeStatusActive:    "▶",
	domain.NodeStatusAwaiting:  "?",
	domain.NodeStatusCompleted: "✓",
	domain.NodeStatusError:     "✗",
}

func (m Model) View() string {
	if !m.ready {
		return "Starting run console..."
	}

	header := headerStyle.Render("Run Console")
	if m.snap != nil {
		header = lipgloss.JoinHorizontal(lipgloss.Top, header, " ", renderRunLine(m.snap))
	}

	statusPrefix := "*"
	if m.snap != nil && (m.snap.Starting || m.snap.Phase == domain.RunPhaseRunning) {
		statusPrefix = m.spinner.View()
	}
	statusLine := statusStyle.Render(statusPrefix + " " + m.statusText)
	switch {
	case m.errorText != "":
		statusLine = errorStyle.Render(m.errorText)
	case m.snap != nil && m.snap.Notice != nil:
		statusLine = statusStyle.Render("! " + m.snap.Notice.Text)
	}

	panelW := maxInt(40, m.width-4)
	parts := []string{
		header,
		statusLine,
		renderPanel("Query", m.query.View(), panelW, m.focus == paneQuery),
	}
	if m.snap != nil {
		parts = append(parts,
			renderPanel("Pipeline", renderPipeline(m.snap), panelW, false),
			renderPanel("Decisions", renderDecisions(m.snap, m.selected), panelW, m.focus == paneBoard),
		)
		if details := renderDetails(m.snap); details != "" {
			parts = append(parts, renderPanel("Run", details, panelW, false))
		}
	}
	parts = append(parts, renderPanel("Event Log", m.log.View(), panelW, false))
	if m.showHelp {
		parts = append(parts, helpStyle.Render(
			"enter start/submit | esc/tab switch pane | p pause | r resume | s stop | m mode | left/right node | up/down option | t traces | ? help | q quit"))
	}
	return strings.Join(parts, "\n")
}

func renderPanel(title, body string, width int, focused bool) string {
	borderColor := panelBorder
	if focused {
		borderColor = accentSecondary
	}
	style := panelStyle.
		BorderForeground(borderColor).
		Width(width)
	return style.Render(panelTitleStyle.Render(title) + "\n" + body)
}

func renderRunLine(snap *service.Snapshot) string {
	run := snap.RunID
	if run == "" {
		run = snap.LastRunID
	}
	if run == "" {
		run = "-"
	}
	line := fmt.Sprintf("phase=%s run=%s mode=%s", snap.Phase, run, snap.Mode)
	if !snap.SettingsReady {
		line += " settings=incomplete"
	}
	return helpStyle.Render(line)
}

func renderPipeline(snap *service.Snapshot) string {
	ids := snap.Graph.NodeIDs()
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	for node := range snap.Statuses {
		if !seen[node] {
			ids = append(ids, node)
			seen[node] = true
		}
	}

	cells := make([]string, 0, len(ids))
	for _, id := range ids {
		status, ok := snap.Statuses[id]
		if !ok {
			status = domain.NodeStatusIdle
		}
		cell := statusGlyphs[status] + " " + id
		if status == domain.NodeStatusActive || status == domain.NodeStatusAwaiting {
			cell = selectedStyle.Render(cell)
		}
		cells = append(cells, cell)
	}
	if len(cells) == 0 {
		return "No pipeline."
	}
	return strings.Join(cells, "  →  ")
}

func renderDecisions(snap *service.Snapshot, selected string) string {
	nodes := pendingNodes(snap)
	if len(nodes) == 0 {
		return "No decisions pending."
	}
	var b strings.Builder
	if !snap.DecisionEnabled {
		b.WriteString(helpStyle.Render("Switch to human mode to decide.") + "\n")
	}
	for _, node := range nodes {
		title := node
		if node == selected {
			title = selectedStyle.Render("» " + node)
		}
		b.WriteString(title + "\n")
		draft := snap.Drafts[node]
		for i, opt := range snap.Pending[node] {
			marker := "  "
			if i == draft {
				marker = "> "
			}
			fmt.Fprintf(&b, "  %s%d. %s\n", marker, i+1, opt)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderDetails(snap *service.Snapshot) string {
	var lines []string
	if snap.Trace != nil && snap.Trace.TraceURL != "" {
		lines = append(lines, "trace: "+snap.Trace.TraceURL)
	}
	if snap.AgentError != nil {
		lines = append(lines, errorStyle.Render(fmt.Sprintf("agent error in %s: %s", snap.AgentError.Node, snap.AgentError.Message)))
	} else if snap.ErrorDetails != "" {
		lines = append(lines, errorStyle.Render("error: "+snap.ErrorDetails))
	}
	if len(snap.Final) > 0 {
		lines = append(lines, "final: "+truncateText(string(snap.Final), 240))
	}
	if len(snap.MissingAgents) > 0 {
		lines = append(lines, "missing settings: "+strings.Join(snap.MissingAgents, ", "))
	}
	return strings.Join(lines, "\n")
}

func renderLog(entries []domain.LogEntry) string {
	if len(entries) == 0 {
		return "No events yet."
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		detail := strings.ReplaceAll(e.Detail, "\n", " ")
		lines = append(lines, fmt.Sprintf("%s %-18s %s", e.Timestamp.Format("15:04:05"), e.Name, truncateText(detail, 160)))
	}
	return strings.Join(lines, "\n")
}

func truncateText(raw string, maxLen int) string {
	if maxLen <= 0 || len(raw) <= maxLen {
		return raw
	}
	if maxLen <= 3 {
		return raw[:maxLen]
	}
	return raw[:maxLen-3] + "..."
}
