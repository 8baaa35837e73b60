// Package tui renders the run console in a terminal.
package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShawnNotFound/20251115GreatAgent/internal/domain"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/service"
)

// Console is the part of the console service the terminal UI drives.
type Console interface {
	Snapshot(ctx context.Context) (*service.Snapshot, error)
	Subscribe() (<-chan struct{}, func())
	Start(ctx context.Context, query string, mode domain.RunMode, plan []string) (string, error)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error
	SubmitDecision(ctx context.Context, node string, choice int) error
	SetDraft(ctx context.Context, node string, index int) error
	SetMode(ctx context.Context, mode domain.RunMode) error
	SetQuery(ctx context.Context, query string) error
	RefreshTraces(ctx context.Context) error
}

var _ Console = (*service.Service)(nil)

const commandTimeout = 15 * time.Second

type snapshotMsg struct {
	snap *service.Snapshot
	err  error
}

type changedMsg struct {
	ok bool
}

type commandDoneMsg struct {
	verb string
	err  error
}

type focusPane int

const (
	paneQuery focusPane = iota
	paneBoard
)

// Model is the bubbletea model of the console.
type Model struct {
	console Console
	changes <-chan struct{}
	cancel  func()

	snap     *service.Snapshot
	query    textinput.Model
	log      viewport.Model
	spinner  spinner.Model
	focus    focusPane
	selected string

	statusText string
	errorText  string
	showHelp   bool

	width  int
	height int
	ready  bool
}

// NewModel builds a model bound to console. The change subscription is
// released when the program quits.
func NewModel(console Console) Model {
	input := textinput.New()
	input.Prompt = "> "
	input.Placeholder = "What should the agents work on?"
	input.CharLimit = 4096
	input.Width = 70
	input.Focus()

	logView := viewport.New(80, 12)
	logView.SetContent("No events yet.")

	spin := spinner.New()
	spin.Spinner = spinner.MiniDot
	spin.Style = lipgloss.NewStyle().Foreground(accentSecondary)

	m := Model{
		console:    console,
		query:      input,
		log:        logView,
		spinner:    spin,
		focus:      paneQuery,
		showHelp:   true,
		statusText: "Connecting to console...",
	}
	if console != nil {
		m.changes, m.cancel = console.Subscribe()
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		fetchSnapshotCmd(m.console),
		waitForChangeCmd(m.changes),
	)
}

func fetchSnapshotCmd(console Console) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		snap, err := console.Snapshot(ctx)
		return snapshotMsg{snap: snap, err: err}
	}
}

func waitForChangeCmd(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		_, ok := <-ch
		return changedMsg{ok: ok}
	}
}

func commandCmd(verb string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return commandDoneMsg{verb: verb, err: fn(ctx)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resize()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case changedMsg:
		if !msg.ok {
			m.errorText = "Console stopped."
			return m, nil
		}
		return m, tea.Batch(fetchSnapshotCmd(m.console), waitForChangeCmd(m.changes))

	case snapshotMsg:
		if msg.err != nil {
			m.errorText = "Snapshot failed: " + msg.err.Error()
			return m, nil
		}
		m.applySnapshot(msg.snap)
		return m, nil

	case commandDoneMsg:
		if msg.err != nil {
			m.errorText = fmt.Sprintf("%s failed: %v", msg.verb, msg.err)
			return m, nil
		}
		m.errorText = ""
		m.statusText = msg.verb + " sent."
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m.quit()
		}
		if m.focus == paneQuery {
			return m.updateQuery(msg)
		}
		return m.updateBoard(msg)
	}
	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	if m.cancel != nil {
		m.cancel()
	}
	return m, tea.Quit
}

func (m Model) updateQuery(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "tab":
		m.setFocus(paneBoard)
		return m, nil
	case "enter":
		query := strings.TrimSpace(m.query.Value())
		if query == "" {
			m.errorText = "Query is required."
			return m, nil
		}
		if m.snap != nil && !m.snap.CanStart {
			m.errorText = "A run is already active or starting."
			return m, nil
		}
		m.errorText = ""
		m.statusText = "Starting run..."
		console := m.console
		m.setFocus(paneBoard)
		return m, commandCmd("Start", func(ctx context.Context) error {
			_, err := console.Start(ctx, query, "", nil)
			return err
		})
	}

	var cmd tea.Cmd
	before := m.query.Value()
	m.query, cmd = m.query.Update(msg)
	if value := m.query.Value(); value != before {
		console := m.console
		return m, tea.Batch(cmd, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = console.SetQuery(ctx, value)
			return nil
		})
	}
	return m, cmd
}

func (m Model) updateBoard(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	console := m.console
	switch msg.String() {
	case "q":
		return m.quit()
	case "i", "/", "tab":
		m.setFocus(paneQuery)
		return m, nil
	case "?":
		m.showHelp = !m.showHelp
		m.resize()
		return m, nil
	case "p":
		return m, commandCmd("Pause", console.Pause)
	case "r":
		return m, commandCmd("Resume", console.Resume)
	case "s":
		return m, commandCmd("Stop", console.Stop)
	case "t":
		return m, commandCmd("Trace refresh", console.RefreshTraces)
	case "m":
		next := domain.RunModeHuman
		if m.snap != nil && m.snap.Mode == domain.RunModeHuman {
			next = domain.RunModeAuto
		}
		return m, commandCmd("Mode change", func(ctx context.Context) error {
			return console.SetMode(ctx, next)
		})
	case "left", "h":
		m.cycleSelected(-1)
		return m, nil
	case "right", "l":
		m.cycleSelected(1)
		return m, nil
	case "up", "k":
		return m, m.moveDraft(-1)
	case "down", "j":
		return m, m.moveDraft(1)
	case "enter":
		return m, m.submitDecision()
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.log, cmd = m.log.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) setFocus(pane focusPane) {
	m.focus = pane
	if pane == paneQuery {
		m.query.Focus()
		return
	}
	m.query.Blur()
}

func (m *Model) applySnapshot(snap *service.Snapshot) {
	if snap == nil {
		return
	}
	m.snap = snap
	if m.statusText == "Connecting to console..." {
		m.statusText = "Ready."
	}
	if m.focus != paneQuery && m.query.Value() != snap.Query {
		m.query.SetValue(snap.Query)
	}
	if m.query.Value() == "" && snap.Query != "" {
		m.query.SetValue(snap.Query)
	}

	nodes := pendingNodes(snap)
	if _, ok := snap.Pending[m.selected]; !ok {
		m.selected = ""
		if len(nodes) > 0 {
			m.selected = nodes[0]
		}
	}

	atBottom := m.log.AtBottom()
	m.log.SetContent(renderLog(snap.Log))
	if atBottom {
		m.log.GotoBottom()
	}
}

func (m *Model) cycleSelected(delta int) {
	if m.snap == nil {
		return
	}
	nodes := pendingNodes(m.snap)
	if len(nodes) == 0 {
		return
	}
	idx := 0
	for i, n := range nodes {
		if n == m.selected {
			idx = i
			break
		}
	}
	idx = (idx + delta + len(nodes)) % len(nodes)
	m.selected = nodes[idx]
}

func (m Model) moveDraft(delta int) tea.Cmd {
	if m.snap == nil || m.selected == "" {
		return nil
	}
	opts := m.snap.Pending[m.selected]
	if len(opts) == 0 {
		return nil
	}
	next := clampInt(m.snap.Drafts[m.selected]+delta, 0, len(opts)-1)
	if next == m.snap.Drafts[m.selected] {
		return nil
	}
	console, node := m.console, m.selected
	return commandCmd("Draft", func(ctx context.Context) error {
		return console.SetDraft(ctx, node, next)
	})
}

func (m *Model) submitDecision() tea.Cmd {
	if m.snap == nil || m.selected == "" {
		return nil
	}
	if !m.snap.DecisionEnabled {
		m.errorText = "Decisions need human mode and a run."
		return nil
	}
	console, node, choice := m.console, m.selected, m.snap.Drafts[m.selected]
	return commandCmd("Decision", func(ctx context.Context) error {
		return console.SubmitDecision(ctx, node, choice)
	})
}

func (m *Model) resize() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	usableW := maxInt(40, m.width-6)
	m.query.Width = maxInt(20, usableW-4)
	m.log.Width = usableW
	reserved := 22
	if m.showHelp {
		reserved += 2
	}
	m.log.Height = maxInt(4, m.height-reserved)
}

// pendingNodes lists nodes awaiting a decision in a stable order.
func pendingNodes(snap *service.Snapshot) []string {
	nodes := make([]string, 0, len(snap.Pending))
	for n := range snap.Pending {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	return nodes
}

func clampInt(v, low, high int) int {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
