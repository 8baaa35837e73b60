package runsync

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ShawnNotFound/20251115GreatAgent/internal/domain"
)

// Effects lists follow-up work a handled event asks of the caller.
type Effects struct {
	// RefreshTraces asks for a best-effort reload of the trace list.
	RefreshTraces bool
	// CloseStream asks the lifecycle manager to close the subscription.
	CloseStream bool
	// PhaseChanged is set when the run phase moved.
	PhaseChanged bool
	// Terminal is set when the run reached done or error.
	Terminal bool
	// Ignored is set for names outside the stream vocabulary.
	Ignored bool
}

func (e Effects) merge(o Effects) Effects {
	return Effects{
		RefreshTraces: e.RefreshTraces || o.RefreshTraces,
		CloseStream:   e.CloseStream || o.CloseStream,
		PhaseChanged:  e.PhaseChanged || o.PhaseChanged,
		Terminal:      e.Terminal || o.Terminal,
		Ignored:       e.Ignored || o.Ignored,
	}
}

// State is the console's projection of one run. Exported fields are read by
// the owner; mutation goes through Handle and the verb helpers.
type State struct {
	Phase     domain.RunPhase
	ActiveRun string
	LastRun   string
	Mode      domain.RunMode

	Statuses map[string]domain.NodeStatus
	Segments map[string]domain.SegmentRecord
	Pending  map[string][]string
	Drafts   map[string]int

	Workflow     *domain.WorkflowSnapshot
	Trace        *domain.TraceMeta
	AgentError   *domain.ErrorState
	ErrorDetails string
	Final        json.RawMessage

	Graph       domain.GraphBlueprint
	GraphLoaded bool

	Log *EventLog

	now func() time.Time
	fx  Effects
}

var _ reducer = (*State)(nil)

// NewState returns an idle state with a log of the given capacity.
func NewState(logCapacity int) *State {
	s := &State{
		Phase: domain.RunPhaseIdle,
		Mode:  domain.RunModeAuto,
		Graph: domain.DefaultGraph(),
		Log:   NewEventLog(logCapacity),
		now:   time.Now,
	}
	s.resetFacets()
	return s
}

// SetClock replaces the timestamp source used for log entries.
func (s *State) SetClock(now func() time.Time) { s.now = now }

func (s *State) resetFacets() {
	s.Statuses = make(map[string]domain.NodeStatus)
	s.Segments = make(map[string]domain.SegmentRecord)
	s.Pending = make(map[string][]string)
	s.Drafts = make(map[string]int)
	s.Workflow = nil
	s.Trace = nil
	s.AgentError = nil
	s.ErrorDetails = ""
	s.Final = nil
}

// ResetRun clears every per-run facet and the event log. Identity, phase,
// mode and graph are left alone.
func (s *State) ResetRun() {
	s.resetFacets()
	s.Log.Reset()
}

// Handle runs one raw stream message through parse, log and reducers.
func (s *State) Handle(name, data string) Effects {
	msg := Parse(name, data)
	ev, ok := Decode(msg)
	if !ok {
		return Effects{Ignored: true}
	}
	s.Append(name, msg.Detail())
	return s.Apply(ev)
}

// Apply runs the reducers for a decoded event without logging it.
func (s *State) Apply(ev Event) Effects {
	return s.collect(func() { ev.apply(s) })
}

func (s *State) collect(fn func()) Effects {
	s.fx = Effects{}
	fn()
	fx := s.fx
	s.fx = Effects{}
	return fx
}

// Append writes a log entry stamped with the current time.
func (s *State) Append(name, detail string) {
	s.Log.Append(domain.LogEntry{Timestamp: s.now(), Name: name, Detail: detail})
}

// SetPhase moves the run phase and reports whether it changed.
func (s *State) SetPhase(p domain.RunPhase) bool {
	if s.Phase == p {
		return false
	}
	s.Phase = p
	s.fx.PhaseChanged = true
	if p.Terminal() {
		s.fx.Terminal = true
	}
	return true
}

// Subscribed marks the run running once its subscription is open.
func (s *State) Subscribed() Effects {
	return s.collect(func() { s.SetPhase(domain.RunPhaseRunning) })
}

// StreamFault records a transport failure: a stream_error log entry, phase
// error and a cleared active identity. The last known identity survives.
func (s *State) StreamFault(err error) Effects {
	reason := "error"
	if err != nil {
		reason = err.Error()
	}
	return s.collect(func() {
		s.Append(domain.LogStreamError, reason)
		s.SetPhase(domain.RunPhaseError)
		s.ErrorDetails = fmt.Sprintf("Stream error: %s", reason)
		s.ActiveRun = ""
	})
}

// StartFailed records a rejected run creation: a start_error log entry, phase
// error and the failure text. No identity is assigned.
func (s *State) StartFailed(message string) Effects {
	return s.collect(func() {
		s.Append(domain.LogStartError, message)
		s.SetPhase(domain.RunPhaseError)
		s.ErrorDetails = message
	})
}

// SetDraft moves the highlighted option for a pending node.
func (s *State) SetDraft(node string, index int) error {
	opts, ok := s.Pending[node]
	if !ok {
		return ErrNotPending
	}
	if index < 0 || index >= len(opts) {
		return ErrChoiceOutOfRange
	}
	s.Drafts[node] = index
	return nil
}

// HydrateGraph replaces the displayed graph. Empty blueprints fall back to
// the default layout.
func (s *State) HydrateGraph(g *domain.GraphBlueprint) {
	s.Graph = g.OrDefault()
	s.GraphLoaded = true
}

func (s *State) setStatus(node string, status domain.NodeStatus) {
	if node == "" {
		return
	}
	s.Statuses[node] = status
}

func (s *State) onTrace(e TraceEvent) {
	meta := e.Meta
	s.Trace = &meta
	s.fx.RefreshTraces = true
}

func (s *State) onWorkflow(e WorkflowEvent) {
	snap := e.Snapshot
	s.Workflow = &snap
	if !s.GraphLoaded && snap.Graph != nil {
		s.HydrateGraph(snap.Graph)
	}
	for _, step := range snap.Steps {
		s.setStatus(step.Agent, NormalizeStatus(step.Status))
	}
}

func (s *State) onSegment(e SegmentEvent) {
	if e.Node == "" {
		return
	}
	s.Segments[e.Node] = e.Record
	s.setStatus(e.Node, domain.NodeStatusCompleted)
}

func (s *State) onOptions(e OptionsEvent) {
	if e.Node == "" {
		return
	}
	opts := e.Options
	if opts == nil {
		opts = []string{}
	}
	s.Pending[e.Node] = opts
	s.Drafts[e.Node] = 0
}

func (s *State) onAwaitingSelection(e AwaitingSelectionEvent) {
	s.setStatus(e.Node, domain.NodeStatusAwaiting)
}

func (s *State) onSelection(e SelectionEvent) {
	delete(s.Pending, e.Node)
	delete(s.Drafts, e.Node)
}

func (s *State) onEnter(e EnterEvent) {
	s.setStatus(e.Node, domain.NodeStatusActive)
}

func (s *State) onExit(e ExitEvent) {
	s.setStatus(e.Node, domain.NodeStatusCompleted)
}

func (s *State) onPaused(PausedEvent) {
	s.SetPhase(domain.RunPhasePaused)
}

func (s *State) onAgentError(e AgentErrorEvent) {
	s.SetPhase(domain.RunPhasePausedError)
	errState := e.Error
	s.AgentError = &errState
	s.ErrorDetails = errState.Message
}

func (s *State) onResumed(ResumedEvent) {
	s.SetPhase(domain.RunPhaseRunning)
	s.AgentError = nil
	s.ErrorDetails = ""
}

func (s *State) onStopping(StoppingEvent) {
	s.SetPhase(domain.RunPhaseStopping)
}

func (s *State) onDone(e DoneEvent) {
	s.Append(domain.LogFinal, e.Payload.Detail())
	if e.Payload.Structured {
		s.Final = json.RawMessage(e.Payload.Raw)
	} else if b, err := json.Marshal(e.Payload.Raw); err == nil {
		s.Final = b
	}
	s.SetPhase(domain.RunPhaseDone)
	s.ActiveRun = ""
	s.AgentError = nil
	s.ErrorDetails = ""
}

func (s *State) onError(e ErrorEvent) {
	s.SetPhase(domain.RunPhaseError)
	s.ActiveRun = ""
	s.ErrorDetails = e.Message
}

func (s *State) onEnd(EndEvent) {
	s.fx.CloseStream = true
}
