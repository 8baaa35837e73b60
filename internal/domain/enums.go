// Package domain defines the core domain models for the run console.
package domain

// RunPhase represents the lifecycle phase of the observed run.
type RunPhase string

const (
	RunPhaseIdle        RunPhase = "idle"
	RunPhaseRunning     RunPhase = "running"
	RunPhasePaused      RunPhase = "paused"
	RunPhasePausedError RunPhase = "paused_error"
	RunPhaseStopping    RunPhase = "stopping"
	RunPhaseDone        RunPhase = "done"
	RunPhaseError       RunPhase = "error"
)

// Terminal reports whether the phase ends the run.
func (p RunPhase) Terminal() bool {
	return p == RunPhaseDone || p == RunPhaseError
}

// NodeStatus represents the execution status of a pipeline node.
type NodeStatus string

const (
	NodeStatusIdle      NodeStatus = "idle"
	NodeStatusReady     NodeStatus = "ready"
	NodeStatusActive    NodeStatus = "active"
	NodeStatusAwaiting  NodeStatus = "awaiting"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusError     NodeStatus = "error"
)

// RunMode selects whether checkpoints wait for a human.
type RunMode string

const (
	RunModeAuto  RunMode = "auto"
	RunModeHuman RunMode = "human"
)

// Valid reports whether m is a known mode.
func (m RunMode) Valid() bool {
	return m == RunModeAuto || m == RunModeHuman
}

// EventKind is the name of a message on the run event stream.
type EventKind string

const (
	EventTrace             EventKind = "trace"
	EventWorkflow          EventKind = "workflow"
	EventSegment           EventKind = "segment"
	EventOptions           EventKind = "options"
	EventAwaitingSelection EventKind = "awaiting_selection"
	EventSelection         EventKind = "selection"
	EventEnter             EventKind = "enter"
	EventExit              EventKind = "exit"
	EventPaused            EventKind = "paused"
	EventAgentError        EventKind = "agent_error"
	EventResumed           EventKind = "resumed"
	EventStopping          EventKind = "stopping"
	EventDone              EventKind = "done"
	EventError             EventKind = "error"
	EventEnd               EventKind = "end"
)

// EventKinds returns the full stream vocabulary in protocol order.
func EventKinds() []EventKind {
	return []EventKind{
		EventTrace, EventWorkflow, EventSegment, EventOptions, EventAwaitingSelection,
		EventSelection, EventEnter, EventExit, EventPaused, EventAgentError,
		EventResumed, EventStopping, EventDone, EventError, EventEnd,
	}
}

// Synthetic log entry names written by the console itself.
const (
	LogFinal       = "final"
	LogStreamError = "stream_error"
	LogStartError  = "start_error"
)

// AgentCategory classifies entries of the agent library.
type AgentCategory string

const (
	AgentCategoryStem     AgentCategory = "stem"
	AgentCategoryTool     AgentCategory = "tool"
	AgentCategoryAddon    AgentCategory = "addon"
	AgentCategoryDatabase AgentCategory = "database"
)
