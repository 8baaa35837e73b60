package domain

import (
	"encoding/json"
	"time"
)

// WorkflowStep is one step of the backend's workflow snapshot.
type WorkflowStep struct {
	Agent         string `json:"agent"`
	Status        string `json:"status"`
	RequiresHuman *bool  `json:"requires_human,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// WorkflowSnapshot is the backend's authoritative description of a run.
type WorkflowSnapshot struct {
	Mode         RunMode         `json:"mode"`
	Steps        []WorkflowStep  `json:"steps"`
	ControlPanel json.RawMessage `json:"control_panel,omitempty"`
	Graph        *GraphBlueprint `json:"graph,omitempty"`
}

// SegmentRecord is the captured input/output of one node execution.
type SegmentRecord struct {
	Input  json.RawMessage `json:"input"`
	Output json.RawMessage `json:"output"`
}

// EmptyDocument is stored for absent segment input or output.
var EmptyDocument = json.RawMessage(`{}`)

// TraceMeta links a run to its external trace.
type TraceMeta struct {
	TraceID  string `json:"trace_id"`
	TraceURL string `json:"trace_url"`
}

// ErrorState describes an agent-level failure that paused the run.
type ErrorState struct {
	Node      string `json:"node"`
	Message   string `json:"message"`
	Timestamp string `json:"ts,omitempty"`
}

// TraceSummary is one entry of the recent trace list.
type TraceSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	URL    string `json:"url,omitempty"`
}

// LogEntry is one line of the console event log.
type LogEntry struct {
	Timestamp time.Time `json:"ts"`
	Name      string    `json:"name"`
	Detail    string    `json:"detail"`
}

// Notice is a short-lived operator message.
type Notice struct {
	Text      string    `json:"text"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RunRecord is an archived run.
type RunRecord struct {
	RunID     string                   `json:"run_id"`
	Query     string                   `json:"query"`
	Mode      RunMode                  `json:"mode"`
	Phase     RunPhase                 `json:"phase"`
	StartedAt time.Time                `json:"started_at"`
	EndedAt   time.Time                `json:"ended_at"`
	Final     json.RawMessage          `json:"final,omitempty"`
	Error     string                   `json:"error,omitempty"`
	TraceURL  string                   `json:"trace_url,omitempty"`
	Statuses  map[string]NodeStatus    `json:"statuses"`
	Segments  map[string]SegmentRecord `json:"segments"`
	Log       []LogEntry               `json:"log"`
}
