package domain

import "encoding/json"

// StreamEvent is one raw message read from the run event stream.
type StreamEvent struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

// TraceEventData is the data for a trace event.
type TraceEventData struct {
	TraceID  string `json:"trace_id"`
	TraceURL string `json:"trace_url"`
}

// SegmentEventData is the data for a segment event.
type SegmentEventData struct {
	Node   string          `json:"node"`
	Input  json.RawMessage `json:"input,omitempty"`
	Output json.RawMessage `json:"output,omitempty"`
}

// OptionsEventData is the data for an options event. Options may be plain
// labels or structured candidates.
type OptionsEventData struct {
	Node    string            `json:"node"`
	Options []json.RawMessage `json:"options"`
}

// NodeEventData is the data for enter and awaiting_selection events.
type NodeEventData struct {
	Node string `json:"node"`
}

// SelectionEventData is the data for a selection event.
type SelectionEventData struct {
	Node        string `json:"node"`
	ChoiceIndex *int   `json:"choice_index,omitempty"`
}

// ExitEventData is the data for an exit event.
type ExitEventData struct {
	Node   string          `json:"node"`
	Output json.RawMessage `json:"output,omitempty"`
}

// AgentErrorEventData is the data for an agent_error event.
type AgentErrorEventData struct {
	Node    string          `json:"node"`
	Message string          `json:"message"`
	Ts      json.RawMessage `json:"ts,omitempty"`
}

// ErrorEventData is the data for an error event.
type ErrorEventData struct {
	Message string `json:"message"`
}

// EndEventData is the data for an end event.
type EndEventData struct {
	RunID string `json:"run_id"`
}
