// Package protocol defines the websocket messages between console clients
// and the console daemon.
package protocol

import "encoding/json"

// Message types from client to console
const (
	TypeHello          = "hello"
	TypeStartRun       = "start_run"
	TypePauseRun       = "pause_run"
	TypeResumeRun      = "resume_run"
	TypeStopRun        = "stop_run"
	TypeSubmitDecision = "submit_decision"
	TypeSetDraft       = "set_draft"
	TypeSetMode        = "set_mode"
	TypeSetQuery       = "set_query"
)

// Message types from console to client
const (
	TypeHelloAck = "hello_ack"
	TypeSnapshot = "snapshot"
	TypeAck      = "ack"
	TypeError    = "error"
)

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type      string `json:"type"`
	Ts        int64  `json:"ts"`
	RequestID string `json:"request_id,omitempty"`
	RunID     string `json:"run_id,omitempty"`
}

// HelloMessage is sent by client to establish connection.
type HelloMessage struct {
	BaseMessage
	APIKey     string            `json:"api_key,omitempty"`
	ClientMeta map[string]string `json:"client_meta,omitempty"`
}

// HelloAckMessage is sent by the console after a successful hello.
type HelloAckMessage struct {
	BaseMessage
	ConnectionID string `json:"connection_id"`
}

// StartRunMessage asks the console to start a run.
type StartRunMessage struct {
	BaseMessage
	Query string   `json:"query"`
	Mode  string   `json:"mode,omitempty"`
	Plan  []string `json:"plan,omitempty"`
}

// SubmitDecisionMessage submits a human decision for a checkpoint node.
type SubmitDecisionMessage struct {
	BaseMessage
	Node        string `json:"node"`
	ChoiceIndex int    `json:"choice_index"`
}

// SetDraftMessage moves the highlighted option for a pending node.
type SetDraftMessage struct {
	BaseMessage
	Node  string `json:"node"`
	Index int    `json:"index"`
}

// SetModeMessage selects the mode for the next run.
type SetModeMessage struct {
	BaseMessage
	Mode string `json:"mode"`
}

// SetQueryMessage replaces the draft query.
type SetQueryMessage struct {
	BaseMessage
	Query string `json:"query"`
}

// SnapshotMessage carries the full console state.
type SnapshotMessage struct {
	BaseMessage
	State json.RawMessage `json:"state"`
}

// AckMessage confirms a command.
type AckMessage struct {
	BaseMessage
}

// ErrorMessage is sent by the console when an error occurs.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrorCodeInvalidMessage = "invalid_message"
	ErrorCodeUnauthorized   = "unauthorized"
	ErrorCodeHelloRequired  = "hello_required"
	ErrorCodeInvalidRequest = "invalid_request"
	ErrorCodeControlFailed  = "control_failed"
	ErrorCodeInternalError  = "internal_error"
)
