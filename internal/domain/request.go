package domain

// StartRunRequest asks the controller to create a run.
type StartRunRequest struct {
	UserQuery        string   `json:"user_query"`
	Mode             RunMode  `json:"mode"`
	WorkflowOverride []string `json:"workflow_override,omitempty"`
}

// StartRunResponse carries the identity of the created run.
type StartRunResponse struct {
	RunID string `json:"run_id"`
}

// SelectionRequest submits a human decision for a checkpoint node.
type SelectionRequest struct {
	RunID       string `json:"run_id"`
	Node        string `json:"node"`
	ChoiceIndex int    `json:"choice_index"`
}

// AckResponse is the generic controller acknowledgement.
type AckResponse struct {
	OK     bool   `json:"ok,omitempty"`
	Status string `json:"status,omitempty"`
}

// WorkflowPlanRequest saves a pipeline plan.
type WorkflowPlanRequest struct {
	Steps []string `json:"steps"`
}

// WorkflowPlanResponse carries the persisted pipeline plan.
type WorkflowPlanResponse struct {
	WorkflowPlan []string `json:"workflow_plan"`
}

// AgentSettingsEnvelope wraps agent settings on the wire.
type AgentSettingsEnvelope struct {
	Agents AgentSettings `json:"agents"`
}

// TracesResponse lists recent traces.
type TracesResponse struct {
	Traces []TraceSummary `json:"traces"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error  string `json:"error,omitempty"`
	Detail any    `json:"detail,omitempty"`
}
