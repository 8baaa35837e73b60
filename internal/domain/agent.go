package domain

import "strings"

// AgentDefinition describes an agent known to the console.
type AgentDefinition struct {
	ID          string        `json:"id"`
	Label       string        `json:"label"`
	Description string        `json:"description"`
	Type        AgentCategory `json:"type"`
	Implemented bool          `json:"implemented"`
}

// AgentConfig holds per-agent endpoint settings.
type AgentConfig struct {
	APIBase string `json:"api_base"`
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
}

// AgentSettings maps agent id to its configuration.
type AgentSettings map[string]AgentConfig

// RequiredAgentFields are the fields that must be non-blank for every agent.
var RequiredAgentFields = []string{"api_base", "api_key"}

// Field returns a settings field by its wire name.
func (c AgentConfig) Field(name string) string {
	switch name {
	case "api_base":
		return c.APIBase
	case "api_key":
		return c.APIKey
	case "model":
		return c.Model
	case "prompt":
		return c.Prompt
	}
	return ""
}

// WithField returns a copy of c with one field replaced. Unknown names leave c unchanged.
func (c AgentConfig) WithField(name, value string) (AgentConfig, bool) {
	switch name {
	case "api_base":
		c.APIBase = value
	case "api_key":
		c.APIKey = value
	case "model":
		c.Model = value
	case "prompt":
		c.Prompt = value
	default:
		return c, false
	}
	return c, true
}

// Clone returns a deep copy of s.
func (s AgentSettings) Clone() AgentSettings {
	if s == nil {
		return nil
	}
	out := make(AgentSettings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// AgentLibrary is the catalog of agents the console can place in a pipeline.
var AgentLibrary = []AgentDefinition{
	{ID: "InputAgent", Label: "Input", Description: "Take input, decide task difficulty, decide whether to use multi-agents.", Type: AgentCategoryStem, Implemented: true},
	{ID: "TaskDecomposer", Label: "Task Decomposer", Description: "Break a query into a workflow, choose tools, and emit workflow JSON.", Type: AgentCategoryStem, Implemented: true},
	{ID: "OutputAgent", Label: "Output", Description: "Organize results and craft final wording.", Type: AgentCategoryStem, Implemented: true},
	{ID: "ResearchAgent", Label: "Research", Description: "Surf the web, gather robust knowledge, return structured candidates.", Type: AgentCategoryTool, Implemented: true},
	{ID: "ValidationAgent", Label: "Validation", Description: "Critical web-backed fact checking with notes.", Type: AgentCategoryTool, Implemented: true},
	{ID: "AnalysisAgent", Label: "Analysis", Description: "Large-context reasoning, can run Python in a VM.", Type: AgentCategoryTool, Implemented: true},
	{ID: "LogicAgent", Label: "Logic", Description: "Deep thinking solver for any problem.", Type: AgentCategoryTool},
	{ID: "GithubAgent", Label: "GitHub", Description: "Access repositories, craft PRs, trigger actions.", Type: AgentCategoryAddon},
	{ID: "ZoomAgent", Label: "Zoom", Description: "Create and schedule Zoom meetings.", Type: AgentCategoryAddon},
	{ID: "CalendarAgent", Label: "Calendar", Description: "Manage subscription calendars, sync availability.", Type: AgentCategoryAddon},
	{ID: "KnowledgeTable", Label: "Knowledge Table", Description: "Shared data table operators can reference during runs.", Type: AgentCategoryDatabase},
}

// DefaultPipeline is the plan used until the controller returns one.
var DefaultPipeline = []string{"ResearchAgent", "AnalysisAgent", "ValidationAgent", "OutputAgent"}

// LookupAgent finds a library entry by id.
func LookupAgent(id string) (AgentDefinition, bool) {
	for _, a := range AgentLibrary {
		if a.ID == id {
			return a, true
		}
	}
	return AgentDefinition{}, false
}

// AgentLabel returns the display label for id, or id itself if unknown.
func AgentLabel(id string) string {
	if a, ok := LookupAgent(id); ok {
		return a.Label
	}
	return strings.TrimSpace(id)
}
