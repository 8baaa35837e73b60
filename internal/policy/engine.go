// Package policy evaluates console readiness rules with OPA.
package policy

import (
	"context"
	"fmt"
	"sort"

	"github.com/open-policy-agent/opa/rego"

	"github.com/ShawnNotFound/20251115GreatAgent/internal/domain"
)

// Readiness is the outcome of the settings readiness policy.
type Readiness struct {
	Ready   bool     `json:"ready"`
	Missing []string `json:"missing"`
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.console.readiness"),
		rego.Module("readiness.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// NewDefaultEngine creates an engine running DefaultPolicy.
func NewDefaultEngine(ctx context.Context) (*Engine, error) {
	return NewEngine(ctx, DefaultPolicy)
}

// Evaluate checks whether agent settings are complete. Settings that have
// not been loaded are never ready.
func (e *Engine) Evaluate(ctx context.Context, loaded bool, settings domain.AgentSettings) (Readiness, error) {
	agents := make(map[string]any, len(settings))
	for id, cfg := range settings {
		fields := make(map[string]any, len(domain.RequiredAgentFields))
		for _, f := range domain.RequiredAgentFields {
			fields[f] = cfg.Field(f)
		}
		agents[id] = fields
	}
	required := make([]any, 0, len(domain.RequiredAgentFields))
	for _, f := range domain.RequiredAgentFields {
		required = append(required, f)
	}

	input := map[string]any{
		"loaded":          loaded,
		"agents":          agents,
		"required_fields": required,
	}

	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Readiness{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Readiness{Missing: []string{}}, nil
	}

	doc, ok := results[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return Readiness{}, fmt.Errorf("unexpected policy result type %T", results[0].Expressions[0].Value)
	}

	out := Readiness{Missing: []string{}}
	out.Ready, _ = doc["ready"].(bool)
	if list, ok := doc["missing"].([]any); ok {
		for _, v := range list {
			if s, ok := v.(string); ok {
				out.Missing = append(out.Missing, s)
			}
		}
	}
	sort.Strings(out.Missing)
	return out, nil
}

// DefaultPolicy is the default readiness policy.
const DefaultPolicy = `
package console.readiness

default ready = false

# An agent is missing settings when any required field is blank.
missing[agent] {
	cfg := input.agents[agent]
	field := input.required_fields[_]
	trim_space(object.get(cfg, field, "")) == ""
}

ready {
	input.loaded == true
	count(missing) == 0
}
`
