package service

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/ShawnNotFound/20251115GreatAgent/internal/domain"
)

// Snapshot is a copy of the console state plus the values derived from it.
type Snapshot struct {
	Version   uint64          `json:"version"`
	Phase     domain.RunPhase `json:"phase"`
	RunID     string          `json:"run_id,omitempty"`
	LastRunID string          `json:"last_run_id,omitempty"`
	Mode      domain.RunMode  `json:"mode"`
	Query     string          `json:"query"`
	Starting  bool            `json:"starting"`

	Statuses map[string]domain.NodeStatus    `json:"statuses"`
	Segments map[string]domain.SegmentRecord `json:"segments"`
	Pending  map[string][]string             `json:"pending"`
	Drafts   map[string]int                  `json:"drafts"`

	Workflow     *domain.WorkflowSnapshot `json:"workflow,omitempty"`
	Trace        *domain.TraceMeta        `json:"trace,omitempty"`
	AgentError   *domain.ErrorState       `json:"agent_error,omitempty"`
	ErrorDetails string                   `json:"error_details,omitempty"`
	Final        json.RawMessage          `json:"final,omitempty"`

	Graph       domain.GraphBlueprint `json:"graph"`
	GraphLoaded bool                  `json:"graph_loaded"`
	Log         []domain.LogEntry     `json:"log"`
	StreamOpen  bool                  `json:"stream_open"`

	Plan           []string              `json:"plan"`
	PlanLoaded     bool                  `json:"plan_loaded"`
	Settings       domain.AgentSettings  `json:"settings"`
	SettingsLoaded bool                  `json:"settings_loaded"`
	Traces         []domain.TraceSummary `json:"traces"`
	Notice         *domain.Notice        `json:"notice,omitempty"`

	SettingsReady   bool     `json:"settings_ready"`
	MissingAgents   []string `json:"missing_agents"`
	DecisionEnabled bool     `json:"decision_enabled"`
	CanStart        bool     `json:"can_start"`
	CanControl      bool     `json:"can_control"`
}

// Snapshot copies the current state and evaluates readiness.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	var snap *Snapshot
	if err := s.do(ctx, func() { snap = s.snapshot() }); err != nil {
		return nil, err
	}

	ready, err := s.policy.Evaluate(ctx, snap.SettingsLoaded, snap.Settings)
	if err != nil {
		return nil, fmt.Errorf("evaluate readiness: %w", err)
	}
	snap.SettingsReady = ready.Ready
	snap.MissingAgents = ready.Missing
	return snap, nil
}

func (s *Service) snapshot() *Snapshot {
	st := s.syncer.State

	pending := make(map[string][]string, len(st.Pending))
	for node, opts := range st.Pending {
		pending[node] = slices.Clone(opts)
	}
	graph := st.Graph
	graph.Nodes = slices.Clone(graph.Nodes)
	graph.Edges = slices.Clone(graph.Edges)

	snap := &Snapshot{
		Version:        s.version,
		Phase:          st.Phase,
		RunID:          st.ActiveRun,
		LastRunID:      st.LastRun,
		Mode:           st.Mode,
		Query:          s.query,
		Starting:       s.starting,
		Statuses:       maps.Clone(st.Statuses),
		Segments:       maps.Clone(st.Segments),
		Pending:        pending,
		Drafts:         maps.Clone(st.Drafts),
		Workflow:       st.Workflow,
		Trace:          st.Trace,
		AgentError:     st.AgentError,
		ErrorDetails:   st.ErrorDetails,
		Final:          st.Final,
		Graph:          graph,
		GraphLoaded:    st.GraphLoaded,
		Log:            st.Log.Entries(),
		StreamOpen:     s.syncer.Streams().Open(),
		Plan:           s.currentPlan(),
		PlanLoaded:     s.planLoaded,
		Settings:       s.settings.Clone(),
		SettingsLoaded: s.settingsLoaded,
		Traces:         slices.Clone(s.traces),
	}
	if s.notice != nil && s.now().Before(s.notice.ExpiresAt) {
		n := *s.notice
		snap.Notice = &n
	}

	hasRun := st.ActiveRun != "" || st.LastRun != ""
	snap.DecisionEnabled = st.Mode == domain.RunModeHuman && hasRun
	snap.CanStart = strings.TrimSpace(s.query) != "" && !s.starting && st.ActiveRun == ""
	snap.CanControl = st.ActiveRun != ""
	return snap
}
