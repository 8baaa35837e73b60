package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ShawnNotFound/20251115GreatAgent/internal/domain"
)

// Init loads the plan, agent settings, graph and trace list. Failures are
// logged and leave the defaults in place.
func (s *Service) Init(ctx context.Context) {
	if err := s.LoadPlan(ctx); err != nil {
		s.logger.Warn("failed to load workflow plan", zap.Error(err))
	}
	if err := s.LoadSettings(ctx); err != nil {
		s.logger.Warn("failed to load agent settings", zap.Error(err))
	}
	if err := s.LoadGraph(ctx); err != nil {
		s.logger.Warn("failed to load workflow graph", zap.Error(err))
	}
	if err := s.RefreshTraces(ctx); err != nil {
		s.logger.Warn("failed to load traces", zap.Error(err))
	}
}

// LoadPlan fetches the persisted pipeline plan.
func (s *Service) LoadPlan(ctx context.Context) error {
	plan, err := s.controller.GetWorkflowPlan(ctx)
	if err != nil {
		return fmt.Errorf("load workflow plan: %w", err)
	}
	return s.update(ctx, func() {
		s.plan = plan
		s.planLoaded = true
	})
}

// SavePlan persists a pipeline plan and adopts the controller's copy.
func (s *Service) SavePlan(ctx context.Context, steps []string) ([]string, error) {
	saved, err := s.controller.SaveWorkflowPlan(ctx, steps)
	if err != nil {
		_ = s.update(context.WithoutCancel(ctx), func() {
			s.setNotice(fmt.Sprintf("Failed to save workflow: %v", err))
		})
		return nil, fmt.Errorf("save workflow plan: %w", err)
	}
	if err := s.update(ctx, func() {
		s.plan = saved
		s.planLoaded = true
		s.setNotice("Workflow saved")
	}); err != nil {
		return nil, err
	}
	return append([]string(nil), saved...), nil
}

// LoadGraph fetches the graph blueprint. On failure the default layout stays.
func (s *Service) LoadGraph(ctx context.Context) error {
	g, err := s.controller.GetGraph(ctx)
	if err != nil {
		return fmt.Errorf("load workflow graph: %w", err)
	}
	return s.update(ctx, func() { s.syncer.State.HydrateGraph(g) })
}

// SaveGraph persists a graph blueprint and displays the controller's copy.
func (s *Service) SaveGraph(ctx context.Context, g *domain.GraphBlueprint) (*domain.GraphBlueprint, error) {
	saved, err := s.controller.SaveGraph(ctx, g)
	if err != nil {
		_ = s.update(context.WithoutCancel(ctx), func() {
			s.setNotice(fmt.Sprintf("Failed to save graph: %v", err))
		})
		return nil, fmt.Errorf("save workflow graph: %w", err)
	}
	var out domain.GraphBlueprint
	if err := s.update(ctx, func() {
		s.syncer.State.HydrateGraph(saved)
		out = s.syncer.State.Graph
		s.setNotice("Graph saved")
	}); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoadSettings fetches agent settings. Settings count as loaded even when
// the fetch fails, so readiness then reports the empty set.
func (s *Service) LoadSettings(ctx context.Context) error {
	settings, err := s.controller.GetAgentSettings(ctx)
	if doErr := s.update(context.WithoutCancel(ctx), func() {
		if err == nil {
			s.settings = settings.Clone()
			if s.settings == nil {
				s.settings = domain.AgentSettings{}
			}
		}
		s.settingsLoaded = true
	}); doErr != nil {
		return doErr
	}
	if err != nil {
		return fmt.Errorf("load agent settings: %w", err)
	}
	return nil
}

// UpdateAgentSetting edits one field locally. SaveSettings persists it.
func (s *Service) UpdateAgentSetting(ctx context.Context, agentID, field, value string) error {
	if agentID == "" {
		return ErrNodeRequired
	}
	var ok bool
	if err := s.update(ctx, func() {
		var next domain.AgentConfig
		next, ok = s.settings[agentID].WithField(field, value)
		if ok {
			s.settings[agentID] = next
		}
	}); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgentField, field)
	}
	return nil
}

// SaveSettings persists the local agent settings and adopts the
// controller's copy.
func (s *Service) SaveSettings(ctx context.Context) (domain.AgentSettings, error) {
	var local domain.AgentSettings
	if err := s.do(ctx, func() { local = s.settings.Clone() }); err != nil {
		return nil, err
	}
	return s.ReplaceSettings(ctx, local)
}

// ReplaceSettings persists a full settings map and adopts the controller's copy.
func (s *Service) ReplaceSettings(ctx context.Context, agents domain.AgentSettings) (domain.AgentSettings, error) {
	saved, err := s.controller.SaveAgentSettings(ctx, agents)
	if err != nil {
		_ = s.update(context.WithoutCancel(ctx), func() {
			s.setNotice(fmt.Sprintf("Failed to save settings: %v", err))
		})
		return nil, fmt.Errorf("save agent settings: %w", err)
	}
	if saved == nil {
		saved = domain.AgentSettings{}
	}
	if err := s.update(ctx, func() {
		s.settings = saved.Clone()
		s.settingsLoaded = true
		s.setNotice("Agent settings saved")
	}); err != nil {
		return nil, err
	}
	return saved, nil
}

// RefreshTraces reloads the recent trace list. The previous list is kept on
// failure.
func (s *Service) RefreshTraces(ctx context.Context) error {
	traces, err := s.controller.ListTraces(ctx, s.opts.TraceLimit)
	if err != nil {
		return fmt.Errorf("list traces: %w", err)
	}
	if traces == nil {
		traces = []domain.TraceSummary{}
	}
	return s.update(ctx, func() { s.traces = traces })
}
