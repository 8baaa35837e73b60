package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ShawnNotFound/20251115GreatAgent/internal/domain"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/runsync"
)

// Start clears the previous run and asks the controller for a new one. An
// empty mode keeps the current mode; an empty plan sends the loaded plan.
func (s *Service) Start(ctx context.Context, query string, mode domain.RunMode, plan []string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrQueryRequired
	}
	if mode != "" && !mode.Valid() {
		return "", ErrInvalidMode
	}

	var req domain.StartRunRequest
	var busy bool
	err := s.update(ctx, func() {
		if s.starting {
			busy = true
			return
		}
		st := s.syncer.State
		st.ResetRun()
		if mode != "" {
			st.Mode = mode
		}
		s.query = query
		s.current = nil
		s.afterEffects(s.syncer.SetActiveRun(""))
		s.starting = true

		override := plan
		if len(override) == 0 {
			override = s.currentPlan()
		}
		req = domain.StartRunRequest{UserQuery: query, Mode: st.Mode, WorkflowOverride: override}
	})
	if err != nil {
		return "", err
	}
	if busy {
		return "", ErrStartInProgress
	}

	resp, callErr := s.controller.StartRun(ctx, &req)

	err = s.update(context.WithoutCancel(ctx), func() {
		s.starting = false
		if callErr != nil {
			msg := callErr.Error()
			s.afterEffects(s.syncer.State.StartFailed(msg))
			s.setNotice("Failed to start run: " + msg)
			return
		}
		s.current = &runMeta{id: resp.RunID, query: query, mode: req.Mode, startedAt: s.now()}
		s.afterEffects(s.syncer.SetActiveRun(resp.RunID))
	})
	if callErr != nil {
		s.logger.Warn("start run failed", zap.Error(callErr))
		return "", fmt.Errorf("start run: %w", callErr)
	}
	if err != nil {
		return "", err
	}

	s.logger.Info("run started", zap.String("run_id", resp.RunID), zap.String("mode", string(req.Mode)))
	return resp.RunID, nil
}

// Pause asks the controller to pause the active run.
func (s *Service) Pause(ctx context.Context) error {
	return s.control(ctx, "pause", s.controller.PauseRun)
}

// Resume asks the controller to resume the active run.
func (s *Service) Resume(ctx context.Context) error {
	return s.control(ctx, "resume", s.controller.ResumeRun)
}

// Stop asks the controller to stop the active run.
func (s *Service) Stop(ctx context.Context) error {
	return s.control(ctx, "stop", s.controller.StopRun)
}

// control issues a control call for the active run. The phase is left to
// the paused, resumed and stopping events.
func (s *Service) control(ctx context.Context, verb string, call func(context.Context, string) error) error {
	var runID string
	if err := s.do(ctx, func() { runID = s.syncer.State.ActiveRun }); err != nil {
		return err
	}
	if runID == "" {
		return nil
	}

	if err := call(ctx, runID); err != nil {
		s.logger.Warn("control call failed", zap.String("verb", verb), zap.String("run_id", runID), zap.Error(err))
		_ = s.update(context.WithoutCancel(ctx), func() {
			s.setNotice(fmt.Sprintf("Failed to %s run: %v", verb, err))
		})
		return fmt.Errorf("%s run %s: %w", verb, runID, err)
	}

	s.logger.Info("control call sent", zap.String("verb", verb), zap.String("run_id", runID))
	return nil
}

// SubmitDecision sends a human decision for node. The target is the active
// run, or the last known run once the active one has finished. On success
// the node's draft moves to the chosen index until the selection event
// clears it.
func (s *Service) SubmitDecision(ctx context.Context, node string, choice int) error {
	if node == "" {
		return ErrNodeRequired
	}
	if choice < 0 {
		return runsync.ErrChoiceOutOfRange
	}

	var runID string
	var rangeErr error
	if err := s.do(ctx, func() {
		runID = s.syncer.State.ActiveRun
		if runID == "" {
			runID = s.syncer.State.LastRun
		}
		if options, ok := s.syncer.State.Pending[node]; ok && choice >= len(options) {
			rangeErr = runsync.ErrChoiceOutOfRange
		}
	}); err != nil {
		return err
	}
	if runID == "" {
		return nil
	}
	if rangeErr != nil {
		return rangeErr
	}

	err := s.controller.SubmitSelection(ctx, &domain.SelectionRequest{RunID: runID, Node: node, ChoiceIndex: choice})
	if err != nil {
		s.logger.Warn("submit decision failed", zap.String("run_id", runID), zap.String("node", node), zap.Error(err))
		_ = s.update(context.WithoutCancel(ctx), func() {
			s.setNotice(fmt.Sprintf("Failed to submit decision: %v", err))
		})
		return fmt.Errorf("submit decision for %s: %w", node, err)
	}

	return s.update(context.WithoutCancel(ctx), func() {
		_ = s.syncer.State.SetDraft(node, choice)
	})
}

// SetDraft moves the highlighted option for a pending node.
func (s *Service) SetDraft(ctx context.Context, node string, index int) error {
	var err error
	if doErr := s.update(ctx, func() { err = s.syncer.State.SetDraft(node, index) }); doErr != nil {
		return doErr
	}
	return err
}

// SetMode selects the mode used by the next Start.
func (s *Service) SetMode(ctx context.Context, mode domain.RunMode) error {
	if !mode.Valid() {
		return ErrInvalidMode
	}
	return s.update(ctx, func() { s.syncer.State.Mode = mode })
}

// SetQuery replaces the draft query.
func (s *Service) SetQuery(ctx context.Context, query string) error {
	return s.update(ctx, func() { s.query = query })
}

func (s *Service) currentPlan() []string {
	src := domain.DefaultPipeline
	if s.planLoaded && len(s.plan) > 0 {
		src = s.plan
	}
	return append([]string(nil), src...)
}
