package service

import (
	"context"
	"maps"
	"time"

	"go.uber.org/zap"

	"github.com/ShawnNotFound/20251115GreatAgent/internal/domain"
)

const archiveTimeout = 5 * time.Second

// archive writes the current run to the store once it reaches a terminal
// phase. Only runs this console started are archived, and each only once.
func (s *Service) archive() {
	cur := s.current
	st := s.syncer.State
	if s.store == nil || cur == nil || cur.archived || cur.id != st.LastRun {
		return
	}
	cur.archived = true

	rec := &domain.RunRecord{
		RunID:     cur.id,
		Query:     cur.query,
		Mode:      cur.mode,
		Phase:     st.Phase,
		StartedAt: cur.startedAt,
		EndedAt:   s.now(),
		Final:     st.Final,
		Error:     st.ErrorDetails,
		Statuses:  maps.Clone(st.Statuses),
		Segments:  maps.Clone(st.Segments),
		Log:       st.Log.Entries(),
	}
	if st.Trace != nil {
		rec.TraceURL = st.Trace.TraceURL
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := s.store.SaveRun(ctx, rec); err != nil {
			s.logger.Warn("failed to archive run", zap.String("run_id", rec.RunID), zap.Error(err))
			return
		}
		s.logger.Info("run archived", zap.String("run_id", rec.RunID), zap.String("phase", string(rec.Phase)))
	}()
}

// History lists archived runs, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if s.store == nil {
		return nil, ErrArchiveDisabled
	}
	return s.store.ListRuns(ctx, limit)
}

// HistoryRun returns one archived run with its event log.
func (s *Service) HistoryRun(ctx context.Context, runID string) (*domain.RunRecord, error) {
	if s.store == nil {
		return nil, ErrArchiveDisabled
	}
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, ErrRunNotFound
	}
	return run, nil
}
