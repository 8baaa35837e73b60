package repository

import (
	"context"

	"github.com/ShawnNotFound/20251115GreatAgent/internal/domain"
)

// Store is the run archive.
type Store interface {
	SaveRun(ctx context.Context, run *domain.RunRecord) error
	GetRun(ctx context.Context, runID string) (*domain.RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error)
	Close() error
}

var _ Store = (*SQLiteStore)(nil)
