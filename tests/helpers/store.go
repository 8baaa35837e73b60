package helpers

import (
	"testing"

	"github.com/ShawnNotFound/20251115GreatAgent/internal/repository"
)

// NewTestSQLiteStore opens an in-memory run archive closed at test cleanup.
func NewTestSQLiteStore(t *testing.T) *repository.SQLiteStore {
	t.Helper()

	s, err := repository.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}
