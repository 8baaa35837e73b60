package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShawnNotFound/20251115GreatAgent/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleRun(id string, ended time.Time) *domain.RunRecord {
	return &domain.RunRecord{
		RunID:     id,
		Query:     "compare models",
		Mode:      domain.RunModeHuman,
		Phase:     domain.RunPhaseDone,
		StartedAt: ended.Add(-time.Minute),
		EndedAt:   ended,
		Final:     json.RawMessage(`{"final":"ok"}`),
		TraceURL:  "http://trace/" + id,
		Statuses:  map[string]domain.NodeStatus{"ResearchAgent": domain.NodeStatusCompleted},
		Segments: map[string]domain.SegmentRecord{
			"ResearchAgent": {Input: json.RawMessage(`{}`), Output: json.RawMessage(`{"n":1}`)},
		},
		Log: []domain.LogEntry{
			{Timestamp: ended.Add(-time.Second), Name: "enter", Detail: `{"node":"ResearchAgent"}`},
			{Timestamp: ended, Name: "final", Detail: "ok"},
		},
	}
}

func TestSaveAndGetRun(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	ended := time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveRun(ctx, sampleRun("run-1", ended)))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "compare models", got.Query)
	assert.Equal(t, domain.RunModeHuman, got.Mode)
	assert.Equal(t, domain.RunPhaseDone, got.Phase)
	assert.True(t, got.EndedAt.Equal(ended))
	assert.JSONEq(t, `{"final":"ok"}`, string(got.Final))
	assert.Equal(t, "http://trace/run-1", got.TraceURL)
	assert.Equal(t, domain.NodeStatusCompleted, got.Statuses["ResearchAgent"])
	assert.JSONEq(t, `{"n":1}`, string(got.Segments["ResearchAgent"].Output))
	require.Len(t, got.Log, 2)
	assert.Equal(t, "enter", got.Log[0].Name)
	assert.Equal(t, "final", got.Log[1].Name)
}

func TestSaveRunReplacesLog(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	run := sampleRun("run-1", time.Now())
	require.NoError(t, store.SaveRun(ctx, run))

	run.Phase = domain.RunPhaseError
	run.Error = "Stream error: EOF"
	run.Log = run.Log[:1]
	require.NoError(t, store.SaveRun(ctx, run))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunPhaseError, got.Phase)
	assert.Equal(t, "Stream error: EOF", got.Error)
	assert.Len(t, got.Log, 1)
}

func TestGetRunMissing(t *testing.T) {
	got, err := newTestStore(t).GetRun(context.Background(), "nope")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	base := time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveRun(ctx, sampleRun("old", base)))
	require.NoError(t, store.SaveRun(ctx, sampleRun("new", base.Add(time.Hour))))
	require.NoError(t, store.SaveRun(ctx, sampleRun("mid", base.Add(30*time.Minute))))

	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].RunID)
	assert.Equal(t, "mid", runs[1].RunID)
	assert.Nil(t, runs[0].Log)
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.migrate())
}

func TestRunsTableDeclaresTraceURL(t *testing.T) {
	store := newTestStore(t)

	var ddl string
	err := store.db.QueryRow(`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = 'runs'`).Scan(&ddl)
	require.NoError(t, err)
	assert.Contains(t, ddl, "trace_url TEXT")
}
