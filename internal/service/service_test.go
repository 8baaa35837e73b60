package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ShawnNotFound/20251115GreatAgent/internal/domain"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/policy"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/repository"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/runsync"
	"github.com/ShawnNotFound/20251115GreatAgent/tests/helpers"
)

type fakeController struct {
	mu sync.Mutex

	runID      string
	startErr   error
	controlErr error
	selectErr  error

	plan        []string
	planErr     error
	graph       *domain.GraphBlueprint
	graphErr    error
	settings    domain.AgentSettings
	settingsErr error
	traces      []domain.TraceSummary
	tracesErr   error

	starts     []domain.StartRunRequest
	controls   []string
	selections []domain.SelectionRequest
	saved      domain.AgentSettings
	traceCalls int
}

func (f *fakeController) StartRun(_ context.Context, req *domain.StartRunRequest) (*domain.StartRunResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, *req)
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &domain.StartRunResponse{RunID: f.runID}, nil
}

func (f *fakeController) control(verb, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = append(f.controls, verb+":"+runID)
	return f.controlErr
}

func (f *fakeController) PauseRun(_ context.Context, runID string) error {
	return f.control("pause", runID)
}

func (f *fakeController) ResumeRun(_ context.Context, runID string) error {
	return f.control("resume", runID)
}

func (f *fakeController) StopRun(_ context.Context, runID string) error {
	return f.control("stop", runID)
}

func (f *fakeController) SubmitSelection(_ context.Context, req *domain.SelectionRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selections = append(f.selections, *req)
	return f.selectErr
}

func (f *fakeController) GetWorkflowPlan(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.plan, f.planErr
}

func (f *fakeController) SaveWorkflowPlan(_ context.Context, steps []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plan = steps
	return steps, nil
}

func (f *fakeController) GetGraph(context.Context) (*domain.GraphBlueprint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.graph, f.graphErr
}

func (f *fakeController) SaveGraph(_ context.Context, g *domain.GraphBlueprint) (*domain.GraphBlueprint, error) {
	return g, nil
}

func (f *fakeController) GetAgentSettings(context.Context) (domain.AgentSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings.Clone(), f.settingsErr
}

func (f *fakeController) SaveAgentSettings(_ context.Context, agents domain.AgentSettings) (domain.AgentSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = agents.Clone()
	return agents, nil
}

func (f *fakeController) ListTraces(context.Context, int) ([]domain.TraceSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.traceCalls++
	return f.traces, f.tracesErr
}

func (f *fakeController) snapshotCalls() (starts []domain.StartRunRequest, controls []string, selections []domain.SelectionRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append(starts, f.starts...), append(controls, f.controls...), append(selections, f.selections...)
}

// fakeStream hands each run a buffered event channel. Closing the channel
// simulates the producer hanging up.
type fakeStream struct {
	mu      sync.Mutex
	streams map[string]chan domain.StreamEvent
}

func newFakeStream() *fakeStream {
	return &fakeStream{streams: make(map[string]chan domain.StreamEvent)}
}

func (f *fakeStream) channel(runID string) chan domain.StreamEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.streams[runID]
	if !ok {
		ch = make(chan domain.StreamEvent, 32)
		f.streams[runID] = ch
	}
	return ch
}

func (f *fakeStream) push(runID, name, data string) {
	f.channel(runID) <- domain.StreamEvent{Event: name, Data: data}
}

func (f *fakeStream) Subscribe(ctx context.Context, runID string, handler func(domain.StreamEvent) error) error {
	events := f.channel(runID)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := handler(ev); err != nil {
				return err
			}
		}
	}
}

type testEnv struct {
	svc    *Service
	ctrl   *fakeController
	stream *fakeStream
}

func newTestEnv(t *testing.T, ctrl *fakeController, store repository.Store) *testEnv {
	t.Helper()
	engine, err := policy.NewDefaultEngine(context.Background())
	require.NoError(t, err)

	stream := newFakeStream()
	svc := New(ctrl, stream, store, engine, zap.NewNop(), Options{DefaultQuery: "compare models"})

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = svc.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-svc.Done()
	})
	return &testEnv{svc: svc, ctrl: ctrl, stream: stream}
}

func (e *testEnv) snapshot() *Snapshot {
	snap, err := e.svc.Snapshot(context.Background())
	if err != nil {
		return nil
	}
	return snap
}

func (e *testEnv) eventually(t *testing.T, cond func(*Snapshot) bool) *Snapshot {
	t.Helper()
	var last *Snapshot
	require.Eventually(t, func() bool {
		last = e.snapshot()
		return last != nil && cond(last)
	}, 2*time.Second, 5*time.Millisecond)
	return last
}

func TestStartRequiresQuery(t *testing.T) {
	env := newTestEnv(t, &fakeController{runID: "run-1"}, nil)

	_, err := env.svc.Start(context.Background(), "   ", domain.RunModeAuto, nil)
	assert.ErrorIs(t, err, ErrQueryRequired)

	_, err = env.svc.Start(context.Background(), "q", domain.RunMode("bogus"), nil)
	assert.ErrorIs(t, err, ErrInvalidMode)

	starts, _, _ := env.ctrl.snapshotCalls()
	assert.Empty(t, starts)
}

func TestStartOpensSubscription(t *testing.T) {
	env := newTestEnv(t, &fakeController{runID: "run-1"}, nil)
	ctx := context.Background()

	runID, err := env.svc.Start(ctx, "  compare models ", domain.RunModeHuman, nil)
	require.NoError(t, err)
	assert.Equal(t, "run-1", runID)

	starts, _, _ := env.ctrl.snapshotCalls()
	require.Len(t, starts, 1)
	assert.Equal(t, "compare models", starts[0].UserQuery)
	assert.Equal(t, domain.RunModeHuman, starts[0].Mode)
	assert.Equal(t, domain.DefaultPipeline, starts[0].WorkflowOverride)

	snap := env.snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, domain.RunPhaseRunning, snap.Phase)
	assert.Equal(t, "run-1", snap.RunID)
	assert.Equal(t, "run-1", snap.LastRunID)
	assert.True(t, snap.StreamOpen)
	assert.True(t, snap.CanControl)
	assert.False(t, snap.CanStart)
	assert.True(t, snap.DecisionEnabled)

	env.stream.push("run-1", "enter", `{"node":"ResearchAgent"}`)
	snap = env.eventually(t, func(s *Snapshot) bool {
		return s.Statuses["ResearchAgent"] == domain.NodeStatusActive
	})
	require.Len(t, snap.Log, 1)
	assert.Equal(t, "enter", snap.Log[0].Name)
}

func TestStartSendsLoadedPlan(t *testing.T) {
	ctrl := &fakeController{runID: "run-1", plan: []string{"InputAgent", "OutputAgent"}}
	env := newTestEnv(t, ctrl, nil)
	ctx := context.Background()
	require.NoError(t, env.svc.LoadPlan(ctx))

	_, err := env.svc.Start(ctx, "q", "", nil)
	require.NoError(t, err)
	_, err = env.svc.Start(ctx, "q", "", []string{"LogicAgent"})
	require.NoError(t, err)

	starts, _, _ := ctrl.snapshotCalls()
	require.Len(t, starts, 2)
	assert.Equal(t, []string{"InputAgent", "OutputAgent"}, starts[0].WorkflowOverride)
	assert.Equal(t, domain.RunModeAuto, starts[0].Mode)
	assert.Equal(t, []string{"LogicAgent"}, starts[1].WorkflowOverride)
}

func TestStartFailure(t *testing.T) {
	env := newTestEnv(t, &fakeController{startErr: errors.New("controller down")}, nil)

	_, err := env.svc.Start(context.Background(), "q", domain.RunModeAuto, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "controller down")

	snap := env.snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, domain.RunPhaseError, snap.Phase)
	assert.Empty(t, snap.RunID)
	assert.False(t, snap.StreamOpen)
	assert.Equal(t, "controller down", snap.ErrorDetails)
	require.Len(t, snap.Log, 1)
	assert.Equal(t, domain.LogStartError, snap.Log[0].Name)
	require.NotNil(t, snap.Notice)
	assert.Contains(t, snap.Notice.Text, "controller down")
	assert.False(t, snap.Starting)
	assert.True(t, snap.CanStart)
}

func TestStartResetsPreviousRun(t *testing.T) {
	ctrl := &fakeController{runID: "run-1"}
	env := newTestEnv(t, ctrl, nil)
	ctx := context.Background()

	_, err := env.svc.Start(ctx, "q", domain.RunModeAuto, nil)
	require.NoError(t, err)
	env.stream.push("run-1", "segment", `{"node":"A","output":{"x":1}}`)
	env.eventually(t, func(s *Snapshot) bool { return len(s.Segments) == 1 })

	ctrl.mu.Lock()
	ctrl.runID = "run-2"
	ctrl.mu.Unlock()
	_, err = env.svc.Start(ctx, "q", domain.RunModeAuto, nil)
	require.NoError(t, err)

	snap := env.snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, "run-2", snap.RunID)
	assert.Empty(t, snap.Segments)
	assert.Empty(t, snap.Statuses)
	assert.Empty(t, snap.Log)

	// Late events for the first run are never read again.
	env.stream.push("run-1", "enter", `{"node":"B"}`)
	env.stream.push("run-2", "enter", `{"node":"C"}`)
	snap = env.eventually(t, func(s *Snapshot) bool { return len(s.Statuses) == 1 })
	assert.Contains(t, snap.Statuses, "C")
}

func TestControlVerbsWithoutActiveRun(t *testing.T) {
	env := newTestEnv(t, &fakeController{}, nil)
	ctx := context.Background()

	assert.NoError(t, env.svc.Pause(ctx))
	assert.NoError(t, env.svc.Resume(ctx))
	assert.NoError(t, env.svc.Stop(ctx))

	_, controls, _ := env.ctrl.snapshotCalls()
	assert.Empty(t, controls)
}

func TestControlVerbsLeavePhaseToEvents(t *testing.T) {
	env := newTestEnv(t, &fakeController{runID: "run-1"}, nil)
	ctx := context.Background()
	_, err := env.svc.Start(ctx, "q", domain.RunModeAuto, nil)
	require.NoError(t, err)

	require.NoError(t, env.svc.Pause(ctx))
	snap := env.snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, domain.RunPhaseRunning, snap.Phase)

	env.stream.push("run-1", "paused", `{"ts":1}`)
	env.eventually(t, func(s *Snapshot) bool { return s.Phase == domain.RunPhasePaused })

	require.NoError(t, env.svc.Resume(ctx))
	require.NoError(t, env.svc.Stop(ctx))
	_, controls, _ := env.ctrl.snapshotCalls()
	assert.Equal(t, []string{"pause:run-1", "resume:run-1", "stop:run-1"}, controls)
}

func TestControlFailureRaisesNotice(t *testing.T) {
	ctrl := &fakeController{runID: "run-1"}
	env := newTestEnv(t, ctrl, nil)
	ctx := context.Background()
	_, err := env.svc.Start(ctx, "q", domain.RunModeAuto, nil)
	require.NoError(t, err)

	ctrl.mu.Lock()
	ctrl.controlErr = errors.New("409 conflict")
	ctrl.mu.Unlock()

	err = env.svc.Stop(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409 conflict")

	snap := env.snapshot()
	require.NotNil(t, snap)
	require.NotNil(t, snap.Notice)
	assert.Contains(t, snap.Notice.Text, "Failed to stop run")
	assert.Equal(t, domain.RunPhaseRunning, snap.Phase)
}

func TestNoticeExpires(t *testing.T) {
	now := time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	engine, err := policy.NewDefaultEngine(context.Background())
	require.NoError(t, err)
	svc := New(&fakeController{startErr: errors.New("nope")}, newFakeStream(), nil, engine, nil,
		Options{NoticeTTL: time.Second, Now: clock})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = svc.Run(ctx) }()
	defer func() { cancel(); <-svc.Done() }()

	_, err = svc.Start(context.Background(), "q", "", nil)
	require.Error(t, err)

	snap, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap.Notice)

	mu.Lock()
	now = now.Add(2 * time.Second)
	mu.Unlock()

	snap, err = svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap.Notice)
}

func TestHumanCheckpointDecision(t *testing.T) {
	env := newTestEnv(t, &fakeController{runID: "run-1"}, nil)
	ctx := context.Background()
	_, err := env.svc.Start(ctx, "q", domain.RunModeHuman, nil)
	require.NoError(t, err)

	env.stream.push("run-1", "options", `{"node":"ResearchAgent","options":["A","B"]}`)
	snap := env.eventually(t, func(s *Snapshot) bool { return len(s.Pending) == 1 })
	assert.Equal(t, []string{"A", "B"}, snap.Pending["ResearchAgent"])
	assert.Equal(t, 0, snap.Drafts["ResearchAgent"])

	require.NoError(t, env.svc.SubmitDecision(ctx, "ResearchAgent", 1))
	snap = env.snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, 1, snap.Drafts["ResearchAgent"])

	_, _, selections := env.ctrl.snapshotCalls()
	require.Len(t, selections, 1)
	assert.Equal(t, domain.SelectionRequest{RunID: "run-1", Node: "ResearchAgent", ChoiceIndex: 1}, selections[0])

	env.stream.push("run-1", "selection", `{"node":"ResearchAgent","choice_index":1}`)
	snap = env.eventually(t, func(s *Snapshot) bool { return len(s.Pending) == 0 })
	assert.NotContains(t, snap.Drafts, "ResearchAgent")
}

func TestSubmitDecisionOutOfRangeForPendingNode(t *testing.T) {
	env := newTestEnv(t, &fakeController{runID: "run-1"}, nil)
	ctx := context.Background()
	_, err := env.svc.Start(ctx, "q", domain.RunModeHuman, nil)
	require.NoError(t, err)

	env.stream.push("run-1", "options", `{"node":"ResearchAgent","options":["A","B"]}`)
	env.eventually(t, func(s *Snapshot) bool { return len(s.Pending) == 1 })

	err = env.svc.SubmitDecision(ctx, "ResearchAgent", 2)
	assert.ErrorIs(t, err, runsync.ErrChoiceOutOfRange)

	_, _, selections := env.ctrl.snapshotCalls()
	assert.Empty(t, selections)

	snap := env.snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, 0, snap.Drafts["ResearchAgent"])
}

func TestSubmitDecisionAfterDoneUsesLastRun(t *testing.T) {
	env := newTestEnv(t, &fakeController{runID: "run-1"}, nil)
	ctx := context.Background()
	_, err := env.svc.Start(ctx, "q", domain.RunModeHuman, nil)
	require.NoError(t, err)

	env.stream.push("run-1", "done", `{"summary":"ok"}`)
	snap := env.eventually(t, func(s *Snapshot) bool { return s.Phase == domain.RunPhaseDone })
	assert.Empty(t, snap.RunID)
	assert.Equal(t, "run-1", snap.LastRunID)
	assert.True(t, snap.DecisionEnabled)
	assert.False(t, snap.CanControl)
	assert.False(t, snap.StreamOpen)

	require.NoError(t, env.svc.SubmitDecision(ctx, "OutputAgent", 0))
	_, _, selections := env.ctrl.snapshotCalls()
	require.Len(t, selections, 1)
	assert.Equal(t, "run-1", selections[0].RunID)

	// No pending selection for the node, so no draft appears.
	snap = env.snapshot()
	require.NotNil(t, snap)
	assert.NotContains(t, snap.Drafts, "OutputAgent")
}

func TestSubmitDecisionWithoutRun(t *testing.T) {
	env := newTestEnv(t, &fakeController{}, nil)
	ctx := context.Background()

	assert.NoError(t, env.svc.SubmitDecision(ctx, "ResearchAgent", 0))
	assert.ErrorIs(t, env.svc.SubmitDecision(ctx, "", 0), ErrNodeRequired)
	assert.ErrorIs(t, env.svc.SubmitDecision(ctx, "ResearchAgent", -1), runsync.ErrChoiceOutOfRange)

	_, _, selections := env.ctrl.snapshotCalls()
	assert.Empty(t, selections)
}

func TestSubmitDecisionFailure(t *testing.T) {
	ctrl := &fakeController{runID: "run-1", selectErr: errors.New("bad node")}
	env := newTestEnv(t, ctrl, nil)
	ctx := context.Background()
	_, err := env.svc.Start(ctx, "q", domain.RunModeHuman, nil)
	require.NoError(t, err)
	env.stream.push("run-1", "options", `{"node":"N","options":["A","B"]}`)
	env.eventually(t, func(s *Snapshot) bool { return len(s.Pending) == 1 })

	err = env.svc.SubmitDecision(ctx, "N", 1)
	require.Error(t, err)

	snap := env.snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, 0, snap.Drafts["N"])
	require.NotNil(t, snap.Notice)
}

func TestSetDraft(t *testing.T) {
	env := newTestEnv(t, &fakeController{runID: "run-1"}, nil)
	ctx := context.Background()
	_, err := env.svc.Start(ctx, "q", domain.RunModeHuman, nil)
	require.NoError(t, err)
	env.stream.push("run-1", "options", `{"node":"N","options":["A","B","C"]}`)
	env.eventually(t, func(s *Snapshot) bool { return len(s.Pending) == 1 })

	require.NoError(t, env.svc.SetDraft(ctx, "N", 2))
	assert.ErrorIs(t, env.svc.SetDraft(ctx, "N", 3), runsync.ErrChoiceOutOfRange)
	assert.ErrorIs(t, env.svc.SetDraft(ctx, "Other", 0), runsync.ErrNotPending)

	snap := env.snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, 2, snap.Drafts["N"])
}

func TestAgentErrorAndResume(t *testing.T) {
	env := newTestEnv(t, &fakeController{runID: "run-1"}, nil)
	ctx := context.Background()
	_, err := env.svc.Start(ctx, "q", domain.RunModeAuto, nil)
	require.NoError(t, err)

	env.stream.push("run-1", "agent_error", `{"node":"AnalysisAgent","message":"rate limited"}`)
	snap := env.eventually(t, func(s *Snapshot) bool { return s.Phase == domain.RunPhasePausedError })
	require.NotNil(t, snap.AgentError)
	assert.Equal(t, "AnalysisAgent", snap.AgentError.Node)
	assert.Equal(t, "rate limited", snap.AgentError.Message)

	env.stream.push("run-1", "resumed", `{}`)
	snap = env.eventually(t, func(s *Snapshot) bool { return s.Phase == domain.RunPhaseRunning })
	assert.Nil(t, snap.AgentError)
}

func TestStreamHangupIsFault(t *testing.T) {
	env := newTestEnv(t, &fakeController{runID: "run-1"}, nil)
	_, err := env.svc.Start(context.Background(), "q", domain.RunModeAuto, nil)
	require.NoError(t, err)

	close(env.stream.channel("run-1"))
	snap := env.eventually(t, func(s *Snapshot) bool { return s.Phase == domain.RunPhaseError })
	assert.Empty(t, snap.RunID)
	assert.Equal(t, "run-1", snap.LastRunID)
	assert.False(t, snap.StreamOpen)
	require.NotEmpty(t, snap.Log)
	assert.Equal(t, domain.LogStreamError, snap.Log[len(snap.Log)-1].Name)
}

func TestArchiveOnDone(t *testing.T) {
	store := helpers.NewTestSQLiteStore(t)
	env := newTestEnv(t, &fakeController{runID: "run-1"}, store)
	ctx := context.Background()
	_, err := env.svc.Start(ctx, "compare models", domain.RunModeAuto, nil)
	require.NoError(t, err)

	env.stream.push("run-1", "trace", `{"trace_id":"t1","trace_url":"http://trace/t1"}`)
	env.stream.push("run-1", "segment", `{"node":"ResearchAgent","output":{"n":1}}`)
	env.stream.push("run-1", "done", `{"summary":"ok"}`)
	env.stream.push("run-1", "end", `{"run_id":"run-1"}`)

	var rec *domain.RunRecord
	require.Eventually(t, func() bool {
		got, err := env.svc.HistoryRun(ctx, "run-1")
		if err != nil {
			return false
		}
		rec = got
		return true
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, domain.RunPhaseDone, rec.Phase)
	assert.Equal(t, "compare models", rec.Query)
	assert.Equal(t, "http://trace/t1", rec.TraceURL)
	assert.JSONEq(t, `{"summary":"ok"}`, string(rec.Final))
	assert.Equal(t, domain.NodeStatusCompleted, rec.Statuses["ResearchAgent"])
	require.NotEmpty(t, rec.Log)
	assert.Equal(t, domain.LogFinal, rec.Log[len(rec.Log)-1].Name)

	runs, err := env.svc.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}

func TestHistoryWithoutStore(t *testing.T) {
	env := newTestEnv(t, &fakeController{}, nil)
	_, err := env.svc.History(context.Background(), 10)
	assert.ErrorIs(t, err, ErrArchiveDisabled)
	_, err = env.svc.HistoryRun(context.Background(), "x")
	assert.ErrorIs(t, err, ErrArchiveDisabled)
}

func TestHistoryRunNotFound(t *testing.T) {
	env := newTestEnv(t, &fakeController{}, helpers.NewTestSQLiteStore(t))
	_, err := env.svc.HistoryRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestInitLoadsEverything(t *testing.T) {
	ctrl := &fakeController{
		plan:     []string{"InputAgent", "OutputAgent"},
		graph:    &domain.GraphBlueprint{Nodes: []domain.GraphNode{{ID: "InputAgent"}}},
		settings: domain.AgentSettings{"InputAgent": {APIBase: "http://x", APIKey: " "}},
		traces:   []domain.TraceSummary{{ID: "t1", Name: "run", Status: "ok"}},
	}
	env := newTestEnv(t, ctrl, nil)
	env.svc.Init(context.Background())

	snap := env.snapshot()
	require.NotNil(t, snap)
	assert.True(t, snap.PlanLoaded)
	assert.Equal(t, []string{"InputAgent", "OutputAgent"}, snap.Plan)
	assert.True(t, snap.GraphLoaded)
	require.Len(t, snap.Graph.Nodes, 1)
	assert.True(t, snap.SettingsLoaded)
	assert.False(t, snap.SettingsReady)
	assert.Equal(t, []string{"InputAgent"}, snap.MissingAgents)
	assert.Len(t, snap.Traces, 1)
	assert.Equal(t, "compare models", snap.Query)
	assert.True(t, snap.CanStart)
}

func TestInitFailuresKeepDefaults(t *testing.T) {
	boom := errors.New("boom")
	ctrl := &fakeController{planErr: boom, graphErr: boom, settingsErr: boom, tracesErr: boom}
	env := newTestEnv(t, ctrl, nil)
	env.svc.Init(context.Background())

	snap := env.snapshot()
	require.NotNil(t, snap)
	assert.False(t, snap.PlanLoaded)
	assert.Equal(t, domain.DefaultPipeline, snap.Plan)
	assert.False(t, snap.GraphLoaded)
	assert.Equal(t, domain.DefaultGraph(), snap.Graph)
	assert.True(t, snap.SettingsLoaded)
	assert.True(t, snap.SettingsReady)
	assert.Empty(t, snap.Traces)
}

func TestSettingsEditAndSave(t *testing.T) {
	ctrl := &fakeController{settings: domain.AgentSettings{"A": {APIBase: "http://a"}}}
	env := newTestEnv(t, ctrl, nil)
	ctx := context.Background()
	require.NoError(t, env.svc.LoadSettings(ctx))

	snap := env.snapshot()
	require.NotNil(t, snap)
	assert.False(t, snap.SettingsReady)

	require.NoError(t, env.svc.UpdateAgentSetting(ctx, "A", "api_key", "secret"))
	err := env.svc.UpdateAgentSetting(ctx, "A", "colour", "red")
	assert.ErrorIs(t, err, ErrUnknownAgentField)

	snap = env.snapshot()
	require.NotNil(t, snap)
	assert.True(t, snap.SettingsReady)

	saved, err := env.svc.SaveSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "secret", saved["A"].APIKey)
	ctrl.mu.Lock()
	assert.Equal(t, "secret", ctrl.saved["A"].APIKey)
	ctrl.mu.Unlock()

	snap = env.snapshot()
	require.NotNil(t, snap)
	require.NotNil(t, snap.Notice)
	assert.Equal(t, "Agent settings saved", snap.Notice.Text)
}

func TestSavePlanAndGraph(t *testing.T) {
	env := newTestEnv(t, &fakeController{}, nil)
	ctx := context.Background()

	plan, err := env.svc.SavePlan(ctx, []string{"ResearchAgent"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ResearchAgent"}, plan)

	g, err := env.svc.SaveGraph(ctx, &domain.GraphBlueprint{})
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultGraph(), *g)

	snap := env.snapshot()
	require.NotNil(t, snap)
	assert.True(t, snap.PlanLoaded)
	assert.Equal(t, []string{"ResearchAgent"}, snap.Plan)
	assert.True(t, snap.GraphLoaded)
}

func TestTracesRefreshOnPhaseChange(t *testing.T) {
	ctrl := &fakeController{runID: "run-1", traces: []domain.TraceSummary{{ID: "t1"}}}
	env := newTestEnv(t, ctrl, nil)

	_, err := env.svc.Start(context.Background(), "q", domain.RunModeAuto, nil)
	require.NoError(t, err)
	env.eventually(t, func(s *Snapshot) bool { return len(s.Traces) == 1 })
}

func TestTraceRefreshFailureKeepsList(t *testing.T) {
	ctrl := &fakeController{traces: []domain.TraceSummary{{ID: "t1"}}}
	env := newTestEnv(t, ctrl, nil)
	ctx := context.Background()
	require.NoError(t, env.svc.RefreshTraces(ctx))

	ctrl.mu.Lock()
	ctrl.tracesErr = fmt.Errorf("timeout")
	ctrl.mu.Unlock()
	assert.Error(t, env.svc.RefreshTraces(ctx))

	snap := env.snapshot()
	require.NotNil(t, snap)
	assert.Len(t, snap.Traces, 1)
}

func TestSubscribeSignalsChanges(t *testing.T) {
	env := newTestEnv(t, &fakeController{}, nil)
	ch, cancel := env.svc.Subscribe()
	defer cancel()

	require.NoError(t, env.svc.SetQuery(context.Background(), "new query"))
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected change signal")
	}

	snap := env.snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, "new query", snap.Query)
	assert.NotZero(t, snap.Version)
}

func TestSetMode(t *testing.T) {
	env := newTestEnv(t, &fakeController{}, nil)
	ctx := context.Background()

	assert.ErrorIs(t, env.svc.SetMode(ctx, "sometimes"), ErrInvalidMode)
	require.NoError(t, env.svc.SetMode(ctx, domain.RunModeHuman))

	snap := env.snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, domain.RunModeHuman, snap.Mode)
	assert.False(t, snap.DecisionEnabled)
}

func TestVerbsAfterStop(t *testing.T) {
	engine, err := policy.NewDefaultEngine(context.Background())
	require.NoError(t, err)
	svc := New(&fakeController{}, newFakeStream(), nil, engine, nil, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = svc.Run(ctx) }()
	cancel()
	<-svc.Done()

	_, err = svc.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrServiceStopped)
}
