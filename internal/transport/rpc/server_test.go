package rpc

import (
	"context"
	"errors"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShawnNotFound/20251115GreatAgent/internal/domain"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/runsync"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/service"
)

type fakeConsole struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeConsole) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeConsole) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeConsole) Snapshot(context.Context) (*service.Snapshot, error) {
	return &service.Snapshot{Phase: domain.RunPhaseRunning, RunID: "run-1"}, nil
}
func (f *fakeConsole) Start(_ context.Context, query string, mode domain.RunMode, _ []string) (string, error) {
	if err := f.record("start:" + query + ":" + string(mode)); err != nil {
		return "", err
	}
	return "run-1", nil
}
func (f *fakeConsole) Pause(context.Context) error  { return f.record("pause") }
func (f *fakeConsole) Resume(context.Context) error { return f.record("resume") }
func (f *fakeConsole) Stop(context.Context) error   { return f.record("stop") }
func (f *fakeConsole) SubmitDecision(_ context.Context, node string, choice int) error {
	return f.record("decide:" + node)
}
func (f *fakeConsole) SetDraft(_ context.Context, node string, index int) error {
	if index > 1 {
		return runsync.ErrChoiceOutOfRange
	}
	return f.record("draft:" + node)
}
func (f *fakeConsole) SetMode(_ context.Context, mode domain.RunMode) error {
	return f.record("mode:" + string(mode))
}

func newTestClient(t *testing.T, console Console) *rpc.Client {
	t.Helper()
	srv, err := NewServer(console, time.Second, nil)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()

	client, err := jsonrpc.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
		_ = ln.Close()
	})
	return client
}

func TestSnapshot(t *testing.T) {
	client := newTestClient(t, &fakeConsole{})

	var snap service.Snapshot
	require.NoError(t, client.Call("Console.Snapshot", &Empty{}, &snap))
	assert.Equal(t, domain.RunPhaseRunning, snap.Phase)
	assert.Equal(t, "run-1", snap.RunID)
}

func TestStartAndControl(t *testing.T) {
	console := &fakeConsole{}
	client := newTestClient(t, console)

	var started StartRunReply
	require.NoError(t, client.Call("Console.StartRun", &StartRunArgs{Query: "q", Mode: "human"}, &started))
	assert.Equal(t, "run-1", started.RunID)

	for _, action := range []string{"pause", "Resume", " stop "} {
		var ack AckReply
		require.NoError(t, client.Call("Console.Control", &ControlArgs{Action: action}, &ack))
		assert.True(t, ack.OK)
	}

	var ack AckReply
	err := client.Call("Console.Control", &ControlArgs{Action: "restart"}, &ack)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "action must be")

	require.NoError(t, client.Call("Console.SubmitDecision", &DecisionArgs{Node: "N", Index: 1}, &ack))
	require.NoError(t, client.Call("Console.SetMode", &ModeArgs{Mode: "auto"}, &ack))

	assert.Equal(t, []string{"start:q:human", "pause", "resume", "stop", "decide:N", "mode:auto"}, console.recorded())
}

func TestErrorsReachCaller(t *testing.T) {
	console := &fakeConsole{err: errors.New("controller error (409): busy")}
	client := newTestClient(t, console)

	var ack AckReply
	err := client.Call("Console.Control", &ControlArgs{Action: "stop"}, &ack)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "busy")

	err = client.Call("Console.SetDraft", &DecisionArgs{Node: "N", Index: 4}, &ack)
	require.Error(t, err)
	assert.Equal(t, runsync.ErrChoiceOutOfRange.Error(), err.Error())
}

func TestShutdownWithoutStart(t *testing.T) {
	srv, err := NewServer(&fakeConsole{}, 0, nil)
	require.NoError(t, err)
	assert.NoError(t, srv.Shutdown(context.Background()))
}

func TestShutdownBeforeServeClosesListener(t *testing.T) {
	srv, err := NewServer(&fakeConsole{}, 0, nil)
	require.NoError(t, err)
	require.NoError(t, srv.Shutdown(context.Background()))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()

	require.NoError(t, srv.Serve(ln))

	_, err = net.DialTimeout("tcp", addr, time.Second)
	assert.Error(t, err)
}

func TestShutdownConcurrentWithServe(t *testing.T) {
	for i := 0; i < 20; i++ {
		srv, err := NewServer(&fakeConsole{}, 0, nil)
		require.NoError(t, err)

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := ln.Addr().String()

		served := make(chan error, 1)
		go func() { served <- srv.Serve(ln) }()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		require.NoError(t, srv.Shutdown(ctx))
		cancel()

		select {
		case err := <-served:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("serve did not return after shutdown")
		}

		_, err = net.DialTimeout("tcp", addr, time.Second)
		assert.Error(t, err)
	}
}

func TestShutdownConcurrentWithStart(t *testing.T) {
	srv, err := NewServer(&fakeConsole{}, 0, nil)
	require.NoError(t, err)

	started := make(chan error, 1)
	go func() { started <- srv.Start("127.0.0.1:0") }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-started:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("start did not return after shutdown")
	}
}
