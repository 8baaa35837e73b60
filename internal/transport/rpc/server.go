// Package rpc exposes console verbs over JSON-RPC for scripts and other
// internal clients.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ShawnNotFound/20251115GreatAgent/internal/domain"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/service"
)

// Console is the part of the console service exposed over RPC.
type Console interface {
	Snapshot(ctx context.Context) (*service.Snapshot, error)
	Start(ctx context.Context, query string, mode domain.RunMode, plan []string) (string, error)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error
	SubmitDecision(ctx context.Context, node string, choice int) error
	SetDraft(ctx context.Context, node string, index int) error
	SetMode(ctx context.Context, mode domain.RunMode) error
}

var _ Console = (*service.Service)(nil)

// Server exposes console RPC endpoints.
type Server struct {
	rpcServer *rpc.Server
	logger    *zap.Logger
	done      chan struct{}

	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

// NewServer creates a new RPC server bound to the console. Each call runs
// with callTimeout.
func NewServer(console Console, callTimeout time.Duration, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rpcServer := rpc.NewServer()
	handler := &Handler{console: console, timeout: callTimeout}
	if err := rpcServer.RegisterName("Console", handler); err != nil {
		return nil, fmt.Errorf("register rpc handler: %w", err)
	}

	return &Server{
		rpcServer: rpcServer,
		logger:    logger.Named("rpc"),
		done:      make(chan struct{}),
	}, nil
}

// Start begins accepting RPC connections on the given address.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts RPC connections on ln until it is closed. A server that
// was already shut down closes ln and returns at once.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ln.Close()
	}
	s.listener = ln
	s.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				close(s.done)
				return nil
			}
			s.logger.Warn("accept error", zap.Error(err))
			continue
		}

		go s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

// Shutdown stops accepting new RPC connections. Called before Serve, it
// makes a later Serve return without accepting.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.listener
	s.mu.Unlock()

	if ln == nil {
		return nil
	}

	if err := ln.Close(); err != nil {
		return err
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handler implements console RPC methods.
type Handler struct {
	console Console
	timeout time.Duration
}

// StartRunArgs asks for a new run.
type StartRunArgs struct {
	Query string   `json:"query"`
	Mode  string   `json:"mode,omitempty"`
	Plan  []string `json:"plan,omitempty"`
}

// StartRunReply carries the new run id.
type StartRunReply struct {
	RunID string `json:"run_id"`
}

// ControlArgs names a control verb for the active run.
type ControlArgs struct {
	Action string `json:"action"`
}

// DecisionArgs selects an option for a checkpoint node.
type DecisionArgs struct {
	Node  string `json:"node"`
	Index int    `json:"index"`
}

// ModeArgs selects the mode for the next run.
type ModeArgs struct {
	Mode string `json:"mode"`
}

// Empty is the argument of calls that take none.
type Empty struct{}

// AckReply is a generic OK response.
type AckReply struct {
	OK bool `json:"ok"`
}

func (h *Handler) context() (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), h.timeout)
}

// Snapshot returns the console state.
func (h *Handler) Snapshot(_ *Empty, resp *service.Snapshot) error {
	ctx, cancel := h.context()
	defer cancel()

	snap, err := h.console.Snapshot(ctx)
	if err != nil {
		return err
	}
	if resp != nil {
		*resp = *snap
	}
	return nil
}

// StartRun starts a run.
func (h *Handler) StartRun(req *StartRunArgs, resp *StartRunReply) error {
	if req == nil {
		return errors.New("start request is required")
	}
	ctx, cancel := h.context()
	defer cancel()

	runID, err := h.console.Start(ctx, req.Query, domain.RunMode(req.Mode), req.Plan)
	if err != nil {
		return err
	}
	if resp != nil {
		resp.RunID = runID
	}
	return nil
}

// Control pauses, resumes or stops the active run.
func (h *Handler) Control(req *ControlArgs, resp *AckReply) error {
	if req == nil {
		return errors.New("control request is required")
	}
	ctx, cancel := h.context()
	defer cancel()

	var err error
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "pause":
		err = h.console.Pause(ctx)
	case "resume":
		err = h.console.Resume(ctx)
	case "stop":
		err = h.console.Stop(ctx)
	default:
		return fmt.Errorf("action must be pause, resume or stop, got %q", req.Action)
	}
	if err != nil {
		return err
	}
	if resp != nil {
		resp.OK = true
	}
	return nil
}

// SubmitDecision submits a decision for a checkpoint node.
func (h *Handler) SubmitDecision(req *DecisionArgs, resp *AckReply) error {
	if req == nil {
		return errors.New("decision request is required")
	}
	ctx, cancel := h.context()
	defer cancel()

	if err := h.console.SubmitDecision(ctx, req.Node, req.Index); err != nil {
		return err
	}
	if resp != nil {
		resp.OK = true
	}
	return nil
}

// SetDraft moves the highlighted option for a pending node.
func (h *Handler) SetDraft(req *DecisionArgs, resp *AckReply) error {
	if req == nil {
		return errors.New("draft request is required")
	}
	ctx, cancel := h.context()
	defer cancel()

	if err := h.console.SetDraft(ctx, req.Node, req.Index); err != nil {
		return err
	}
	if resp != nil {
		resp.OK = true
	}
	return nil
}

// SetMode selects the mode for the next run.
func (h *Handler) SetMode(req *ModeArgs, resp *AckReply) error {
	if req == nil {
		return errors.New("mode request is required")
	}
	ctx, cancel := h.context()
	defer cancel()

	if err := h.console.SetMode(ctx, domain.RunMode(req.Mode)); err != nil {
		return err
	}
	if resp != nil {
		resp.OK = true
	}
	return nil
}
