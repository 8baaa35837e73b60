// Package ws serves the console over websockets: snapshot pushes out, control
// commands in.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/ShawnNotFound/20251115GreatAgent/internal/config"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/domain"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/hub"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/protocol"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/runsync"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/service"
)

// Console is the part of the console service the websocket layer drives.
type Console interface {
	Snapshot(ctx context.Context) (*service.Snapshot, error)
	Subscribe() (<-chan struct{}, func())
	Start(ctx context.Context, query string, mode domain.RunMode, plan []string) (string, error)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error
	SubmitDecision(ctx context.Context, node string, choice int) error
	SetDraft(ctx context.Context, node string, index int) error
	SetMode(ctx context.Context, mode domain.RunMode) error
	SetQuery(ctx context.Context, query string) error
}

var _ Console = (*service.Service)(nil)

// Server handles websocket connections.
type Server struct {
	cfg      *config.Config
	hub      *hub.Hub
	console  Console
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a new websocket server.
func NewServer(cfg *config.Config, h *hub.Hub, console Console, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:     cfg,
		hub:     h,
		console: console,
		logger:  logger.Named("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWebSocket handles websocket upgrade and connection lifecycle.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket", zap.Error(err))
		return err
	}

	conn := s.hub.NewConnection(ws)
	s.hub.Register(conn)

	ws.SetReadLimit(s.cfg.MaxMessageSize)

	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

// Broadcast pushes a snapshot to every ready connection after each console
// change until ctx is cancelled.
func (s *Server) Broadcast(ctx context.Context) {
	changes, cancel := s.console.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			data, err := s.snapshotMessage(ctx, "")
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("failed to build snapshot", zap.Error(err))
				}
				continue
			}
			s.hub.Broadcast(data)
		}
	}
}

func (s *Server) snapshotMessage(ctx context.Context, requestID string) ([]byte, error) {
	snap, err := s.console.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	state, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	return json.Marshal(protocol.SnapshotMessage{
		BaseMessage: protocol.BaseMessage{
			Type:      protocol.TypeSnapshot,
			Ts:        time.Now().UnixMilli(),
			RequestID: requestID,
			RunID:     snap.RunID,
		},
		State: state,
	})
}

// readPump reads messages from the websocket connection.
func (s *Server) readPump(conn *hub.Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read error", zap.String("conn_id", conn.ID), zap.Error(err))
			}
			break
		}

		s.handleMessage(conn, message)
	}
}

// writePump writes messages to the websocket connection.
func (s *Server) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Warn("failed to write message", zap.String("conn_id", conn.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches incoming messages to appropriate handlers.
func (s *Server) handleMessage(conn *hub.Connection, data []byte) {
	var base protocol.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	if base.Type == protocol.TypeHello {
		s.handleHello(conn, data)
		return
	}
	if !conn.Ready() {
		s.sendError(conn, base.RequestID, protocol.ErrorCodeHelloRequired, "must send hello first")
		return
	}

	var cmd func(ctx context.Context) error
	switch base.Type {
	case protocol.TypeStartRun:
		var msg protocol.StartRunMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(conn, base.RequestID, protocol.ErrorCodeInvalidMessage, "invalid start_run message")
			return
		}
		cmd = func(ctx context.Context) error {
			_, err := s.console.Start(ctx, msg.Query, domain.RunMode(msg.Mode), msg.Plan)
			return err
		}
	case protocol.TypePauseRun:
		cmd = s.console.Pause
	case protocol.TypeResumeRun:
		cmd = s.console.Resume
	case protocol.TypeStopRun:
		cmd = s.console.Stop
	case protocol.TypeSubmitDecision:
		var msg protocol.SubmitDecisionMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(conn, base.RequestID, protocol.ErrorCodeInvalidMessage, "invalid submit_decision message")
			return
		}
		cmd = func(ctx context.Context) error {
			return s.console.SubmitDecision(ctx, msg.Node, msg.ChoiceIndex)
		}
	case protocol.TypeSetDraft:
		var msg protocol.SetDraftMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(conn, base.RequestID, protocol.ErrorCodeInvalidMessage, "invalid set_draft message")
			return
		}
		cmd = func(ctx context.Context) error {
			return s.console.SetDraft(ctx, msg.Node, msg.Index)
		}
	case protocol.TypeSetMode:
		var msg protocol.SetModeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(conn, base.RequestID, protocol.ErrorCodeInvalidMessage, "invalid set_mode message")
			return
		}
		cmd = func(ctx context.Context) error {
			return s.console.SetMode(ctx, domain.RunMode(msg.Mode))
		}
	case protocol.TypeSetQuery:
		var msg protocol.SetQueryMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(conn, base.RequestID, protocol.ErrorCodeInvalidMessage, "invalid set_query message")
			return
		}
		cmd = func(ctx context.Context) error {
			return s.console.SetQuery(ctx, msg.Query)
		}
	default:
		s.sendError(conn, base.RequestID, protocol.ErrorCodeInvalidMessage, "unknown message type: "+base.Type)
		return
	}

	// Commands run off the read loop.
	go s.runCommand(conn, base, cmd)
}

func (s *Server) runCommand(conn *hub.Connection, base protocol.BaseMessage, cmd func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.commandTimeout())
	defer cancel()

	if err := cmd(ctx); err != nil {
		s.logger.Warn("command failed", zap.String("type", base.Type), zap.String("conn_id", conn.ID), zap.Error(err))
		s.sendError(conn, base.RequestID, errorCode(err), err.Error())
		return
	}

	s.hub.SendJSONToConnection(conn, protocol.AckMessage{
		BaseMessage: protocol.BaseMessage{
			Type:      protocol.TypeAck,
			Ts:        time.Now().UnixMilli(),
			RequestID: base.RequestID,
		},
	})
}

func (s *Server) commandTimeout() time.Duration {
	if s.cfg.ControlTimeout > 0 {
		return s.cfg.ControlTimeout + 5*time.Second
	}
	return 30 * time.Second
}

// handleHello handles the hello handshake message.
func (s *Server) handleHello(conn *hub.Connection, data []byte) {
	var msg protocol.HelloMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid hello message")
		return
	}

	if s.cfg.APIKey != "" && msg.APIKey != s.cfg.APIKey {
		s.sendError(conn, msg.RequestID, protocol.ErrorCodeUnauthorized, "invalid api_key")
		return
	}

	s.hub.MarkReady(conn)
	s.hub.SendJSONToConnection(conn, protocol.HelloAckMessage{
		BaseMessage: protocol.BaseMessage{
			Type:      protocol.TypeHelloAck,
			Ts:        time.Now().UnixMilli(),
			RequestID: msg.RequestID,
		},
		ConnectionID: conn.ID,
	})

	// Send the current state right away; later changes arrive via Broadcast.
	data, err := s.snapshotMessage(context.Background(), msg.RequestID)
	if err != nil {
		s.logger.Warn("failed to build snapshot", zap.Error(err))
		return
	}
	s.hub.SendToConnection(conn, data)

	s.logger.Info("hello handshake completed", zap.String("conn_id", conn.ID))
}

// sendError sends an error message to a connection.
func (s *Server) sendError(conn *hub.Connection, requestID, code, message string) {
	s.hub.SendJSONToConnection(conn, protocol.ErrorMessage{
		BaseMessage: protocol.BaseMessage{
			Type:      protocol.TypeError,
			Ts:        time.Now().UnixMilli(),
			RequestID: requestID,
		},
		Code:    code,
		Message: message,
	})
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, service.ErrQueryRequired),
		errors.Is(err, service.ErrInvalidMode),
		errors.Is(err, service.ErrNodeRequired),
		errors.Is(err, service.ErrStartInProgress),
		errors.Is(err, runsync.ErrNotPending),
		errors.Is(err, runsync.ErrChoiceOutOfRange):
		return protocol.ErrorCodeInvalidRequest
	case errors.Is(err, service.ErrServiceStopped):
		return protocol.ErrorCodeInternalError
	default:
		return protocol.ErrorCodeControlFailed
	}
}
