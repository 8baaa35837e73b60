package runsync

import (
	"context"

	"go.uber.org/zap"

	"github.com/ShawnNotFound/20251115GreatAgent/internal/domain"
)

// Subscriber opens a push subscription for one run. Subscribe blocks until
// the stream ends, fails or ctx is cancelled, calling handler for each event.
type Subscriber interface {
	Subscribe(ctx context.Context, runID string, handler func(domain.StreamEvent) error) error
}

// StreamMessage is posted by a subscription goroutine to the owner.
type StreamMessage struct {
	Gen   uint64
	RunID string
	Event domain.StreamEvent
	// Err is set, with no Event, when the subscription failed or the
	// producer hung up without an end signal.
	Err error
}

// StreamManager owns the single live subscription, keyed by run id.
// All methods must be called from the owning goroutine.
type StreamManager struct {
	sub    Subscriber
	sink   chan<- StreamMessage
	logger *zap.Logger

	key    string
	gen    uint64
	live   uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// NewStreamManager creates a manager that posts messages to sink.
func NewStreamManager(sub Subscriber, sink chan<- StreamMessage, logger *zap.Logger) *StreamManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamManager{sub: sub, sink: sink, logger: logger.Named("stream")}
}

// Key returns the run id the manager is tracking.
func (m *StreamManager) Key() string { return m.key }

// Open reports whether a subscription is live.
func (m *StreamManager) Open() bool { return m.live != 0 }

// Reconcile makes the subscription match runID. A changed id closes the old
// subscription, waiting for its goroutine to exit, before a new one opens.
// It reports whether a new subscription was opened. Calling it again with
// the current id never reopens a closed stream.
func (m *StreamManager) Reconcile(runID string) bool {
	if runID == m.key {
		return false
	}
	m.Close()
	m.key = runID
	if runID == "" {
		return false
	}
	m.open(runID)
	return true
}

// Close tears down the live subscription, if any, and blocks until its
// goroutine has returned. The tracked id is kept.
func (m *StreamManager) Close() {
	if m.live == 0 {
		return
	}
	m.cancel()
	<-m.done
	m.logger.Info("subscription closed", zap.String("run_id", m.key), zap.Uint64("gen", m.live))
	m.live = 0
	m.cancel = nil
	m.done = nil
}

// Accept reports whether msg belongs to the live subscription.
func (m *StreamManager) Accept(msg StreamMessage) bool {
	return m.live != 0 && msg.Gen == m.live
}

func (m *StreamManager) open(runID string) {
	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.live = gen
	m.cancel = cancel
	m.done = done

	m.logger.Info("subscription opened", zap.String("run_id", runID), zap.Uint64("gen", gen))

	go func() {
		defer close(done)
		err := m.sub.Subscribe(ctx, runID, func(ev domain.StreamEvent) error {
			select {
			case m.sink <- StreamMessage{Gen: gen, RunID: runID, Event: ev}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = ErrStreamClosed
		}
		select {
		case m.sink <- StreamMessage{Gen: gen, RunID: runID, Err: err}:
		case <-ctx.Done():
		}
	}()
}

// Synchronizer ties a State to its StreamManager. It is the only writer of
// the active run identity.
type Synchronizer struct {
	State   *State
	streams *StreamManager
	logger  *zap.Logger
}

// NewSynchronizer wires a state to a subscriber. Stream messages are posted
// to sink and must be fed back through Deliver by the owner.
func NewSynchronizer(state *State, sub Subscriber, sink chan<- StreamMessage, logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{
		State:   state,
		streams: NewStreamManager(sub, sink, logger),
		logger:  logger.Named("sync"),
	}
}

// Streams exposes the lifecycle manager for inspection.
func (s *Synchronizer) Streams() *StreamManager { return s.streams }

// SetActiveRun assigns the active identity. A non-empty id also becomes the
// last known identity. Opening a subscription marks the run running.
func (s *Synchronizer) SetActiveRun(runID string) Effects {
	s.State.ActiveRun = runID
	if runID != "" {
		s.State.LastRun = runID
	}
	return s.reconcile()
}

// Deliver applies one message posted by a subscription goroutine. Messages
// from closed subscriptions are dropped.
func (s *Synchronizer) Deliver(msg StreamMessage) Effects {
	if !s.streams.Accept(msg) {
		s.logger.Debug("dropped stale stream message",
			zap.String("run_id", msg.RunID), zap.Uint64("gen", msg.Gen), zap.String("event", msg.Event.Event))
		return Effects{}
	}

	if msg.Err != nil {
		s.logger.Warn("stream fault", zap.String("run_id", msg.RunID), zap.Error(msg.Err))
		s.streams.Close()
		fx := s.State.StreamFault(msg.Err)
		return s.reconcile().merge(fx)
	}

	fx := s.State.Handle(msg.Event.Event, msg.Event.Data)
	if fx.Ignored {
		s.logger.Debug("ignored stream event", zap.String("event", msg.Event.Event))
		return fx
	}
	if fx.CloseStream {
		s.streams.Close()
	}
	return s.reconcile().merge(fx)
}

func (s *Synchronizer) reconcile() Effects {
	if !s.streams.Reconcile(s.State.ActiveRun) {
		return Effects{}
	}
	return s.State.Subscribed()
}
