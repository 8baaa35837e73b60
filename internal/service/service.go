// Package service runs the console: one goroutine owns the run projection,
// control verbs post work to it, and listeners are told when it changes.
package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ShawnNotFound/20251115GreatAgent/internal/adapter/controller"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/domain"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/policy"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/repository"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/runsync"
)

// Controller is the request/response surface of the run controller.
type Controller interface {
	StartRun(ctx context.Context, req *domain.StartRunRequest) (*domain.StartRunResponse, error)
	PauseRun(ctx context.Context, runID string) error
	ResumeRun(ctx context.Context, runID string) error
	StopRun(ctx context.Context, runID string) error
	SubmitSelection(ctx context.Context, req *domain.SelectionRequest) error
	GetWorkflowPlan(ctx context.Context) ([]string, error)
	SaveWorkflowPlan(ctx context.Context, steps []string) ([]string, error)
	GetGraph(ctx context.Context) (*domain.GraphBlueprint, error)
	SaveGraph(ctx context.Context, graph *domain.GraphBlueprint) (*domain.GraphBlueprint, error)
	GetAgentSettings(ctx context.Context) (domain.AgentSettings, error)
	SaveAgentSettings(ctx context.Context, agents domain.AgentSettings) (domain.AgentSettings, error)
	ListTraces(ctx context.Context, limit int) ([]domain.TraceSummary, error)
}

var _ Controller = (*controller.Client)(nil)

// Options tunes the service.
type Options struct {
	LogCapacity  int
	NoticeTTL    time.Duration
	TraceLimit   int
	DefaultQuery string
	Now          func() time.Time
}

func (o Options) withDefaults() Options {
	if o.LogCapacity <= 0 {
		o.LogCapacity = runsync.DefaultLogCapacity
	}
	if o.NoticeTTL <= 0 {
		o.NoticeTTL = 4 * time.Second
	}
	if o.TraceLimit <= 0 {
		o.TraceLimit = 5
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type runMeta struct {
	id        string
	query     string
	mode      domain.RunMode
	startedAt time.Time
	archived  bool
}

// Service owns the console state. Everything below the loop-owned marker is
// touched only by the goroutine running Run.
type Service struct {
	controller Controller
	store      repository.Store
	policy     *policy.Engine
	logger     *zap.Logger
	opts       Options

	ops     chan func()
	stream  chan runsync.StreamMessage
	stopped chan struct{}

	// loop-owned
	syncer         *runsync.Synchronizer
	query          string
	starting       bool
	current        *runMeta
	plan           []string
	planLoaded     bool
	settings       domain.AgentSettings
	settingsLoaded bool
	traces         []domain.TraceSummary
	notice         *domain.Notice
	version        uint64

	mu           sync.Mutex
	listeners    map[int]chan struct{}
	nextListener int
}

// New creates a service. store may be nil, which disables the run archive.
func New(ctrl Controller, sub runsync.Subscriber, store repository.Store, engine *policy.Engine, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()

	stream := make(chan runsync.StreamMessage, 64)
	state := runsync.NewState(opts.LogCapacity)
	state.SetClock(opts.Now)

	return &Service{
		controller: ctrl,
		store:      store,
		policy:     engine,
		logger:     logger.Named("service"),
		opts:       opts,
		ops:        make(chan func()),
		stream:     stream,
		stopped:    make(chan struct{}),
		syncer:     runsync.NewSynchronizer(state, sub, stream, logger),
		query:      opts.DefaultQuery,
		settings:   domain.AgentSettings{},
		traces:     []domain.TraceSummary{},
		listeners:  make(map[int]chan struct{}),
	}
}

// Run processes verbs and stream messages until ctx is cancelled. It must be
// called exactly once.
func (s *Service) Run(ctx context.Context) error {
	defer close(s.stopped)
	defer s.syncer.Streams().Close()

	s.logger.Info("console loop started")
	for {
		select {
		case fn := <-s.ops:
			fn()
		case msg := <-s.stream:
			fx := s.syncer.Deliver(msg)
			s.afterEffects(fx)
			if !fx.Ignored {
				s.changed()
			}
		case <-ctx.Done():
			s.logger.Info("console loop stopped")
			return nil
		}
	}
}

// Done is closed once Run has returned.
func (s *Service) Done() <-chan struct{} { return s.stopped }

// do runs fn on the loop goroutine and waits for it. Never call it from
// inside another op.
func (s *Service) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	op := func() {
		defer close(done)
		fn()
	}
	select {
	case s.ops <- op:
	case <-s.stopped:
		return ErrServiceStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return nil
}

// update is do followed by a change notification.
func (s *Service) update(ctx context.Context, fn func()) error {
	return s.do(ctx, func() {
		fn()
		s.changed()
	})
}

// Subscribe returns a channel that receives a signal after every state
// change. Signals coalesce, so a slow reader sees the latest state on its
// next Snapshot.
func (s *Service) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Service) changed() {
	s.version++
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.listeners {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Service) now() time.Time { return s.opts.Now() }

func (s *Service) setNotice(text string) {
	s.notice = &domain.Notice{Text: text, ExpiresAt: s.now().Add(s.opts.NoticeTTL)}
}

// afterEffects schedules the follow-up work a state change asked for. It runs
// on the loop goroutine.
func (s *Service) afterEffects(fx runsync.Effects) {
	if fx.RefreshTraces || fx.PhaseChanged {
		go s.refreshTracesQuietly()
	}
	if fx.Terminal {
		s.archive()
	}
}

func (s *Service) refreshTracesQuietly() {
	if err := s.RefreshTraces(context.Background()); err != nil && err != ErrServiceStopped {
		s.logger.Warn("trace refresh failed", zap.Error(err))
	}
}
