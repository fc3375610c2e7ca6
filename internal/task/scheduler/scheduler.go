package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"dchbot/internal/eventbus"
	rtsup "dchbot/internal/runtime/supervisor"
	"dchbot/internal/task/clock"
	"dchbot/internal/task/engine"
	logx "dchbot/pkg/logx"
)

const (
	DispatchInline = "inline"
	DispatchPool   = "pool"

	defaultPollInterval = time.Second
	defaultHistorySize  = 100
)

// Config controls the scheduling loop. The app layer maps config.scheduler
// into this struct.
type Config struct {
	// PollInterval bounds every wait of the loop.
	PollInterval time.Duration
	// DefaultTimeout applies to jobs without their own timeout. 0 means none.
	DefaultTimeout time.Duration
	HistorySize    int
	// Dispatch is DispatchInline (sequential, in the loop) or DispatchPool
	// (task engine workers).
	Dispatch string
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.HistorySize <= 0 {
		c.HistorySize = defaultHistorySize
	}
	switch strings.ToLower(strings.TrimSpace(c.Dispatch)) {
	case DispatchPool:
		c.Dispatch = DispatchPool
	default:
		c.Dispatch = DispatchInline
	}
	return c
}

// Executor runs dispatched jobs in pool mode. onDrop is called for tasks that
// were accepted but never ran.
type Executor interface {
	EnqueueWithDrop(t engine.Task, onDrop func()) error
}

type Option func(*Service)

func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithExecutor(e Executor) Option {
	return func(s *Service) { s.exec = e }
}

type Service struct {
	mu    sync.Mutex
	cfg   Config
	log   logx.Logger
	bus   eventbus.Bus
	clock clock.Clock
	exec  Executor

	jobs  map[string]*entry
	order []*entry
	gates map[string]*gate
	seq   uint64

	wake chan struct{}
	cur  *run

	hmu     sync.Mutex
	history []RunRecord

	skipMu       sync.Mutex
	lastSkipWarn map[string]time.Time
}

// entry is the scheduler's bookkeeping around a Job, guarded by Service.mu.
type entry struct {
	job     *Job
	gate    *gate
	seq     uint64
	running bool
	removed bool
}

// gate serializes executions of one job name. It is shared by an entry and
// any entry that replaces it while a run is still in flight.
type gate struct {
	// mu is held for the whole execution of the action.
	mu sync.Mutex
	// state refuses pool dispatch while a run of the name is queued or running.
	state engine.RunState
	// refs counts entries holding the gate; guarded by Service.mu.
	refs int
}

// run is the state of one Start..Stop cycle.
type run struct {
	stopCh chan struct{}
	ctx    context.Context // parent of every action context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	sup    *rtsup.Supervisor
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus, opts ...Option) *Service {
	s := &Service{
		cfg:          cfg.withDefaults(),
		log:          log.With(logx.String("comp", "scheduler")),
		bus:          bus,
		clock:        clock.Real{},
		jobs:         map[string]*entry{},
		gates:        map[string]*gate{},
		wake:         make(chan struct{}, 1),
		lastSkipWarn: map[string]time.Time{},
	}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	return s
}

// Apply swaps the loop settings. Jobs are untouched.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
	s.wakeLoop()
}

func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil
}

// Start launches the scheduling loop in the background. Calling Start on a
// running scheduler is a no-op.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cur != nil {
		s.mu.Unlock()
		return
	}
	execCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{
		stopCh: make(chan struct{}),
		ctx:    execCtx,
		cancel: cancel,
		sup:    rtsup.New(ctx, rtsup.WithLogger(s.log)),
	}
	s.cur = r
	cfg := s.cfg
	n := len(s.order)
	s.mu.Unlock()

	r.sup.GoRestart0("scheduler.loop", func(c context.Context) { s.loop(c, r) })
	s.log.Info("scheduler started",
		logx.Int("jobs", n),
		logx.String("dispatch", cfg.Dispatch),
		logx.Duration("poll", cfg.PollInterval),
	)
}

// Stop signals the loop and waits for it and every in-flight execution to
// finish. Once it returns nil no action runs anymore. If ctx ends first,
// in-flight actions have their context canceled and ctx.Err() is returned.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	r := s.cur
	if r == nil {
		s.mu.Unlock()
		return nil
	}
	s.cur = nil
	close(r.stopCh)
	s.mu.Unlock()

	idle := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(idle)
	}()

	err := r.sup.Stop(ctx)
	if ctx.Err() == nil {
		select {
		case <-idle:
		case <-ctx.Done():
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		r.cancel()
		s.log.Warn("scheduler stop timed out; in-flight jobs canceled", logx.Err(ctxErr))
		return ctxErr
	}
	r.cancel()
	if err != nil {
		s.log.Warn("scheduler loop exited with error", logx.Err(err))
	}
	s.log.Info("scheduler stopped")
	return nil
}

// Run starts the scheduler and blocks until ctx is done or Stop is called,
// then waits for in-flight executions.
func (s *Service) Run(ctx context.Context) error {
	s.Start(ctx)

	s.mu.Lock()
	r := s.cur
	s.mu.Unlock()
	if r == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		if err := s.Stop(context.WithoutCancel(ctx)); err != nil {
			return err
		}
		return ctx.Err()
	case <-r.stopCh:
		// Stopped elsewhere; that Stop call does the joining.
		return nil
	}
}

func (s *Service) gateLocked(name string) *gate {
	g := s.gates[name]
	if g == nil {
		g = &gate{}
		s.gates[name] = g
	}
	g.refs++
	return g
}

// idleLocked marks e as not running. A removed entry gives up its gate.
func (s *Service) idleLocked(e *entry) {
	e.running = false
	if !e.removed || e.gate == nil {
		return
	}
	e.gate.refs--
	if e.gate.refs <= 0 && s.gates[e.job.name] == e.gate {
		delete(s.gates, e.job.name)
	}
	e.gate = nil
}

func (s *Service) wakeLoop() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
