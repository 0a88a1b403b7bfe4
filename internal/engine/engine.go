package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jpalmerr/pulsewatch/internal/buffer"
	"github.com/jpalmerr/pulsewatch/service"
)

// DefaultQueueSize is the request queue buffer used when none is configured.
const DefaultQueueSize = 64

// Config controls how an [Engine] stores state.
type Config struct {
	// Capacity is the maximum history length per service.
	// Defaults to [buffer.DefaultCapacity].
	Capacity int

	// Strategy selects the history buffer implementation.
	// Defaults to [buffer.Sequence].
	Strategy buffer.Strategy

	// QueueSize is the request queue buffer. Callers block once it is full.
	// Defaults to [DefaultQueueSize].
	QueueSize int

	// SubscriberBuffer is the channel buffer given to each subscriber.
	// Defaults to [DefaultSubscriberBuffer].
	SubscriberBuffer int

	// Seed is loaded into the state before the worker starts. Seeded
	// services are not published on the notification bus.
	Seed []Record
}

// Engine is the single writer of pulsewatch state.
//
// One worker goroutine owns every service record. All reads and writes reach
// it as messages through a [Handle], so they are applied one at a time in
// queue order and no lock protects the state. After replying to an accepted
// mutation the worker publishes it to every subscriber.
//
// Use [New] to create an engine, [Engine.Start] to run it and [Engine.Stop]
// to shut it down. Start and Stop are safe for concurrent use.
type Engine struct {
	state    *state
	bus      *bus
	requests chan request
	done     chan struct{}
	logger   *slog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an [Engine] with cfg. The engine does not process requests
// until [Engine.Start] is called.
//
// Returns an error if the capacity or strategy is invalid or the seed
// contains duplicate names.
func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	if cfg.Capacity == 0 {
		cfg.Capacity = buffer.DefaultCapacity
	}
	if cfg.Capacity < 0 {
		return nil, fmt.Errorf("capacity must be positive, got %d", cfg.Capacity)
	}
	if cfg.Strategy == "" {
		cfg.Strategy = buffer.Sequence
	}
	// fail fast on a bad strategy instead of on the first create
	if _, err := buffer.New(cfg.Strategy, cfg.Capacity); err != nil {
		return nil, err
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = DefaultSubscriberBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}

	st := newState(cfg.Strategy, cfg.Capacity)
	if err := st.seed(cfg.Seed); err != nil {
		return nil, err
	}

	return &Engine{
		state:    st,
		bus:      newBus(cfg.SubscriberBuffer),
		requests: make(chan request, cfg.QueueSize),
		done:     make(chan struct{}),
		logger:   logger,
	}, nil
}

// Handle returns a [Handle] bound to this engine. Handles may be taken
// before Start; their calls block until the worker runs or fail with
// [service.ErrEngineUnavailable] once it has stopped.
func (e *Engine) Handle() Handle {
	return Handle{requests: e.requests, done: e.done}
}

// Start launches the worker goroutine and returns a [Handle] to it.
//
// The worker runs until ctx is cancelled or [Engine.Stop] is called.
// Start is idempotent; calls after the first, or after Stop, only return
// the handle.
func (e *Engine) Start(ctx context.Context) Handle {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started || e.stopped {
		return e.Handle()
	}
	e.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	// log before the worker owns the state
	e.logger.Info("engine started",
		"services", len(e.state.services),
		"capacity", e.state.capacity,
		"strategy", e.state.strategy.String(),
	)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run(runCtx)
	}()

	return e.Handle()
}

// Stop shuts the worker down and waits for it to exit. Subscriber channels
// are closed and later calls through any handle fail with
// [service.ErrEngineUnavailable]. Stop is idempotent and safe to call
// before Start.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.stopped {
		e.stopped = true
		if e.cancel != nil {
			e.cancel()
		}
		if !e.started {
			close(e.done)
		}
	}
	e.mu.Unlock()

	e.wg.Wait()
}

// Done returns a channel closed once the worker has exited.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// run is the worker loop. It blocks only while waiting for the next request.
func (e *Engine) run(ctx context.Context) {
	defer func() {
		close(e.done)
		e.bus.closeAll()
		e.logger.Info("engine stopped", "dropped_notifications", e.bus.dropped)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-e.requests:
			e.handle(req)
		}
	}
}

// handle applies one request. Replies are sent on a buffered channel, so an
// abandoned caller never blocks the worker; its reply is simply dropped.
func (e *Engine) handle(req request) {
	var resp response

	switch req.op {
	case opWrite:
		resp.err = e.state.apply(req.name, req.action)
	case opGetSpec:
		resp.spec, resp.err = e.state.spec(req.name)
	case opGetHistory:
		resp.history, resp.err = e.state.history(req.name)
	case opGetStatusNear:
		resp.status, resp.found, resp.err = e.state.nearest(req.name, req.at)
	case opList:
		resp.names = e.state.names()
	case opSnapshot:
		resp.records = e.state.snapshot()
	case opSubscribe:
		resp.sub = e.bus.subscribe()
		e.logger.Debug("subscriber added", "subscribers", e.bus.len())
	case opUnsubscribe:
		e.bus.unsubscribe(req.sub)
		e.logger.Debug("subscriber removed", "subscribers", e.bus.len())
	default:
		resp.err = fmt.Errorf("unknown engine request %d", req.op)
	}

	if req.reply != nil {
		req.reply <- resp
	}

	if req.op != opWrite {
		return
	}
	if resp.err != nil {
		if !errors.Is(resp.err, service.ErrNotFound) && !errors.Is(resp.err, service.ErrNameConflict) {
			e.logger.Warn("write rejected", "service", req.name, "action", string(req.action.Kind), "error", resp.err)
		}
		return
	}

	if missed := e.bus.publish(service.Notification{Service: req.name, Action: req.action}); missed > 0 {
		e.logger.Debug("notification dropped for slow subscribers",
			"service", req.name,
			"action", string(req.action.Kind),
			"missed", missed,
		)
	}
}
