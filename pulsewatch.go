package pulsewatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/pulsewatch/dashboard"
	"github.com/jpalmerr/pulsewatch/internal/buffer"
	"github.com/jpalmerr/pulsewatch/internal/engine"
	"github.com/jpalmerr/pulsewatch/internal/relay"
	"github.com/jpalmerr/pulsewatch/internal/server"
	"github.com/jpalmerr/pulsewatch/internal/snapshot"
	"github.com/jpalmerr/pulsewatch/service"
)

const (
	defaultPort = 8080

	// snapshotTimeout bounds the final state read on shutdown.
	snapshotTimeout = 5 * time.Second
)

// PulseWatch is the main orchestrator: it owns the state engine and serves
// the HTTP API and dashboard on top of it.
//
// The typical lifecycle is:
//
//	pw, err := pulsewatch.New(pulsewatch.WithPort(8080))
//	if err != nil {
//	    slog.Error("failed to create pulsewatch", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	pw.Start(ctx) // blocks until context cancelled
//
// The caller controls the lifecycle via the context. Cancel the context to
// trigger graceful shutdown.
type PulseWatch struct {
	port        int
	title       string
	version     string
	capacity    int
	strategy    buffer.Strategy
	queueSize   int
	stateFile   string
	natsURL     string
	natsSubject string
	logger      *slog.Logger
	callbacks   []func(service.Notification)
}

// New creates a new [PulseWatch] instance with the given options.
//
// Options have sensible defaults:
//   - Port: 8080
//   - Capacity: 32 statuses per service
//   - Strategy: sequence
//
// Returns an error if any option is invalid.
func New(opts ...Option) (*PulseWatch, error) {
	cfg := &pwConfig{
		port:        defaultPort,
		capacity:    buffer.DefaultCapacity,
		strategy:    buffer.Sequence,
		queueSize:   engine.DefaultQueueSize,
		natsSubject: relay.DefaultSubject,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.natsSubject == "" {
		cfg.natsSubject = relay.DefaultSubject
	}

	// default to slog.Default() if no logger provided
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &PulseWatch{
		port:        cfg.port,
		title:       cfg.title,
		version:     cfg.version,
		capacity:    cfg.capacity,
		strategy:    cfg.strategy,
		queueSize:   cfg.queueSize,
		stateFile:   cfg.stateFile,
		natsURL:     cfg.natsURL,
		natsSubject: cfg.natsSubject,
		logger:      logger,
		callbacks:   cfg.callbacks,
	}, nil
}

// Start runs the engine and serves the API and dashboard.
//
// Start is a blocking call that runs until the provided context is cancelled.
// During execution:
//
//   - State is restored from the state file, if one is configured
//   - The HTTP server starts on the configured port
//   - Notifications are relayed to NATS and passed to callbacks
//
// On cancellation the HTTP server drains its in-flight requests, then the
// state file is written before the engine stops.
//
// Returns nil on graceful shutdown. Returns an error if the state file cannot
// be read, NATS cannot be reached or the HTTP server fails to start.
func (pw *PulseWatch) Start(ctx context.Context) error {
	// check if context already cancelled
	if ctx.Err() != nil {
		return nil
	}

	var seed []engine.Record
	if pw.stateFile != "" {
		records, err := snapshot.Load(pw.stateFile)
		if err != nil {
			return fmt.Errorf("failed to restore state: %w", err)
		}
		seed = records
		pw.logger.Info("state restored", "path", pw.stateFile, "services", len(seed))
	}

	eng, err := engine.New(engine.Config{
		Capacity:  pw.capacity,
		Strategy:  pw.strategy,
		QueueSize: pw.queueSize,
		Seed:      seed,
	}, pw.logger)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	// the engine outlives ctx so the final snapshot can still be read
	h := eng.Start(context.WithoutCancel(ctx))

	// consumers exit when the engine closes their channels on Stop
	var wg sync.WaitGroup
	var closers []func()
	cleanup := func() {
		eng.Stop()
		wg.Wait()
		for _, c := range closers {
			c()
		}
	}

	if len(pw.callbacks) > 0 {
		ch, err := h.Subscribe(ctx)
		if err != nil {
			cleanup()
			return fmt.Errorf("failed to subscribe callbacks: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range ch {
				for _, cb := range pw.callbacks {
					invokeCallbackSafe(cb, n, pw.logger)
				}
			}
		}()
	}

	if pw.natsURL != "" {
		nc, err := relay.Connect(pw.natsURL, pw.logger)
		if err != nil {
			cleanup()
			return err
		}
		closers = append(closers, func() {
			if err := nc.Drain(); err != nil {
				pw.logger.Warn("nats drain failed", "error", err)
			}
		})

		ch, err := h.Subscribe(ctx)
		if err != nil {
			cleanup()
			return fmt.Errorf("failed to subscribe relay: %w", err)
		}
		r := relay.New(nc, pw.natsSubject, pw.logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			// the channel closes on engine stop; a background context keeps
			// notifications flowing until then
			r.Run(context.Background(), ch)
		}()
		pw.logger.Info("relaying notifications", "url", pw.natsURL, "subject", pw.natsSubject)
	}

	httpServer := server.NewServer(h, server.Config{
		Port:     pw.port,
		Title:    pw.title,
		Version:  pw.version,
		Capacity: pw.capacity,
		Strategy: pw.strategy.String(),
	}, dashboard.Assets, pw.logger)
	if err := httpServer.Start(ctx); err != nil {
		cleanup()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	pw.logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", pw.port))

	<-ctx.Done()

	// writes accepted while the server drains must reach the state file
	<-httpServer.Done()

	if pw.stateFile != "" {
		pw.saveState(h)
	}
	cleanup()
	pw.logger.Info("pulsewatch stopped")
	return nil
}

// saveState writes the engine's current state to the state file. Failures
// are logged; shutdown continues.
func (pw *PulseWatch) saveState(h engine.Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	records, err := h.Snapshot(ctx)
	if err != nil {
		pw.logger.Error("failed to read state for snapshot", "error", err)
		return
	}
	if err := snapshot.Save(pw.stateFile, records); err != nil {
		pw.logger.Error("failed to save state", "path", pw.stateFile, "error", err)
		return
	}
	pw.logger.Info("state saved", "path", pw.stateFile, "services", len(records))
}

// Port returns the configured HTTP port.
func (pw *PulseWatch) Port() int {
	return pw.port
}

// Capacity returns the number of statuses kept per service.
func (pw *PulseWatch) Capacity() int {
	return pw.capacity
}

// Strategy returns the name of the history buffer strategy.
func (pw *PulseWatch) Strategy() string {
	return pw.strategy.String()
}

// invokeCallbackSafe calls a notification callback with panic recovery.
// Panics are logged under a correlation ID and do not propagate.
func invokeCallbackSafe(cb func(service.Notification), n service.Notification, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("notification callback panicked",
				"correlation_id", uuid.NewString(),
				"panic", r,
				"service", n.Service,
			)
		}
	}()
	cb(n)
}
