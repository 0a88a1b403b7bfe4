// Package pulsewatch provides an embeddable service status tracker: a
// single-writer state engine holding a bounded status history per service,
// served over an HTTP API with live notification streams and a dashboard.
//
// # Quick Start
//
// Start the server with graceful shutdown:
//
//	pw, _ := pulsewatch.New(pulsewatch.WithPort(8080))
//
//	// Set up graceful shutdown on SIGINT/SIGTERM
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	pw.Start(ctx) // blocks until context is cancelled
//
// Services are then registered and fed through the API, either directly or
// with the checker (`pulsewatch check`), which probes HTTP targets and posts
// their statuses.
//
// # Configuration
//
// PulseWatch uses the functional options pattern for configuration:
//
//	pw, err := pulsewatch.New(
//	    pulsewatch.WithPort(9090),
//	    pulsewatch.WithCapacity(100),
//	    pulsewatch.WithStrategy("time-indexed"),
//	    pulsewatch.WithStateFile("/var/lib/pulsewatch/state.json"),
//	    pulsewatch.WithNATS("nats://localhost:4222", "status.events"),
//	)
//
// # Architecture
//
// PulseWatch consists of several internal packages (under internal/):
//
//   - internal/buffer: Bounded status history with sequence and time-indexed strategies
//   - internal/engine: Single-writer state actor, copyable handle and notification bus
//   - internal/server: REST API, Server-Sent Events, WebSocket and dashboard
//   - internal/apiclient: Typed client for the REST API
//   - internal/poller: Concurrent HTTP probing with a worker pool
//   - internal/checker: Registers targets and forwards probe results to the API
//   - internal/snapshot: JSON state file load and save
//   - internal/relay: Notification forwarding to NATS
//   - dashboard: Embedded web UI assets
//
// The domain types shared by all layers live in package service.
package pulsewatch
