package pulsewatch

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/jpalmerr/pulsewatch/internal/buffer"
	"github.com/jpalmerr/pulsewatch/service"
)

// pwConfig holds mutable state during PulseWatch construction.
type pwConfig struct {
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

// Option is a function that configures a [PulseWatch] instance during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*pwConfig) error

// WithPort sets the HTTP port for the API and dashboard.
//
// Defaults to 8080 if not specified.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *pwConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithTitle sets the dashboard title displayed in the browser tab and header.
//
// If not specified, defaults to "pulsewatch".
func WithTitle(title string) Option {
	return func(cfg *pwConfig) error {
		cfg.title = title
		return nil
	}
}

// WithVersion sets the version reported by GET /api/v1/info.
func WithVersion(version string) Option {
	return func(cfg *pwConfig) error {
		cfg.version = version
		return nil
	}
}

// WithCapacity sets how many statuses are kept per service. Defaults to 32.
//
// Returns an error if n is zero or negative.
func WithCapacity(n int) Option {
	return func(cfg *pwConfig) error {
		if n <= 0 {
			return errors.New("capacity must be positive")
		}
		cfg.capacity = n
		return nil
	}
}

// WithStrategy selects the history buffer strategy: "sequence" evicts the
// earliest inserted status, "time-indexed" evicts the earliest timestamp.
//
// Example:
//
//	pw, err := pulsewatch.New(
//	    pulsewatch.WithCapacity(100),
//	    pulsewatch.WithStrategy("time-indexed"),
//	)
func WithStrategy(name string) Option {
	return func(cfg *pwConfig) error {
		s, err := buffer.ParseStrategy(name)
		if err != nil {
			return err
		}
		cfg.strategy = s
		return nil
	}
}

// WithQueueSize bounds the engine's request queue. Defaults to 64.
//
// Returns an error if n is zero or negative.
func WithQueueSize(n int) Option {
	return func(cfg *pwConfig) error {
		if n <= 0 {
			return errors.New("queue size must be positive")
		}
		cfg.queueSize = n
		return nil
	}
}

// WithStateFile enables persistence: state is loaded from path at start and
// saved back on shutdown. A missing file starts with empty state.
func WithStateFile(path string) Option {
	return func(cfg *pwConfig) error {
		if strings.TrimSpace(path) == "" {
			return errors.New("state file path cannot be empty")
		}
		cfg.stateFile = path
		return nil
	}
}

// WithNATS relays every notification to a NATS server at url, on subjects
// under subject. An empty subject selects "pulsewatch.events".
func WithNATS(url, subject string) Option {
	return func(cfg *pwConfig) error {
		if url == "" {
			return errors.New("nats url cannot be empty")
		}
		cfg.natsURL = url
		cfg.natsSubject = subject
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the PulseWatch instance.
//
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *pwConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithNotificationCallback registers a function called for every accepted
// mutation.
//
// Multiple callbacks may be registered; they execute in registration order
// from a single goroutine, so they must not block. Panics are recovered and
// logged. Notifications are best effort: a callback that falls behind misses
// notifications rather than slowing the engine.
//
// Example:
//
//	pw, err := pulsewatch.New(
//	    pulsewatch.WithNotificationCallback(func(n service.Notification) {
//	        if n.Action.Kind == service.ActionAppendStatus && !n.Action.Status.Status.IsUp() {
//	            log.Printf("ALERT: %s is down!", n.Service)
//	        }
//	    }),
//	)
//
// Nil callbacks are silently ignored.
func WithNotificationCallback(cb func(service.Notification)) Option {
	return func(cfg *pwConfig) error {
		if cb == nil {
			return nil
		}
		cfg.callbacks = append(cfg.callbacks, cb)
		return nil
	}
}
