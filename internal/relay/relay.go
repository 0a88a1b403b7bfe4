// Package relay forwards pulsewatch notifications to NATS.
//
// Each accepted mutation is published as JSON to "<subject>.<service>", so
// external consumers can follow one service ("pulsewatch.events.api") or all
// of them ("pulsewatch.events.>"). The relay is a plain bus subscriber: it
// inherits the bus's best-effort delivery and never slows the engine.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/nats-io/nats.go"

	"github.com/jpalmerr/pulsewatch/service"
)

// DefaultSubject is the subject prefix used when none is configured.
const DefaultSubject = "pulsewatch.events"

// Publisher is the subset of *nats.Conn the relay uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Event is the JSON payload published for each notification.
type Event struct {
	Service   string         `json:"service"`
	Action    service.Action `json:"action"`
	RelayedAt time.Time      `json:"relayed_at"`
}

// Relay publishes notifications to NATS subjects under a prefix.
type Relay struct {
	pub    Publisher
	prefix string
	logger *slog.Logger
}

// New creates a [Relay] publishing through pub under prefix.
// An empty prefix selects [DefaultSubject].
func New(pub Publisher, prefix string, logger *slog.Logger) *Relay {
	if prefix == "" {
		prefix = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		pub:    pub,
		prefix: strings.TrimSuffix(prefix, "."),
		logger: logger,
	}
}

// Connect dials the NATS server at url with reconnect handlers that log
// through logger.
func Connect(url string, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := nats.Connect(url,
		nats.Name("pulsewatch"),
		nats.MaxReconnects(-1),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Warn("nats error", "error", err)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// Subject returns the subject a notification for name is published on.
func (r *Relay) Subject(name string) string {
	return r.prefix + "." + subjectToken(name)
}

// Run publishes every notification received on ch until ch is closed or ctx
// is cancelled. Publish failures are logged and skipped.
func (r *Relay) Run(ctx context.Context, ch <-chan service.Notification) {
	for {
		select {
		case n, ok := <-ch:
			if !ok {
				return
			}
			if err := r.publish(n); err != nil {
				r.logger.Warn("relay publish failed", "service", n.Service, "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (r *Relay) publish(n service.Notification) error {
	data, err := json.Marshal(Event{
		Service:   n.Service,
		Action:    n.Action,
		RelayedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return r.pub.Publish(r.Subject(n.Service), data)
}

// subjectToken turns a service name into one NATS subject token. Separators,
// wildcards and whitespace become '_'.
func subjectToken(name string) string {
	if name == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == '.', r == '*', r == '>':
			return '_'
		case unicode.IsSpace(r):
			return '_'
		default:
			return r
		}
	}, name)
}
