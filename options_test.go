package pulsewatch

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/jpalmerr/pulsewatch/service"
)

func TestNew_Defaults(t *testing.T) {
	pw, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if pw.Port() != 8080 {
		t.Errorf("Port() = %d, want 8080", pw.Port())
	}
	if pw.Capacity() != 32 {
		t.Errorf("Capacity() = %d, want 32", pw.Capacity())
	}
	if pw.Strategy() != "sequence" {
		t.Errorf("Strategy() = %q, want sequence", pw.Strategy())
	}
	if pw.logger != slog.Default() {
		t.Error("logger should default to slog.Default()")
	}
	if pw.natsSubject != "pulsewatch.events" {
		t.Errorf("natsSubject = %q, want pulsewatch.events", pw.natsSubject)
	}
}

func TestNew_AllOptions(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	pw, err := New(
		WithPort(9090),
		WithTitle("Platform"),
		WithVersion("1.2.3"),
		WithCapacity(100),
		WithStrategy("time-indexed"),
		WithQueueSize(16),
		WithStateFile("/tmp/state.json"),
		WithNATS("nats://localhost:4222", "status"),
		WithLogger(logger),
		WithNotificationCallback(func(service.Notification) {}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if pw.Port() != 9090 || pw.title != "Platform" || pw.version != "1.2.3" {
		t.Errorf("unexpected server settings: port=%d title=%q version=%q", pw.Port(), pw.title, pw.version)
	}
	if pw.Capacity() != 100 || pw.Strategy() != "time-indexed" || pw.queueSize != 16 {
		t.Errorf("unexpected engine settings: capacity=%d strategy=%q queue=%d", pw.Capacity(), pw.Strategy(), pw.queueSize)
	}
	if pw.stateFile != "/tmp/state.json" {
		t.Errorf("stateFile = %q", pw.stateFile)
	}
	if pw.natsURL != "nats://localhost:4222" || pw.natsSubject != "status" {
		t.Errorf("nats = %q %q", pw.natsURL, pw.natsSubject)
	}
	if pw.logger != logger {
		t.Error("logger not applied")
	}
	if len(pw.callbacks) != 1 {
		t.Errorf("len(callbacks) = %d, want 1", len(pw.callbacks))
	}
}

func TestNew_NATSEmptySubjectUsesDefault(t *testing.T) {
	pw, err := New(WithNATS("nats://localhost:4222", ""))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if pw.natsSubject != "pulsewatch.events" {
		t.Errorf("natsSubject = %q, want pulsewatch.events", pw.natsSubject)
	}
}

func TestNew_NilCallbackIgnored(t *testing.T) {
	pw, err := New(WithNotificationCallback(nil))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if len(pw.callbacks) != 0 {
		t.Errorf("len(callbacks) = %d, want 0", len(pw.callbacks))
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	tests := []struct {
		name    string
		opt     Option
		wantErr string
	}{
		{"port zero", WithPort(0), "port must be between 1 and 65535"},
		{"port too high", WithPort(70000), "port must be between 1 and 65535"},
		{"capacity zero", WithCapacity(0), "capacity must be positive"},
		{"capacity negative", WithCapacity(-5), "capacity must be positive"},
		{"unknown strategy", WithStrategy("lifo"), "unknown buffer strategy"},
		{"queue zero", WithQueueSize(0), "queue size must be positive"},
		{"empty state file", WithStateFile("  "), "state file path cannot be empty"},
		{"empty nats url", WithNATS("", "x"), "nats url cannot be empty"},
		{"nil logger", WithLogger(nil), "logger cannot be nil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opt)
			if err == nil {
				t.Fatal("New() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("New() error = %q, want to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestWithStrategy_Aliases(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"sequence", "sequence"},
		{"seq", "sequence"},
		{"", "sequence"},
		{"time-indexed", "time-indexed"},
		{"TIME", "time-indexed"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			pw, err := New(WithStrategy(tt.input))
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if pw.Strategy() != tt.want {
				t.Errorf("Strategy() = %q, want %q", pw.Strategy(), tt.want)
			}
		})
	}
}
