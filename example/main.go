// Command example runs a self-contained demo: a pulsewatch server, a mock
// health server and a checker probing it, all in one process.
//
// Usage:
//
//	go run ./example
//
// Or run the pieces separately with the CLI:
//
//	go run ./cmd/pulsewatch serve -c example/config.yaml
//	go run ./cmd/pulsewatch check -c example/config.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/pulsewatch"
	"github.com/jpalmerr/pulsewatch/config"
	"github.com/jpalmerr/pulsewatch/internal/apiclient"
	"github.com/jpalmerr/pulsewatch/internal/checker"
	"github.com/jpalmerr/pulsewatch/service"
)

const (
	mockAddr = ":9999"
	apiPort  = 8080
)

// demoChecker is the checker section the demo probes with: a grid of four
// mock targets plus one external endpoint on its own interval.
const demoChecker = `
checker:
  api_url: http://localhost:8080
  interval: 5s
  timeout: 2s
  checks:
    - name: github
      description: GitHub API
      group: external
      url: https://api.github.com
      interval: 30s
  grids:
    - name: api
      description: API
      group: mock
      url_template: "http://localhost:9999/health?svc={{.svc}}&env={{.env}}"
      dimensions:
        svc: [users, orders]
        env: [prod, staging]
`

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mock := &http.Server{Addr: mockAddr, Handler: NewMockHealthServer(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := mock.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("mock server error", "error", err)
		}
	}()
	defer mock.Close()

	pw, err := pulsewatch.New(
		pulsewatch.WithPort(apiPort),
		pulsewatch.WithTitle("pulsewatch demo"),
		pulsewatch.WithLogger(logger),
		pulsewatch.WithNotificationCallback(func(n service.Notification) {
			if n.Action.Kind == service.ActionAppendStatus && !n.Action.Status.Status.IsUp() {
				logger.Warn("service unhealthy", "service", n.Service, "status", n.Action.Status.Status.String())
			}
		}),
	)
	if err != nil {
		logger.Error("failed to create pulsewatch", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Parse([]byte(demoChecker))
	if err != nil {
		logger.Error("invalid demo config", "error", err)
		os.Exit(1)
	}
	targets, err := config.BuildTargets(cfg.Checker)
	if err != nil {
		logger.Error("failed to build targets", "error", err)
		os.Exit(1)
	}
	client, err := apiclient.New(cfg.Checker.APIURL, apiclient.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create api client", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  pulsewatch demo")
	fmt.Println()
	fmt.Printf("  Open http://localhost:%d in your browser\n", apiPort)
	fmt.Printf("  Targets: %d (4 mock via grid, 1 external)\n", len(targets))
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- pw.Start(ctx)
	}()

	// wait for the API before registering targets
	for i := 0; i < 50; i++ {
		if _, err := client.Info(ctx); err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	runner := checker.New(client, targets, cfg.Checker.Interval.Duration(), cfg.Checker.MaxConcurrency, logger)
	go func() {
		if err := runner.Run(ctx); err != nil {
			logger.Error("checker error", "error", err)
			stop()
		}
	}()

	if err := <-serverErr; err != nil {
		logger.Error("pulsewatch error", "error", err)
		os.Exit(1)
	}
}
