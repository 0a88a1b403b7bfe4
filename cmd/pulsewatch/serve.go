package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/pulsewatch"
	"github.com/jpalmerr/pulsewatch/config"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd starts the PulseWatch server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API and dashboard server",
	Long: `Start the PulseWatch server.

The server will:
  - Load configuration from the specified YAML file
  - Restore state from the state file, if configured
  - Serve the HTTP API and dashboard on the configured port
  - Relay notifications to NATS, if configured

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  pulsewatch serve -c config.yaml
  pulsewatch serve --config /etc/pulsewatch/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

// serverOptions converts the server section into SDK options.
func serverOptions(s config.ServerConfig) []pulsewatch.Option {
	opts := []pulsewatch.Option{
		pulsewatch.WithPort(s.Port),
		pulsewatch.WithCapacity(s.History.Capacity),
		pulsewatch.WithStrategy(s.History.Strategy),
		pulsewatch.WithVersion(version),
	}
	if s.Title != "" {
		opts = append(opts, pulsewatch.WithTitle(s.Title))
	}
	if s.QueueSize > 0 {
		opts = append(opts, pulsewatch.WithQueueSize(s.QueueSize))
	}
	if s.StateFile != "" {
		opts = append(opts, pulsewatch.WithStateFile(s.StateFile))
	}
	if s.NATS.URL != "" {
		opts = append(opts, pulsewatch.WithNATS(s.NATS.URL, s.NATS.Subject))
	}
	return opts
}

func runServe(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level, err := logLevel(cmd, cfg.Level())
	if err != nil {
		return err
	}
	logger := newLogger(level)

	logger.Info("starting server",
		"port", cfg.Server.Port,
		"capacity", cfg.Server.History.Capacity,
		"strategy", cfg.Server.History.Strategy,
	)

	opts := append(serverOptions(cfg.Server), pulsewatch.WithLogger(logger))
	pw, err := pulsewatch.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create PulseWatch: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start server - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- pw.Start(ctx)
	}()

	// wait for server to finish
	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
