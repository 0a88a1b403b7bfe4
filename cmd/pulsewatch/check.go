package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/pulsewatch/config"
	"github.com/jpalmerr/pulsewatch/internal/apiclient"
	"github.com/jpalmerr/pulsewatch/internal/checker"
)

// checkCmd runs the checker against a PulseWatch server.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Probe targets and report their statuses",
	Long: `Run the checker described by the config's checker section.

The checker registers every target with the server (creating or updating
its spec), then probes each target at its interval and posts the observed
status. A 2xx response is up, any other response or a transport error is
down. Failed posts are retried and then logged.

The checker runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  pulsewatch check -c config.yaml
  pulsewatch check -c config.yaml --api-url http://pulsewatch:8080`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	checkCmd.Flags().String("api-url", "", "server URL (overrides checker.api_url)")
	_ = checkCmd.MarkFlagRequired("config")
}

func runCheck(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Checker == nil {
		return errors.New("config has no checker section")
	}

	level, err := logLevel(cmd, cfg.Level())
	if err != nil {
		return err
	}
	logger := newLogger(level)

	targets, err := config.BuildTargets(cfg.Checker)
	if err != nil {
		return fmt.Errorf("failed to build targets: %w", err)
	}

	apiURL := cfg.Checker.APIURL
	if flag, _ := cmd.Flags().GetString("api-url"); flag != "" {
		apiURL = flag
	}
	client, err := apiclient.New(apiURL, apiclient.WithLogger(logger))
	if err != nil {
		return err
	}

	logger.Info("starting checker",
		"api_url", apiURL,
		"targets", len(targets),
		"interval", cfg.Checker.Interval.Duration().String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := checker.New(client, targets, cfg.Checker.Interval.Duration(), cfg.Checker.MaxConcurrency, logger)
	if err := runner.Run(ctx); err != nil {
		return err
	}
	logger.Info("checker stopped")
	return nil
}
