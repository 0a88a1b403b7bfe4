package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/pulsewatch/config"
)

// validateCmd validates a config file without starting anything.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a PulseWatch configuration file without starting the server.

This command parses the YAML, expands environment variables, validates
all fields and expands grids into targets. It's useful for CI/CD pipelines
or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  pulsewatch validate -c config.yaml
  pulsewatch validate --config /etc/pulsewatch/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	s := cfg.Server
	stateFile := "none"
	if s.StateFile != "" {
		stateFile = s.StateFile
	}
	relay := "disabled"
	if s.NATS.URL != "" {
		relay = fmt.Sprintf("%s (subject %s)", s.NATS.URL, s.NATS.Subject)
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  Port:          %d\n", s.Port)
	fmt.Printf("  History:       %d statuses per service (%s)\n", s.History.Capacity, s.History.Strategy)
	fmt.Printf("  State file:    %s\n", stateFile)
	fmt.Printf("  NATS relay:    %s\n", relay)

	ch := cfg.Checker
	if ch == nil {
		fmt.Printf("  Checker:       not configured\n")
		return nil
	}

	// grid expansion can still fail on rendered URLs
	targets, err := config.BuildTargets(ch)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	direct := len(ch.Checks)

	fmt.Printf("  Checker API:   %s\n", ch.APIURL)
	fmt.Printf("  Interval:      %s\n", ch.Interval.Duration())
	fmt.Printf("  Targets:       %d direct + %d from grids = %d total\n",
		direct, len(targets)-direct, len(targets))

	return nil
}
