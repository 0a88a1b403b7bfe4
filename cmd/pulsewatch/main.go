// Package main is the entry point for the pulsewatch CLI.
//
// PulseWatch can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	pulsewatch serve -c config.yaml    # Start the API and dashboard
//	pulsewatch check -c config.yaml    # Probe targets and report statuses
//	pulsewatch validate -c config.yaml # Validate configuration
//	pulsewatch service list            # Inspect or edit services over the API
//	pulsewatch version                 # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "pulsewatch",
	Short: "A service status tracker",
	Long: `PulseWatch tracks the health of named services.

The server keeps a bounded history of timestamped statuses per service and
serves it over an HTTP API, with live updates over Server-Sent Events and
WebSocket and a web dashboard. The checker probes HTTP targets and reports
their statuses to the server.

Quick start:
  1. Create a config file (pulsewatch.yaml)
  2. Run: pulsewatch serve -c pulsewatch.yaml
  3. Run: pulsewatch check -c pulsewatch.yaml
  4. Open http://localhost:8080 in your browser

Example config:
  server:
    port: 8080
  checker:
    interval: 10s
    checks:
      - name: github
        description: GitHub API
        url: https://api.github.com`,
	SilenceUsage: true,
	// No Run/RunE means this just shows help when called without subcommands
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this pulsewatch binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "pulsewatch %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error (overrides config)")

	// Register subcommands with root
	rootCmd.AddCommand(versionCmd)
}

// newLogger creates a JSON logger for CLI use.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// logLevel resolves the log level: the --log-level flag wins over the
// config value, which defaults to info.
func logLevel(cmd *cobra.Command, fromConfig slog.Level) (slog.Level, error) {
	flag, _ := cmd.Flags().GetString("log-level")
	if flag == "" {
		return fromConfig, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(flag)); err != nil {
		return 0, fmt.Errorf("invalid --log-level: %w", err)
	}
	return level, nil
}
