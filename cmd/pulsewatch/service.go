package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/pulsewatch/config"
	"github.com/jpalmerr/pulsewatch/internal/apiclient"
	"github.com/jpalmerr/pulsewatch/service"
)

// serviceCmd groups the commands that talk to a running server.
var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Inspect and edit services on a running server",
	Long: `Inspect and edit services through the HTTP API of a running server.

Specs are written in the form <description>[@<url>][#<group>], for example
"Public API@https://api.example.com#edge".

Statuses are written as up[:<latency>], down[:<reason>] or
unknown[:<reason>], for example "up:12ms" or "down:connection refused".

Example:
  pulsewatch service create api "Public API@https://api.example.com#edge"
  pulsewatch service append api down:timeout
  pulsewatch service history api --api-url http://pulsewatch:8080`,
}

var serviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List service names",
	Args:  cobra.NoArgs,
	RunE: withClient(func(ctx context.Context, cmd *cobra.Command, c *apiclient.Client, args []string) error {
		names, err := c.ListServices(ctx)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	}),
}

var serviceCreateCmd = &cobra.Command{
	Use:   "create NAME SPEC",
	Short: "Create a service",
	Args:  cobra.ExactArgs(2),
	RunE: withClient(func(ctx context.Context, cmd *cobra.Command, c *apiclient.Client, args []string) error {
		spec, err := service.ParseSpec(args[1])
		if err != nil {
			return err
		}
		if err := c.CreateService(ctx, args[0], spec); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", args[0])
		return nil
	}),
}

var serviceUpdateCmd = &cobra.Command{
	Use:   "update NAME SPEC",
	Short: "Replace a service's spec",
	Args:  cobra.ExactArgs(2),
	RunE: withClient(func(ctx context.Context, cmd *cobra.Command, c *apiclient.Client, args []string) error {
		spec, err := service.ParseSpec(args[1])
		if err != nil {
			return err
		}
		if err := c.UpdateSpec(ctx, args[0], spec); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", args[0])
		return nil
	}),
}

var serviceDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a service and its history",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(ctx context.Context, cmd *cobra.Command, c *apiclient.Client, args []string) error {
		if err := c.DeleteService(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	}),
}

var serviceSpecCmd = &cobra.Command{
	Use:   "spec NAME",
	Short: "Print a service's spec",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(ctx context.Context, cmd *cobra.Command, c *apiclient.Client, args []string) error {
		spec, err := c.GetSpec(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), spec.String())
		return nil
	}),
}

var serviceHistoryCmd = &cobra.Command{
	Use:   "history NAME",
	Short: "Print a service's status history, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(ctx context.Context, cmd *cobra.Command, c *apiclient.Client, args []string) error {
		history, err := c.GetHistory(ctx, args[0])
		if err != nil {
			return err
		}
		for _, ts := range history {
			printStatus(cmd, ts)
		}
		return nil
	}),
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status NAME",
	Short: "Print the status nearest to a time (default now)",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(ctx context.Context, cmd *cobra.Command, c *apiclient.Client, args []string) error {
		at, err := atFlag(cmd)
		if err != nil {
			return err
		}
		ts, found, err := c.GetStatusNear(ctx, args[0], at)
		if err != nil {
			return err
		}
		if !found {
			fmt.Fprintf(cmd.OutOrStdout(), "%s has no statuses\n", args[0])
			return nil
		}
		printStatus(cmd, ts)
		return nil
	}),
}

var serviceAppendCmd = &cobra.Command{
	Use:   "append NAME STATUS",
	Short: "Append a status to a service's history",
	Args:  cobra.ExactArgs(2),
	RunE: withClient(func(ctx context.Context, cmd *cobra.Command, c *apiclient.Client, args []string) error {
		status, err := parseStatus(args[1])
		if err != nil {
			return err
		}
		at, err := atFlag(cmd)
		if err != nil {
			return err
		}
		if err := c.AppendStatus(ctx, args[0], service.At(at, status)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "appended %s to %s\n", status, args[0])
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(serviceCmd)

	serviceCmd.PersistentFlags().String("api-url", config.DefaultAPIURL, "server URL")
	serviceCmd.PersistentFlags().Duration("timeout", 10*time.Second, "request timeout")

	serviceStatusCmd.Flags().String("at", "", "RFC3339 time to look up (default now)")
	serviceAppendCmd.Flags().String("at", "", "RFC3339 observation time (default now)")

	serviceCmd.AddCommand(
		serviceListCmd,
		serviceCreateCmd,
		serviceUpdateCmd,
		serviceDeleteCmd,
		serviceSpecCmd,
		serviceHistoryCmd,
		serviceStatusCmd,
		serviceAppendCmd,
	)
}

// clientFunc is a service subcommand body with its client ready.
type clientFunc func(ctx context.Context, cmd *cobra.Command, c *apiclient.Client, args []string) error

// withClient builds the API client from the shared flags and runs fn under
// the request timeout.
func withClient(fn clientFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		apiURL, _ := cmd.Flags().GetString("api-url")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		level, err := logLevel(cmd, 0)
		if err != nil {
			return err
		}
		client, err := apiclient.New(apiURL, apiclient.WithLogger(newLogger(level)))
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		return fn(ctx, cmd, client, args)
	}
}

// atFlag parses the --at flag, defaulting to now.
func atFlag(cmd *cobra.Command) (time.Time, error) {
	raw, _ := cmd.Flags().GetString("at")
	if raw == "" {
		return time.Now().UTC(), nil
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at: %w", err)
	}
	return at, nil
}

// parseStatus reads "up[:latency]", "down[:reason]" or "unknown[:reason]".
func parseStatus(s string) (service.Status, error) {
	kind, detail, _ := strings.Cut(s, ":")
	switch strings.ToLower(kind) {
	case "up":
		if detail == "" {
			return service.Up(0), nil
		}
		latency, err := time.ParseDuration(detail)
		if err != nil {
			return service.Status{}, fmt.Errorf("invalid latency %q: %w", detail, err)
		}
		if latency < 0 {
			return service.Status{}, errors.New("latency cannot be negative")
		}
		return service.Up(latency), nil
	case "down":
		return service.Down(detail), nil
	case "unknown":
		return service.Unknown(detail), nil
	default:
		return service.Status{}, fmt.Errorf("invalid status %q (expected up, down or unknown)", s)
	}
}

func printStatus(cmd *cobra.Command, ts service.TimedStatus) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", ts.Time.Format(time.RFC3339Nano), ts.Status)
}
