// Package main implements formbridgectl, an operator CLI for the intake
// core module: registering intake definitions, inspecting submissions and
// their event logs, and triggering a single delivery or expiry pass without
// waiting on the worker process's poll loop.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"formbridge/contexts/intake-core/adapters/registryfile"
	"formbridge/contexts/intake-core/application/queries"
	"formbridge/contexts/intake-core/ports"
	"formbridge/internal/app/bootstrap"
)

var rootCmd = &cobra.Command{
	Use:   "formbridgectl",
	Short: "Operator tools for the FormBridge intake service",
	Long: `formbridgectl wires the same intake core module the API and worker
processes run against (same FORMBRIDGE_* configuration, same storage
backend) and exposes it as a set of one-shot administrative commands.`,
}

func main() {
	rootCmd.AddCommand(
		registerIntakeCmd(),
		listIntakesCmd(),
		getSubmissionCmd(),
		listEventsCmd(),
		exportEventsCmd(),
		eventStatsCmd(),
		runDeliveryCmd(),
		runExpiryCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "formbridgectl: %v\n", err)
		os.Exit(1)
	}
}

func registerIntakeCmd() *cobra.Command {
	var allowOverwrite bool
	cmd := &cobra.Command{
		Use:   "register-intake <file.yaml>",
		Short: "Register every intake definition in a YAML file with the configured registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			module, closer, err := bootstrap.BuildModule()
			if err != nil {
				return err
			}
			defer closer()

			if module.Registry == nil {
				return fmt.Errorf("intake registry is not wired for this storage backend")
			}
			return registryfile.LoadAndRegister(cmd.Context(), args[0], module.Registry, allowOverwrite)
		},
	}
	cmd.Flags().BoolVar(&allowOverwrite, "allow-overwrite", false, "replace an already-registered intake with the same id")
	return cmd
}

func listIntakesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-intakes",
		Short: "List every registered intake definition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			module, closer, err := bootstrap.BuildModule()
			if err != nil {
				return err
			}
			defer closer()

			if module.Registry == nil {
				return fmt.Errorf("intake registry is not wired for this storage backend")
			}
			intakes, err := module.Registry.ListIntakes(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(intakes)
		},
	}
}

func getSubmissionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get-submission <submission-id>",
		Short: "Print a submission's current state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			module, closer, err := bootstrap.BuildModule()
			if err != nil {
				return err
			}
			defer closer()

			sub, err := module.Handler.GetSubmission.Execute(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(sub)
		},
	}
}

func listEventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-events <submission-id>",
		Short: "List a submission's event log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			module, closer, err := bootstrap.BuildModule()
			if err != nil {
				return err
			}
			defer closer()

			events, err := module.Handler.ListEvents.Execute(cmd.Context(), args[0], ports.EventFilter{})
			if err != nil {
				return err
			}
			return printJSON(events)
		},
	}
}

func exportEventsCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export-events <submission-id>",
		Short: "Export a submission's event log as JSON or JSONL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			module, closer, err := bootstrap.BuildModule()
			if err != nil {
				return err
			}
			defer closer()

			body, _, err := module.Handler.ExportEvents.Execute(cmd.Context(), args[0], ports.EventFilter{}, queries.ExportFormat(format))
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(body)
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", "jsonl", "export format: json or jsonl")
	return cmd
}

func eventStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "event-stats",
		Short: "Summarize the event log across all submissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			module, closer, err := bootstrap.BuildModule()
			if err != nil {
				return err
			}
			defer closer()

			stats, err := module.Handler.ListEvents.Events.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
}

func runDeliveryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-delivery",
		Short: "Run one delivery engine pass immediately",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			module, closer, err := bootstrap.BuildModule()
			if err != nil {
				return err
			}
			defer closer()
			return module.DeliveryEngine.RunOnce(cmd.Context())
		},
	}
}

func runExpiryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-expiry",
		Short: "Run one expiry sweep pass immediately",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			module, closer, err := bootstrap.BuildModule()
			if err != nil {
				return err
			}
			defer closer()
			return module.ExpirySweeper.RunOnce(cmd.Context())
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
