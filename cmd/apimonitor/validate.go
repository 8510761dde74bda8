package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/apimonitor/config"
)

// validateCmd validates a config file without starting the monitor.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate an apimonitor configuration file without starting the monitor.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  apimonitor validate -c apimonitor.yaml`,
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

	logFile := cfg.LogFilePath()
	if logFile == "" {
		logFile = "(disabled)"
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Title:         %s\n", cfg.Title)
	fmt.Fprintf(out, "  Port:          %d\n", cfg.Port)
	fmt.Fprintf(out, "  Data dir:      %s\n", cfg.DataDir)
	fmt.Fprintf(out, "  Log file:      %s\n", logFile)
	fmt.Fprintf(out, "  URL:           %s\n", cfg.Settings.URL)
	fmt.Fprintf(out, "  Interval:      %s\n", cfg.Settings.Interval.Duration())
	fmt.Fprintf(out, "  History limit: %d\n", cfg.Settings.HistoryLimit)

	return nil
}
