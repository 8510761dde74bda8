// Package main is the entry point for the apimonitor CLI.
//
// Usage:
//
//	apimonitor run -c apimonitor.yaml      # Poll the endpoint and serve the dashboard
//	apimonitor validate -c apimonitor.yaml # Validate configuration
//	apimonitor check <url>                 # Does the URL speak the status protocol?
//	apimonitor poll <url>                  # Run one polling cycle and print the result
//	apimonitor history --data-dir <dir>    # Print the persisted transition history
//	apimonitor version                     # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "apimonitor",
	Short: "Watch a status endpoint and show its health",
	Long: `apimonitor polls one HTTP status endpoint and shows its health on a
small web dashboard.

The endpoint answers with a result tag, optionally followed by a message:

  <r>success</r>
  <result>fail</result><message>database unreachable</message>

Quick start:
  1. Create a config file (apimonitor.yaml)
  2. Run: apimonitor run -c apimonitor.yaml
  3. Open http://localhost:8080 in your browser

Example config:
  port: 8080
  data_dir: /var/lib/apimonitor
  settings:
    url: https://status.example.com/api/status
    interval: 60s`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
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
	Long:  `Print the version, commit hash, and build date of this apimonitor binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "apimonitor %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
