package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/apimonitor/internal/logging"
	"github.com/jpalmerr/apimonitor/internal/poller"
	"github.com/jpalmerr/apimonitor/internal/status"
	"github.com/jpalmerr/apimonitor/internal/validator"
)

// errCheckFailed makes the process exit non-zero without repeating output.
var errCheckFailed = errors.New("check failed")

// checkCmd performs the settings-view URL validation once.
var checkCmd = &cobra.Command{
	Use:   "check <url>",
	Short: "Check that a URL speaks the status protocol",
	Long: `Send one GET request and report whether the URL is usable: it must
answer HTTP 200 with a body containing a <r> or <result> tag.

A URL without a scheme is tried as http://.

Example:
  apimonitor check https://status.example.com/api/status`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

// pollCmd runs a single polling cycle with retries.
var pollCmd = &cobra.Command{
	Use:   "poll <url>",
	Short: "Run one polling cycle and print the result",
	Long: `Run one polling cycle against the URL, with the same retries the
monitor uses, and print the parsed result.

Exit codes:
  0 - The endpoint reported success
  1 - Any other result

Example:
  apimonitor poll https://status.example.com/api/status
  apimonitor poll --attempts 1 --timeout 2s localhost:8081/status`,
	Args: cobra.ExactArgs(1),
	RunE: runPoll,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(pollCmd)

	checkCmd.Flags().Duration("timeout", validator.DefaultTimeout, "request timeout")

	pollCmd.Flags().Int("attempts", poller.DefaultPolicy.MaxAttempts, "maximum fetch attempts")
	pollCmd.Flags().Duration("backoff", poller.DefaultPolicy.Backoff, "wait between failed attempts")
	pollCmd.Flags().Duration("timeout", poller.DefaultPolicy.Timeout, "timeout per attempt")
	pollCmd.Flags().Bool("verbose", false, "log every attempt to stderr")
}

func runCheck(cmd *cobra.Command, args []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")

	client := poller.NewClient()
	defer client.Close()

	v := validator.New(client, nil, validator.WithTimeout(timeout), validator.WithLogger(discardLogger()))
	defer v.Close()

	out := cmd.OutOrStdout()
	if !v.Check(cmd.Context(), args[0]) {
		fmt.Fprintf(out, "%s: invalid\n", args[0])
		return errCheckFailed
	}
	fmt.Fprintf(out, "%s: valid\n", args[0])
	return nil
}

func runPoll(cmd *cobra.Command, args []string) error {
	attempts, _ := cmd.Flags().GetInt("attempts")
	backoff, _ := cmd.Flags().GetDuration("backoff")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	verbose, _ := cmd.Flags().GetBool("verbose")

	logger := discardLogger()
	if verbose {
		var err error
		logger, err = logging.New(logging.Options{Level: "debug", Format: logging.FormatText, Output: os.Stderr})
		if err != nil {
			return err
		}
	}

	client := poller.NewClient()
	defer client.Close()

	out := cmd.OutOrStdout()
	cycle := poller.NewCycle(client, poller.Policy{MaxAttempts: attempts, Backoff: backoff, Timeout: timeout}, logger)
	outcome := cycle.Run(cmd.Context(), args[0], progressPrinter{w: cmd.ErrOrStderr()})

	fmt.Fprintf(out, "Result:   %s\n", outcome.Result.DisplayName())
	if outcome.Message != "" {
		fmt.Fprintf(out, "Message:  %s\n", outcome.Message)
	}
	fmt.Fprintf(out, "Attempts: %d\n", outcome.Attempts)
	if outcome.StatusCode != 0 {
		fmt.Fprintf(out, "HTTP:     %d\n", outcome.StatusCode)
	}
	fmt.Fprintf(out, "Latency:  %s\n", outcome.Latency.Round(time.Millisecond))

	if outcome.Result != status.Success {
		return errCheckFailed
	}
	return nil
}

// progressPrinter writes the per-attempt indicator text.
type progressPrinter struct {
	w io.Writer
}

func (p progressPrinter) Attempt(attempt, maxAttempts int) {
	fmt.Fprintln(p.w, status.ProgressText(attempt, maxAttempts))
}

func (p progressPrinter) Backoff(d time.Duration) {
	fmt.Fprintf(p.w, "Retrying in %s\n", d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
