package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/apimonitor/internal/history"
	"github.com/jpalmerr/apimonitor/internal/settings"
	"github.com/jpalmerr/apimonitor/internal/store"
)

// historyCmd prints the persisted history of a stopped monitor.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the persisted transition history",
	Long: `Print the status transitions saved in the settings database, newest
first. The monitor saves its history on shutdown, and the database can only
be opened while no monitor is using it.

Example:
  apimonitor history --data-dir /var/lib/apimonitor
  apimonitor history --data-dir /var/lib/apimonitor --json`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

// historyClearCmd deletes the persisted history.
var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the persisted transition history",
	Args:  cobra.NoArgs,
	RunE:  runHistoryClear,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyClearCmd)

	historyCmd.PersistentFlags().String("data-dir", ".", "directory holding the settings database")
	historyCmd.Flags().Bool("json", false, "print entries as JSON")
}

// openStore opens the settings database named by the data-dir flag.
func openStore(cmd *cobra.Command) (*settings.BoltStore, error) {
	dir, _ := cmd.Flags().GetString("data-dir")
	st, err := settings.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings in %s: %w", dir, err)
	}
	return st, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	s, _, err := st.Load()
	if err != nil {
		return err
	}
	count, blob, err := st.LoadHistory()
	if err != nil {
		return err
	}

	// sized to hold whatever was saved, even if the limit changed since
	hist := history.New(max(s.HistoryLimit, int(count)))
	if err := hist.Deserialize(count, blob); err != nil {
		return err
	}
	entries := hist.Entries()

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(store.NewHistoryView(entries))
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No history recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tFROM\tTO\tMESSAGE")
	for _, e := range entries {
		when := "-"
		if !e.Time.IsZero() {
			when = e.Time.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", when, e.OldResult.DisplayName(), e.NewResult.DisplayName(), e.NewMessage)
	}
	return tw.Flush()
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if err := st.SaveHistory(0, nil); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
	return nil
}
