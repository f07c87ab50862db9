package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	runsSinceHours int
	runsLimit      int
	runsJSON       bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent batch runs and the dead letter queue",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent batch runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		since := time.Now().Add(-time.Duration(runsSinceHours) * time.Hour)
		runs, err := st.ListBatchRuns(ctx, since, runsLimit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if runsJSON {
			return printJSON(runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tMODEL\tSTATUS\tPROCESSED\tERRORS\tRATE\tSTARTED\tDURATION")
		for _, run := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.2f%%\t%s\t%s\n",
				run.ID, run.Model, run.Status,
				run.TotalProcessed, run.TotalErrors, run.ErrorRate()*100,
				run.StartedAt.Format(time.RFC3339), run.Duration().Round(time.Second),
			)
		}
		return w.Flush()
	},
}

var runsDLQCmd = &cobra.Command{
	Use:   "dlq",
	Short: "List dead letter entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		entries, err := st.ListDLQ(ctx, runsLimit)
		if err != nil {
			return eris.Wrap(err, "dlq list")
		}

		if runsJSON {
			return printJSON(entries)
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "Dead letter queue is empty.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tRUN\tMODEL\tJOURNEYS\tERROR\tCREATED")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				e.ID, e.RunID, e.Model, len(e.JourneyIDs), e.Error,
				e.CreatedAt.Format(time.RFC3339),
			)
		}
		return w.Flush()
	},
}

func init() {
	runsCmd.PersistentFlags().IntVar(&runsSinceHours, "hours", 168, "lookback window in hours")
	runsCmd.PersistentFlags().IntVar(&runsLimit, "limit", 50, "maximum entries to list")
	runsCmd.PersistentFlags().BoolVar(&runsJSON, "json", false, "emit JSON instead of a table")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsDLQCmd)
	rootCmd.AddCommand(runsCmd)
}
