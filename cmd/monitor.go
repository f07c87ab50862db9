package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/attribution-cli/internal/monitoring"
)

var (
	monitorHours int
	monitorAlert bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Summarize recent batch health",
	Long:  "Aggregates recent batch runs and the dead letter queue into a health snapshot. With --alert, threshold breaches are also posted to the configured webhook.",
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

		hours := monitorHours
		if hours <= 0 {
			hours = cfg.Monitoring.LookbackHours
		}

		snap, err := monitoring.NewCollector(st).Collect(ctx, hours)
		if err != nil {
			return err
		}
		if err := printJSON(snap); err != nil {
			return err
		}

		alerter := monitoring.NewAlerter(cfg.Monitoring)
		alerts := alerter.Evaluate(snap)
		if len(alerts) == 0 {
			return nil
		}

		if monitorAlert {
			sent := alerter.SendAlerts(ctx, alerts)
			fmt.Printf("%d alerts, %d sent to webhook\n", len(alerts), sent)
			return nil
		}
		return printJSON(alerts)
	},
}

func init() {
	monitorCmd.Flags().IntVar(&monitorHours, "hours", 0, "lookback window in hours (default from config)")
	monitorCmd.Flags().BoolVar(&monitorAlert, "alert", false, "post threshold breaches to the configured webhook")
	rootCmd.AddCommand(monitorCmd)
}
