package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/attribution-cli/internal/engine"
	"github.com/sells-group/attribution-cli/internal/model"
	"github.com/sells-group/attribution-cli/internal/monitoring"
	"github.com/sells-group/attribution-cli/internal/store"
)

var (
	batchModel         string
	batchChunkSize     int
	batchConvertedOnly bool
	batchMinConfidence float64
	batchReplayDLQ     bool
	batchReplayLimit   int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run chunked attribution over stored journeys",
	Long:  "Processes every matching journey in chunks, tolerating chunk failures. Failed chunks land in the dead letter queue; --replay-dlq re-runs them instead of starting a new run.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		eng, st, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runnerCfg := engine.RunnerConfig{
			ChunkSize:     cfg.Batch.ChunkSize,
			Enabled:       cfg.Batch.Enabled,
			EmergencyStop: cfg.Batch.EmergencyStop,
			Filter: store.JourneyFilter{
				ConvertedOnly: cfg.Batch.ConvertedOnly || batchConvertedOnly,
				MinConfidence: cfg.Batch.MinConfidence,
			},
		}
		if cmd.Flags().Changed("chunk-size") {
			runnerCfg.ChunkSize = batchChunkSize
		}
		if cmd.Flags().Changed("min-confidence") {
			runnerCfg.Filter.MinConfidence = batchMinConfidence
		}

		alerter := monitoring.NewAlerter(cfg.Monitoring)
		runner := engine.NewBatchRunner(st, eng, runnerCfg, alerter)
		kind := model.ModelKind(batchModel)

		if batchReplayDLQ {
			replayed, err := runner.ReplayDLQ(ctx, batchReplayLimit)
			if err != nil {
				return err
			}
			fmt.Printf("replayed %d dead letter entries\n", replayed)
			return nil
		}

		run, err := runner.Run(ctx, kind)
		if err != nil {
			return err
		}
		return printJSON(run)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchModel, "model", string(model.ModelLinear), "attribution model to run")
	batchCmd.Flags().IntVar(&batchChunkSize, "chunk-size", engine.DefaultChunkSize, "journeys per chunk")
	batchCmd.Flags().BoolVar(&batchConvertedOnly, "converted-only", false, "restrict the run to converted journeys")
	batchCmd.Flags().Float64Var(&batchMinConfidence, "min-confidence", 0, "minimum identity-resolution confidence score")
	batchCmd.Flags().BoolVar(&batchReplayDLQ, "replay-dlq", false, "replay dead letter entries instead of starting a run")
	batchCmd.Flags().IntVar(&batchReplayLimit, "replay-limit", 100, "maximum dead letter entries to replay")
	rootCmd.AddCommand(batchCmd)
}
