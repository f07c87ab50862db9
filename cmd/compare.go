package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/attribution-cli/internal/attribution"
	"github.com/sells-group/attribution-cli/internal/model"
)

var (
	compareModels   []string
	compareRankFrom string
	compareRankTo   string
)

// comparisonReport is the full cross-model comparison the command prints.
type comparisonReport struct {
	Models      []model.ModelKind             `json:"models"`
	Weights     attribution.ModelWeights      `json:"average_weights"`
	Spreads     []attribution.ChannelSpread   `json:"channel_spreads"`
	Correlation attribution.CorrelationMatrix `json:"correlation"`
	RankShifts  []attribution.RankShift       `json:"rank_shifts,omitempty"`
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare stored results across attribution models",
	Long:  "Builds per-model average channel weights from stored results, then reports per-channel spread, a model correlation matrix, and optional rank movement between two models.",
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

		kinds := make([]model.ModelKind, 0, len(compareModels))
		for _, m := range compareModels {
			kinds = append(kinds, model.ModelKind(m))
		}
		if len(kinds) == 0 {
			kinds = model.HeuristicKinds()
		}

		results, err := st.GetAttributionResultsByModels(ctx, kinds)
		if err != nil {
			return eris.Wrap(err, "compare: load results")
		}
		if len(results) == 0 {
			return eris.New("compare: no stored results for the requested models")
		}

		weights := attribution.AverageChannelWeights(results)
		report := comparisonReport{
			Models:      kinds,
			Weights:     weights,
			Spreads:     attribution.CompareChannels(weights, kinds),
			Correlation: attribution.Correlate(weights, kinds),
		}

		if compareRankFrom != "" && compareRankTo != "" {
			report.RankShifts = attribution.RankMovement(weights,
				model.ModelKind(compareRankFrom), model.ModelKind(compareRankTo))
		}

		return printJSON(report)
	},
}

func init() {
	compareCmd.Flags().StringSliceVar(&compareModels, "models", nil, "models to compare (default: all heuristic models)")
	compareCmd.Flags().StringVar(&compareRankFrom, "rank-from", "", "baseline model for rank movement")
	compareCmd.Flags().StringVar(&compareRankTo, "rank-to", "", "comparison model for rank movement")
	rootCmd.AddCommand(compareCmd)
}
