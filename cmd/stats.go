package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/attribution-cli/internal/attribution"
	"github.com/sells-group/attribution-cli/internal/store"
)

var (
	statsConvertedOnly bool
	statsMinConfidence float64
)

var statsCmd = &cobra.Command{
	Use:   "stats [journey-id...]",
	Short: "Summarize channel activity across journeys",
	Long:  "Aggregates touchpoint counts per channel. With journey ids the summary covers just those journeys; without, it covers every journey matching the filters.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		ids := args
		if len(ids) == 0 {
			ids, err = st.ListJourneyIDs(ctx, store.JourneyFilter{
				ConvertedOnly: statsConvertedOnly,
				MinConfidence: statsMinConfidence,
			})
			if err != nil {
				return eris.Wrap(err, "stats: list journeys")
			}
		}
		if len(ids) == 0 {
			return eris.New("stats: no journeys match")
		}

		tps, err := st.GetTouchpointsByJourneyIDs(ctx, ids)
		if err != nil {
			return eris.Wrap(err, "stats: load touchpoints")
		}

		return printJSON(attribution.GetChannelStatistics(tps))
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsConvertedOnly, "converted-only", false, "only converted journeys")
	statsCmd.Flags().Float64Var(&statsMinConfidence, "min-confidence", 0, "minimum identity-resolution confidence score")
	rootCmd.AddCommand(statsCmd)
}
