package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/attribution-cli/internal/model"
)

var (
	attributeModel   string
	attributePersist bool
)

var attributeCmd = &cobra.Command{
	Use:   "attribute <journey-id>",
	Short: "Compute attribution for one journey",
	Long:  "Computes per-channel credit for a single journey under the chosen model and prints the rows. With --persist the rows replace any stored results for that journey and model.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		eng, st, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		kind := model.ModelKind(attributeModel)

		if attributePersist {
			outcomes, err := eng.TriggerAttributionCalculation(ctx, args, kind)
			if err != nil {
				return err
			}
			return printJSON(outcomes)
		}

		results, err := eng.CalculateAttribution(ctx, args[0], kind)
		if err != nil {
			return err
		}
		return printJSON(results)
	},
}

func init() {
	attributeCmd.Flags().StringVar(&attributeModel, "model", string(model.ModelLinear), "attribution model (last_touch, first_touch, linear, time_decay, position_based)")
	attributeCmd.Flags().BoolVar(&attributePersist, "persist", false, "store the computed rows, replacing previous results")
	rootCmd.AddCommand(attributeCmd)
}
