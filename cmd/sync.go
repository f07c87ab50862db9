package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/attribution-cli/internal/model"
	"github.com/sells-group/attribution-cli/internal/store"
	sfpkg "github.com/sells-group/attribution-cli/pkg/salesforce"
)

var (
	syncModel    string
	syncReplace  bool
	syncUpdate   bool
	syncPull     bool
	syncVerify   bool
	syncSinceStr string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Exchange attribution data with Salesforce",
	Long:  "Pushes stored attribution results to Attribution_Result__c. With --replace, stale CRM rows for the covered journeys are deleted first; with --update, existing rows are patched in place and only new rows inserted. With --pull, journeys and touchpoints are read from the CRM into the store instead. --verify describes the custom objects and checks the required fields before any data moves.",
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

		client, err := initSalesforce()
		if err != nil {
			return err
		}
		syncer := sfpkg.NewSyncer(client)

		if syncReplace && syncUpdate {
			return eris.New("sync: --replace and --update are mutually exclusive")
		}
		if syncVerify {
			if err := syncer.VerifyObjects(ctx); err != nil {
				return err
			}
		}

		if syncPull {
			return pullFromSalesforce(cmd, st, syncer)
		}

		kind := model.ModelKind(syncModel)
		ids, err := st.ListJourneyIDs(ctx, store.JourneyFilter{})
		if err != nil {
			return eris.Wrap(err, "sync: list journeys")
		}
		results, err := st.GetAttributionResults(ctx, ids, kind)
		if err != nil {
			return eris.Wrap(err, "sync: load results")
		}
		if len(results) == 0 {
			return eris.Errorf("sync: no stored results for model %s", kind)
		}

		var report sfpkg.SyncReport
		switch {
		case syncReplace:
			report, err = syncer.ReplaceResults(ctx, kind, results)
		case syncUpdate:
			report, err = syncer.UpdateResults(ctx, kind, results)
		default:
			report, err = syncer.PushResults(ctx, results)
		}
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

func pullFromSalesforce(cmd *cobra.Command, st store.Store, syncer *sfpkg.Syncer) error {
	ctx := cmd.Context()

	var since time.Time
	if syncSinceStr != "" {
		var err error
		since, err = time.Parse(time.RFC3339, syncSinceStr)
		if err != nil {
			return eris.Wrapf(err, "sync: parse --since %q", syncSinceStr)
		}
	}

	journeys, touchpoints, err := syncer.PullJourneys(ctx, since)
	if err != nil {
		return err
	}

	byJourney := make(map[string][]model.Touchpoint, len(journeys))
	for _, tp := range touchpoints {
		byJourney[tp.JourneyID] = append(byJourney[tp.JourneyID], tp)
	}

	inserted := 0
	for _, j := range journeys {
		if err := st.InsertJourney(ctx, j, byJourney[j.ID]); err != nil {
			return eris.Wrapf(err, "sync: insert journey %s", j.ID)
		}
		inserted++
	}

	zap.L().Info("pulled journeys from salesforce",
		zap.Int("journeys", inserted),
		zap.Int("touchpoints", len(touchpoints)),
	)
	return printJSON(map[string]int{"journeys": inserted, "touchpoints": len(touchpoints)})
}

func init() {
	syncCmd.Flags().StringVar(&syncModel, "model", string(model.ModelLinear), "model whose results to push")
	syncCmd.Flags().BoolVar(&syncReplace, "replace", false, "delete stale CRM rows for the covered journeys first")
	syncCmd.Flags().BoolVar(&syncUpdate, "update", false, "patch existing CRM rows in place, inserting only new ones")
	syncCmd.Flags().BoolVar(&syncPull, "pull", false, "pull journeys and touchpoints from the CRM instead of pushing")
	syncCmd.Flags().BoolVar(&syncVerify, "verify", false, "check the custom object schemas before syncing")
	syncCmd.Flags().StringVar(&syncSinceStr, "since", "", "with --pull, only records modified since this RFC3339 time")
	rootCmd.AddCommand(syncCmd)
}
