package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/attribution-cli/internal/importer"
)

var importCmd = &cobra.Command{
	Use:   "import <file|url>...",
	Short: "Load journey-assembler exports into the store",
	Long:  "Imports assembler JSON, touchpoint CSV, or XLSX exports from local files, HTTP, or FTP. Files load concurrently; a failed file does not abort the rest.",
	Args:  cobra.MinimumNArgs(1),
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

		imp := importer.New(st, cfg.Importer)
		report, err := imp.Run(ctx, args)
		if err != nil {
			return eris.Wrap(err, "import")
		}

		if err := printJSON(report); err != nil {
			return err
		}
		if len(report.Errors) > 0 {
			return eris.Errorf("%d of %d files failed", len(report.Errors), len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
