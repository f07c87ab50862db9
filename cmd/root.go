package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/attribution-cli/internal/attribution"
	"github.com/sells-group/attribution-cli/internal/config"
	"github.com/sells-group/attribution-cli/internal/engine"
	"github.com/sells-group/attribution-cli/internal/store"
	sfpkg "github.com/sells-group/attribution-cli/pkg/salesforce"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "attribution-cli",
	Short: "Multi-touch marketing attribution engine",
	Long:  "Computes channel credit for customer journeys across five attribution models, runs chunked batch attribution, and syncs results to Salesforce.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initStore opens the configured backend. Callers own Close.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// loadModelConfig reads model tuning from the configured YAML, falling back
// to defaults when no path is set.
func loadModelConfig() (attribution.Config, error) {
	if cfg.Attribution.ModelsPath == "" {
		return attribution.DefaultConfig(), nil
	}
	return attribution.LoadConfig(cfg.Attribution.ModelsPath)
}

// initEngine wires a calculation engine over an opened, migrated store.
func initEngine(ctx context.Context) (*engine.Engine, store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, nil, err
	}

	modelCfg, err := loadModelConfig()
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, nil, err
	}

	return engine.New(st, attribution.NewRegistry(modelCfg), modelCfg), st, nil
}

// initSalesforce authenticates against the org with the configured JWT creds.
func initSalesforce() (sfpkg.Client, error) {
	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         cfg.Salesforce.LoginURL,
		Username:       cfg.Salesforce.Username,
		ConsumerKey:    cfg.Salesforce.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	return sfpkg.NewClient(sf, sfpkg.WithRateLimit(5)), nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
