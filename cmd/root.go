package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/koral-tools/eltunt-cli/internal/config"
	"github.com/koral-tools/eltunt-cli/internal/model"
	"github.com/koral-tools/eltunt-cli/internal/store"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "eltunt-cli",
	Short: "Missing-person register tooling for police.hu data",
	Long:  "Collects the public missing-persons register, compares snapshots between collection cycles, and maintains a cumulative ledger workbook with a dated disappearance column per cycle.",
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

// initStore opens the run-history store and applies migrations.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// keyColumns returns the configured join key, falling back to the
// standard name + birth date pair.
func keyColumns() []string {
	if len(cfg.Merge.KeyColumns) > 0 {
		return cfg.Merge.KeyColumns
	}
	return model.DefaultKeyColumns()
}
