package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/koral-tools/eltunt-cli/internal/collector"
	"github.com/koral-tools/eltunt-cli/internal/store"
	"github.com/koral-tools/eltunt-cli/internal/xlsxio"
)

var collectFlags struct {
	out          string
	name         string
	birthPlace   string
	birthDateMin string
	birthDateMax string
	gender       string
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Scrape the missing-persons register into an xlsx snapshot",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		c := collector.New(collector.Options{
			BaseURL:           cfg.Collector.BaseURL,
			UserAgent:         cfg.Collector.UserAgent,
			Timeout:           time.Duration(cfg.Collector.TimeoutSecs) * time.Second,
			MaxRetries:        cfg.Collector.MaxRetries,
			RequestsPerSecond: cfg.Collector.RequestsPerSecond,
			Burst:             cfg.Collector.Burst,
			DetailConcurrency: cfg.Collector.DetailConcurrency,
		})

		filter := collector.Filter{
			Name:         collectFlags.name,
			BirthPlace:   collectFlags.birthPlace,
			BirthDateMin: collectFlags.birthDateMin,
			BirthDateMax: collectFlags.birthDateMax,
			Gender:       collectFlags.gender,
		}

		snap, err := c.Collect(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "collect")
		}

		out := collectFlags.out
		if out == "" {
			out = fmt.Sprintf("eltunt-szemelyek_%s.xlsx", time.Now().Format("2006-01-02"))
		}
		path, err := xlsxio.SaveWithFallback(out, func(p string) error {
			return xlsxio.WriteSnapshot(p, snap)
		})
		if err != nil {
			return eris.Wrap(err, "collect: save")
		}

		recordCollectRun(cmd, store.CollectRun{
			Filter:     filter,
			Persons:    snap.Len(),
			OutputPath: path,
		})

		fmt.Fprintf(os.Stdout, "%d személy mentve: %s\n", snap.Len(), path)
		return nil
	},
}

// recordCollectRun writes run history. The snapshot is already on disk,
// so a store failure only warns.
func recordCollectRun(cmd *cobra.Command, run store.CollectRun) {
	ctx := cmd.Context()
	st, err := initStore(ctx)
	if err != nil {
		zap.L().Warn("run history unavailable", zap.Error(err))
		return
	}
	defer st.Close() //nolint:errcheck

	if _, err := st.RecordCollectRun(ctx, run); err != nil {
		zap.L().Warn("record collect run failed", zap.Error(err))
	}
}

func init() {
	collectCmd.Flags().StringVarP(&collectFlags.out, "out", "o", "", "output xlsx path (default eltunt-szemelyek_<date>.xlsx)")
	collectCmd.Flags().StringVar(&collectFlags.name, "name", "", "filter by name")
	collectCmd.Flags().StringVar(&collectFlags.birthPlace, "birth-place", "", "filter by birth place")
	collectCmd.Flags().StringVar(&collectFlags.birthDateMin, "birth-date-min", "", "earliest birth date (YYYY-MM-DD)")
	collectCmd.Flags().StringVar(&collectFlags.birthDateMax, "birth-date-max", "", "latest birth date (YYYY-MM-DD)")
	collectCmd.Flags().StringVar(&collectFlags.gender, "gender", "", "filter by gender code")
	rootCmd.AddCommand(collectCmd)
}
