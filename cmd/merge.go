package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/koral-tools/eltunt-cli/internal/model"
	"github.com/koral-tools/eltunt-cli/internal/reconcile"
	"github.com/koral-tools/eltunt-cli/internal/store"
	"github.com/koral-tools/eltunt-cli/internal/xlsxio"
)

var mergeFlags struct {
	out              string
	cycleDate        string
	observationField string
}

var mergeCmd = &cobra.Command{
	Use:   "merge <adatbázis.xlsx> <új.xlsx>",
	Short: "Merge a new snapshot into the cumulative ledger workbook",
	Long:  "Adds a dated disappearance column for the cycle, overwrites it for persons already in the ledger, appends persons seen for the first time, and appends a summary sheet. Persons missing from the new snapshot are kept.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		ledger, err := xlsxio.ReadLedger(args[0])
		if err != nil {
			return eris.Wrapf(err, "merge: read %s", args[0])
		}
		incoming, err := xlsxio.ReadSnapshot(args[1])
		if err != nil {
			return eris.Wrapf(err, "merge: read %s", args[1])
		}

		cycleDate := mergeFlags.cycleDate
		if cycleDate == "" {
			cycleDate = time.Now().Format("2006-01-02")
		}
		if _, err := time.Parse("2006-01-02", cycleDate); err != nil {
			return eris.Wrapf(err, "merge: invalid cycle date %q", cycleDate)
		}

		merged, stats, err := reconcile.Merge(ledger, incoming, reconcile.MergeOptions{
			KeyFields:        keyColumns(),
			CycleDate:        cycleDate,
			ObservationField: mergeFlags.observationField,
		})
		if err != nil {
			return eris.Wrap(err, "merge")
		}

		out := mergeFlags.out
		if out == "" {
			out = args[0]
		}
		summary := &xlsxio.MergeSummary{
			CycleDate:         cycleDate,
			ObservationColumn: model.ObservationColumn(cycleDate),
			LedgerFile:        args[0],
			IncomingFile:      args[1],
			Stats:             stats,
		}
		path, err := xlsxio.SaveWithFallback(out, func(p string) error {
			return xlsxio.WriteLedger(p, merged, summary)
		})
		if err != nil {
			return eris.Wrap(err, "merge: save")
		}

		if st, err := initStore(ctx); err != nil {
			zap.L().Warn("run history unavailable", zap.Error(err))
		} else {
			defer st.Close() //nolint:errcheck
			if _, err := st.RecordMergeRun(ctx, store.MergeRun{
				LedgerPath:   args[0],
				IncomingPath: args[1],
				OutputPath:   path,
				CycleDate:    cycleDate,
				Stats:        stats,
			}); err != nil {
				zap.L().Warn("record merge run failed", zap.Error(err))
			}
		}

		formatMergeStats(os.Stdout, stats)
		fmt.Fprintf(os.Stdout, "Adatbázis mentve: %s\n", path)
		return nil
	},
}

// formatMergeStats writes the cycle counters as a two-column table.
func formatMergeStats(out io.Writer, s reconcile.Stats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Meglévő rekordok:\t%d\n", s.Prior)
	_, _ = fmt.Fprintf(w, "Új adatok:\t%d\n", s.Incoming)
	_, _ = fmt.Fprintf(w, "Frissített:\t%d\n", s.Common)
	_, _ = fmt.Fprintf(w, "Hozzáadott:\t%d\n", s.NewOnly)
	_, _ = fmt.Fprintf(w, "Csak meglévőben:\t%d\n", s.OnlyInLedger)
	_, _ = fmt.Fprintf(w, "Egyesített rekordok:\t%d\n", s.Final)
	_ = w.Flush()
}

func init() {
	mergeCmd.Flags().StringVarP(&mergeFlags.out, "out", "o", "", "output xlsx path (default: overwrite the ledger)")
	mergeCmd.Flags().StringVar(&mergeFlags.cycleDate, "cycle-date", "", "cycle date YYYY-MM-DD (default today)")
	mergeCmd.Flags().StringVar(&mergeFlags.observationField, "observation-column", "", "incoming column holding the disappearance date (default: auto-detect)")
	rootCmd.AddCommand(mergeCmd)
}
