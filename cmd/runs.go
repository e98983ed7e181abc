package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/koral-tools/eltunt-cli/internal/store"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect collect and merge run history",
}

var runsCollectCmd = &cobra.Command{
	Use:   "collect",
	Short: "List recent collect runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListCollectRuns(ctx, runsLimit)
		if err != nil {
			return eris.Wrap(err, "runs collect")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatCollectRuns(os.Stdout, runs)
		return nil
	},
}

var runsMergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "List recent merge runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListMergeRuns(ctx, runsLimit)
		if err != nil {
			return eris.Wrap(err, "runs merge")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatMergeRuns(os.Stdout, runs)
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a merge run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetMergeRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func formatCollectRuns(out io.Writer, runs []store.CollectRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPERSONS\tOUTPUT\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t-------\t------\t-------")
	for _, r := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
			truncateID(r.ID),
			r.Persons,
			r.OutputPath,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func formatMergeRuns(out io.Writer, runs []store.MergeRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCYCLE\tCOMMON\tNEW\tFINAL\tOUTPUT\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t-----\t------\t---\t-----\t------\t-------")
	for _, r := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			truncateID(r.ID),
			r.CycleDate,
			r.Stats.Common,
			r.Stats.NewOnly,
			r.Stats.Final,
			r.OutputPath,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	runsCmd.PersistentFlags().IntVar(&runsLimit, "limit", 50, "max number of runs to display")

	runsCmd.AddCommand(runsCollectCmd)
	runsCmd.AddCommand(runsMergeCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}
