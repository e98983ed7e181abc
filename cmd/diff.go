package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/koral-tools/eltunt-cli/internal/reconcile"
	"github.com/koral-tools/eltunt-cli/internal/xlsxio"
)

var diffFlags struct {
	out        string
	sortByName bool
}

var diffCmd = &cobra.Command{
	Use:   "diff <régi.xlsx> <új.xlsx>",
	Short: "Compare two snapshots and write the change table",
	Long:  "Joins the two snapshots on the configured key columns and writes a workbook of added, removed, and modified persons, tagging each row in the Változás column.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		oldSnap, err := xlsxio.ReadSnapshot(args[0])
		if err != nil {
			return eris.Wrapf(err, "diff: read %s", args[0])
		}
		newSnap, err := xlsxio.ReadSnapshot(args[1])
		if err != nil {
			return eris.Wrapf(err, "diff: read %s", args[1])
		}

		sortByName := diffFlags.sortByName
		if !cmd.Flags().Changed("sort-by-name") {
			sortByName = cfg.Diff.SortByName
		}

		cs, err := reconcile.Diff(oldSnap, newSnap, keyColumns(), reconcile.Options{SortByName: sortByName})
		if err != nil {
			return eris.Wrap(err, "diff")
		}

		if n := cs.Warnings.DuplicateOldKeys + cs.Warnings.DuplicateNewKeys; n > 0 {
			zap.L().Warn("duplicate keys found, rows were matched pairwise",
				zap.Int("old", cs.Warnings.DuplicateOldKeys),
				zap.Int("new", cs.Warnings.DuplicateNewKeys),
			)
		}

		added, removed, modified := cs.Counts()
		if cs.Empty() {
			fmt.Fprintln(os.Stdout, "Nincs változás.")
			return nil
		}

		out := diffFlags.out
		if out == "" {
			out = fmt.Sprintf("valtozasok_%s.xlsx", time.Now().Format("2006-01-02"))
		}
		table := cs.Table()
		path, err := xlsxio.SaveWithFallback(out, func(p string) error {
			return xlsxio.WriteSnapshot(p, table)
		})
		if err != nil {
			return eris.Wrap(err, "diff: save")
		}

		fmt.Fprintf(os.Stdout, "Új: %d, Törölt: %d, Adatváltozás: %d\n", added, removed, modified)
		fmt.Fprintf(os.Stdout, "Változások mentve: %s\n", path)
		return nil
	},
}

func init() {
	diffCmd.Flags().StringVarP(&diffFlags.out, "out", "o", "", "output xlsx path (default valtozasok_<date>.xlsx)")
	diffCmd.Flags().BoolVar(&diffFlags.sortByName, "sort-by-name", true, "sort each change group by name using Hungarian collation")
	rootCmd.AddCommand(diffCmd)
}
