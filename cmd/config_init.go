package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/koral-tools/eltunt-cli/internal/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config.yaml with the default settings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		const path = "config.yaml"

		if _, err := os.Stat(path); err == nil && !configForce {
			return eris.Errorf("%s already exists, use --force to overwrite", path)
		}

		out, err := config.DefaultYAML()
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, out, 0o644); err != nil {
			return eris.Wrapf(err, "write %s", path)
		}

		fmt.Fprintf(os.Stdout, "Wrote %s\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing config.yaml")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
