package main

import (
	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print the effective signal catalog as YAML",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cat, err := loadCatalog()
		if err != nil {
			return err
		}
		if err := cat.Validate(); err != nil {
			return err
		}
		out, err := cat.YAML()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
}
