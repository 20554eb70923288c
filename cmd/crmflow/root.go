package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "crmflow",
		Short:         "Sales-to-service pipeline engine",
		Version:       version + " (" + commit + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newServeCommand(&configPath))
	rootCmd.AddCommand(newCatalogCommand(&configPath))
	rootCmd.AddCommand(newDemoCommand())

	return rootCmd
}
