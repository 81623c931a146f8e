package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "jify",
	Short: "Append-only JSON document store with field indexing",
	Long: `jify stores records as a single human-readable JSON array file and
builds a companion skip-list index for fast lookup and range queries
over chosen fields.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func defaultIndexPath(dataPath string) string {
	return dataPath + ".idx"
}
