package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:   "biovault-agent",
	Short: "Autonomous clinical document processing agent",
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(runCmd)
}
