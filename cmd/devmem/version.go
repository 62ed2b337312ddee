package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var version = "v0.0.1-dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "devmem %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
