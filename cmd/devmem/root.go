package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/born-ml/devmem/internal/logger"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
	jsonOut bool
)

var rootCmd = &cobra.Command{
	Use:   "devmem",
	Short: "Exercise and inspect the Born device memory layer",
	Long: `devmem drives the Born device memory layer: it runs synthetic
allocation workloads against a device and allocator strategy and reports
allocator and pool statistics.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Init(logger.Options{
			Enabled: verbose,
			Output:  os.Stderr,
			Level:   slog.LevelDebug,
		})
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging to stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
