package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "attune",
	Short: "Attune - adaptive observability control plane",
	Long: `Attune decides, per service and environment, how verbosely a service
should observe itself based on its recently reported operational signals.

Agents push signals and pull the currently effective decision:
  - Log level (DEBUG, INFO, WARN, ERROR)
  - Trace sample rate
  - Metric emission interval

Decisions come from operator-defined policies with asymmetric hysteresis:
escalations apply immediately, de-escalations only after a dwell period.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
