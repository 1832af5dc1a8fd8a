// strategylab runs deterministic backtests over stored daily bars and
// externally produced signals, and serves the stored results.
//
// Usage:
//
//	go build -o bin/strategylab ./cmd/strategylab/
//	bin/strategylab fetch --symbols AAPL,MSFT --start 2020-01-01
//	bin/strategylab run --feed momentum --symbols AAPL,MSFT --start 2021-01-01
//	bin/strategylab serve
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version  = "0.1.0"
	cfgPath  string
	logLevel string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "strategylab",
		Short: "Deterministic backtesting for daily signals",
		Long: `strategylab replays externally generated trading signals against
historical daily bars, simulating fills, costs and risk rules, and reports
performance analytics for the run.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Config file (defaults to STRATEGYLAB_CONFIG or config/strategylab.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(walkForwardCmd())
	rootCmd.AddCommand(fetchCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(listCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("strategylab version %s\n", version)
		},
	}
}
