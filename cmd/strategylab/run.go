package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"strategylab/internal/backtest"
)

func runCmd() *cobra.Command {
	var (
		feed      string
		symbols   []string
		start     string
		end       string
		benchmark string
		trials    int
		asJSON    bool
		noSave    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Backtest a signal feed over stored bars",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			from, to, err := parseRange(start, end)
			if err != nil {
				return err
			}
			if benchmark == "" {
				benchmark = a.cfg.Backtest.BenchmarkSymbol
			}

			res, err := a.backtester(!noSave).Run(ctx, backtest.Request{
				Feed:      feed,
				Symbols:   symbols,
				Start:     from,
				End:       to,
				Benchmark: benchmark,
				Trials:    trials,
			})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			if err := res.TearSheet().Render(os.Stdout); err != nil {
				return err
			}
			if res.ID != "" {
				fmt.Printf("\nresult id: %s\n", res.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&feed, "feed", "f", "", "Registered signal feed name")
	cmd.Flags().StringSliceVarP(&symbols, "symbols", "s", nil, "Comma-separated symbols")
	cmd.Flags().StringVar(&start, "start", "2016-01-01", "First date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "Last date (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&benchmark, "benchmark", "", "Benchmark symbol (default from config)")
	cmd.Flags().IntVar(&trials, "trials", 0, "Configurations tried before this one, for the deflated Sharpe")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "Do not persist the result")
	_ = cmd.MarkFlagRequired("feed")
	_ = cmd.MarkFlagRequired("symbols")
	return cmd
}
