package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"strategylab/internal/analytics"
	"strategylab/internal/backtest"
)

func walkForwardCmd() *cobra.Command {
	var (
		feed    string
		symbols []string
		start   string
		end     string
		train   int
		test    int
		step    int
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "walkforward",
		Short: "Run a walk-forward evaluation of a signal feed",
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
			wf := a.cfg.WalkForward
			if train == 0 {
				train = wf.TrainDays
			}
			if test == 0 {
				test = wf.TestDays
			}
			if step == 0 {
				step = wf.StepDays
			}

			res, err := a.backtester(false).WalkForward(ctx, backtest.WalkForwardRequest{
				Request:   backtest.Request{Feed: feed, Symbols: symbols, Start: from, End: to},
				TrainDays: train,
				TestDays:  test,
				StepDays:  step,
			})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printWalkForward(res)
			return nil
		},
	}

	cmd.Flags().StringVarP(&feed, "feed", "f", "", "Registered signal feed name")
	cmd.Flags().StringSliceVarP(&symbols, "symbols", "s", nil, "Comma-separated symbols")
	cmd.Flags().StringVar(&start, "start", "2016-01-01", "First date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "Last date (YYYY-MM-DD, default today)")
	cmd.Flags().IntVar(&train, "train", 0, "Train window in trading dates (default from config)")
	cmd.Flags().IntVar(&test, "test", 0, "Test window in trading dates (default from config)")
	cmd.Flags().IntVar(&step, "step", 0, "Dates between fold starts (default: test window)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	_ = cmd.MarkFlagRequired("feed")
	_ = cmd.MarkFlagRequired("symbols")
	return cmd
}

func printWalkForward(res *backtest.WalkForwardResult) {
	fmt.Printf("%-5s %-23s %-23s %10s %10s %8s\n", "FOLD", "TRAIN", "TEST", "IS RET", "OOS RET", "OOS TR")
	for _, f := range res.Folds {
		fmt.Printf("%-5d %s..%s %s..%s %10s %10s %8d\n",
			f.Index,
			f.TrainStart.Format("2006-01-02"), f.TrainEnd.Format("2006-01-02"),
			f.TestStart.Format("2006-01-02"), f.TestEnd.Format("2006-01-02"),
			analytics.FormatPct(f.InSampleReturnPct), analytics.FormatPct(f.OutOfSampleReturnPct),
			f.OutOfSampleTrades)
	}
	ratio := "inf"
	if !math.IsInf(res.OverfittingRatio, 0) {
		ratio = fmt.Sprintf("%.2f", res.OverfittingRatio)
	}
	fmt.Printf("\nmean IS %s  mean OOS %s  overfitting ratio %s\n",
		analytics.FormatPct(res.MeanInSampleReturnPct), analytics.FormatPct(res.MeanOutOfSampleReturnPct), ratio)
	fmt.Printf("capital %s -> %s\n",
		analytics.FormatMoney(res.InitialCapital), analytics.FormatMoney(res.FinalCapital))
}
