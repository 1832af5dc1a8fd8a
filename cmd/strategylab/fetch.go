package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"strategylab/internal/marketdata"
)

func fetchCmd() *cobra.Command {
	var (
		symbols []string
		start   string
		end     string
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download daily bars from Alpaca into the bar store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.cfg.Alpaca.APIKey == "" {
				return fmt.Errorf("alpaca api key not set (APCA_API_KEY_ID)")
			}
			from, to, err := parseRange(start, end)
			if err != nil {
				return err
			}

			src := marketdata.NewAlpacaSource(marketdata.Options{
				APIKey:          a.cfg.Alpaca.APIKey,
				APISecret:       a.cfg.Alpaca.APISecret,
				DataURL:         a.cfg.Alpaca.DataURL,
				Feed:            a.cfg.Alpaca.Feed,
				RateLimitPerMin: a.cfg.Alpaca.RateLimitPerMin,
			}, a.bars, a.log)

			n, err := src.Fetch(ctx, symbols, from, to)
			if err != nil {
				return err
			}
			a.log.Info("fetch complete", "symbols", len(symbols), "bars", n, "data_dir", a.cfg.Storage.DataDir)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&symbols, "symbols", "s", nil, "Comma-separated symbols")
	cmd.Flags().StringVar(&start, "start", "2016-01-01", "First date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "Last date (YYYY-MM-DD, default today)")
	_ = cmd.MarkFlagRequired("symbols")
	return cmd
}
