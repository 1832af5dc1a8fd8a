package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"strategylab/internal/analytics"
	"strategylab/internal/backtest"
	"strategylab/internal/store"
)

func showCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <result-id>",
		Short: "Print the tear sheet of a stored result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.results.GetResult(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("result %s: %w", args[0], err)
			}
			res, err := backtest.DecodeResult(rec)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			return res.TearSheet().Render(os.Stdout)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	return cmd
}

func listCmd() *cobra.Command {
	var (
		name  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored results, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			recs, err := a.results.ListResults(cmd.Context(), store.ListFilter{Name: name, Limit: limit})
			if err != nil {
				return err
			}
			fmt.Printf("%-36s  %-16s  %-10s  %-10s  %9s  %7s  %6s\n", "ID", "NAME", "START", "END", "RETURN", "SHARPE", "TRADES")
			for _, r := range recs {
				fmt.Printf("%-36s  %-16s  %-10s  %-10s  %9s  %7s  %6s\n",
					r.ID, r.Name,
					r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"),
					analytics.FormatPct(r.TotalReturnPct), analytics.FormatFloat(r.SharpeRatio),
					analytics.FormatCount(r.TotalTrades))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Only results with this name")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum results (0 for all)")
	return cmd
}
