package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"strategylab/internal/api"
)

func serveCmd() *cobra.Command {
	var noGRPC bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored results over HTTP and gRPC",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			grpcAddr := a.cfg.Server.GRPCAddr()
			if noGRPC {
				grpcAddr = ""
			}
			srv := api.NewServer(a.results, a.bars, a.backtester(true), a.log)
			return srv.ListenAndServe(ctx, a.cfg.Server.Addr(), grpcAddr)
		},
	}

	cmd.Flags().BoolVar(&noGRPC, "no-grpc", false, "Serve HTTP only")
	return cmd
}
