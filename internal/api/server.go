// Package api serves stored backtest results over HTTP and gRPC.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"strategylab/internal/backtest"
	"strategylab/internal/store"
)

// Server hosts the HTTP and gRPC result endpoints.
type Server struct {
	results store.ResultStore
	archive store.RunArchive
	runner  *backtest.Backtester
	log     *slog.Logger
}

// NewServer creates a Server over results. archive and runner are optional:
// without an archive the trade and equity series come from the stored
// payload, and without a runner POST /api/v1/backtests is not served.
func NewServer(results store.ResultStore, archive store.RunArchive, runner *backtest.Backtester, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		results: results,
		archive: archive,
		runner:  runner,
		log:     logger.With("component", "api"),
	}
}

// Handler returns the HTTP handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

// ListenAndServe starts the HTTP listener on httpAddr and, when grpcAddr is
// not empty, the gRPC listener. It blocks until ctx is cancelled or a
// listener fails, then shuts both down.
func (s *Server) ListenAndServe(ctx context.Context, httpAddr, grpcAddr string) error {
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var gs *grpc.Server
	var grpcLis net.Listener
	if grpcAddr != "" {
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			return err
		}
		grpcLis = lis
		gs = grpc.NewServer()
		RegisterBacktestService(gs, NewBacktestService(s.results, s.log))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("HTTP server listening", "addr", httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if gs != nil {
		g.Go(func() error {
			s.log.Info("gRPC server listening", "addr", grpcLis.Addr().String())
			return gs.Serve(grpcLis)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if gs != nil {
			gs.GracefulStop()
		}
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
