package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"strategylab/internal/backtest"
	"strategylab/internal/domain"
	"strategylab/internal/store"
)

// ResultList is the body of GET /api/v1/results.
type ResultList struct {
	Results []store.ResultRecord `json:"results"`
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/v1/results", s.handleListResults)
	mux.HandleFunc("GET /api/v1/results/{id}", s.handleGetResult)
	mux.HandleFunc("DELETE /api/v1/results/{id}", s.handleDeleteResult)
	mux.HandleFunc("GET /api/v1/results/{id}/tearsheet", s.handleTearSheet)
	mux.HandleFunc("GET /api/v1/results/{id}/trades", s.handleTrades)
	mux.HandleFunc("GET /api/v1/results/{id}/equity", s.handleEquity)
	if s.runner != nil {
		mux.HandleFunc("POST /api/v1/backtests", s.handleRunBacktest)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	filter := store.ListFilter{Name: r.URL.Query().Get("name")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}

	recs, err := s.results.ListResults(r.Context(), filter)
	if err != nil {
		s.log.Error("listing results", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list results")
		return
	}
	if recs == nil {
		recs = []store.ResultRecord{}
	}
	writeJSON(w, ResultList{Results: recs})
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	res, ok := s.loadResult(w, r)
	if !ok {
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleDeleteResult(w http.ResponseWriter, r *http.Request) {
	err := s.results.DeleteResult(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "result not found")
	case err != nil:
		s.log.Error("deleting result", "id", r.PathValue("id"), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete result")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleTearSheet returns the tear sheet as JSON, or rendered text with
// ?format=text.
func (s *Server) handleTearSheet(w http.ResponseWriter, r *http.Request) {
	res, ok := s.loadResult(w, r)
	if !ok {
		return
	}
	ts := res.TearSheet()
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := ts.Render(w); err != nil {
			s.log.Error("rendering tear sheet", "error", err)
		}
		return
	}
	writeJSON(w, ts)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.archive != nil {
		trades, err := s.archive.ReadTrades(r.Context(), id)
		if err == nil {
			writeJSON(w, nonNil(trades))
			return
		}
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Warn("reading archived trades", "id", id, "error", err)
		}
	}
	res, ok := s.loadResult(w, r)
	if !ok {
		return
	}
	writeJSON(w, nonNil(res.Trades))
}

func (s *Server) handleEquity(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.archive != nil {
		curve, err := s.archive.ReadEquity(r.Context(), id)
		if err == nil {
			writeJSON(w, nonNil(curve))
			return
		}
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Warn("reading archived equity", "id", id, "error", err)
		}
	}
	res, ok := s.loadResult(w, r)
	if !ok {
		return
	}
	writeJSON(w, nonNil(res.EquityCurve))
}

func (s *Server) handleRunBacktest(w http.ResponseWriter, r *http.Request) {
	var req backtest.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := s.runner.Run(r.Context(), req)
	switch {
	case errors.Is(err, backtest.ErrUnknownFeed), errors.Is(err, backtest.ErrNoBars):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.log.Error("running backtest", "feed", req.Feed, "error", err)
		writeError(w, http.StatusInternalServerError, "backtest failed")
		return
	}
	w.Header().Set("Location", "/api/v1/results/"+res.ID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

// loadResult fetches and decodes the result named by the {id} path value,
// writing the error response itself when it fails.
func (s *Server) loadResult(w http.ResponseWriter, r *http.Request) (*backtest.Result, bool) {
	id := r.PathValue("id")
	rec, err := s.results.GetResult(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "result not found")
		return nil, false
	}
	if err != nil {
		s.log.Error("getting result", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get result")
		return nil, false
	}
	res, err := backtest.DecodeResult(rec)
	if err != nil {
		s.log.Error("decoding result", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "corrupt result")
		return nil, false
	}
	return res, true
}

func nonNil[T domain.Trade | domain.EquityPoint](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
