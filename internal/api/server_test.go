package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"strategylab/internal/backtest"
	"strategylab/internal/domain"
	"strategylab/internal/engine"
	"strategylab/internal/store"
	"strategylab/internal/strategy"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func day(i int) time.Time { return day0.AddDate(0, 0, i) }

type fixture struct {
	srv     *Server
	results *store.SQLiteStore
	runner  *backtest.Backtester
	id      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	pq := store.NewParquetStore(dir)
	bars := make([]domain.Bar, 30)
	for i := range bars {
		p := decimal.NewFromFloat(100 + float64(i))
		bars[i] = domain.Bar{Symbol: "AAA", Timestamp: day(i), Open: p, High: p, Low: p, Close: p, Volume: 1e6}
	}
	require.NoError(t, pq.WriteBars(context.Background(), bars))

	sq, err := store.NewSQLiteStore(filepath.Join(dir, "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })

	feeds := strategy.NewRegistry()
	feeds.Register(strategy.NewStaticFeed("momentum", []domain.Signal{
		{Date: day(2), Symbol: "AAA", Direction: domain.DirectionBuy, Confidence: 0.9},
		{Date: day(12), Symbol: "AAA", Direction: domain.DirectionSell, Confidence: 0.9},
	}))
	bt := backtest.New(pq, feeds, engine.DefaultConfig(),
		backtest.WithResultStore(sq), backtest.WithArchive(pq), backtest.WithLogger(logger))

	res, err := bt.Run(context.Background(), backtest.Request{Feed: "momentum", Symbols: []string{"AAA"}, Start: day(0), End: day(29)})
	require.NoError(t, err)
	require.NotEmpty(t, res.ID)

	return &fixture{srv: NewServer(sq, pq, bt, logger), results: sq, runner: bt, id: res.ID}
}

func (f *fixture) do(t *testing.T, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, body))
	return rec
}

func TestListAndGetResult(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/results?name=momentum", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list ResultList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Results, 1)
	assert.Equal(t, f.id, list.Results[0].ID)
	assert.Equal(t, 1, list.Results[0].TotalTrades)

	rec = f.do(t, http.MethodGet, "/api/v1/results?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/results/"+f.id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var res backtest.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, f.id, res.ID)
	assert.Equal(t, "momentum", res.Name)
	assert.Len(t, res.EquityCurve, 30)

	rec = f.do(t, http.MethodGet, "/api/v1/results/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSeriesEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/results/"+f.id+"/trades", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var trades []domain.Trade
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trades))
	require.Len(t, trades, 1)
	assert.Equal(t, "AAA", trades[0].Symbol)

	rec = f.do(t, http.MethodGet, "/api/v1/results/"+f.id+"/equity", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var curve []domain.EquityPoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &curve))
	assert.Len(t, curve, 30)

	rec = f.do(t, http.MethodGet, "/api/v1/results/"+f.id+"/tearsheet", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sections"`)

	rec = f.do(t, http.MethodGet, "/api/v1/results/"+f.id+"/tearsheet?format=text", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	assert.Contains(t, rec.Body.String(), "momentum")
}

func TestDeleteResult(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodDelete, "/api/v1/results/"+f.id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodDelete, "/api/v1/results/"+f.id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunBacktestEndpoint(t *testing.T) {
	f := newFixture(t)

	body, _ := json.Marshal(backtest.Request{Feed: "momentum", Symbols: []string{"aaa"}, Start: day(0), End: day(29)})
	rec := f.do(t, http.MethodPost, "/api/v1/backtests", bytes.NewReader(body))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/api/v1/results/"))

	body, _ = json.Marshal(backtest.Request{Feed: "nope", Symbols: []string{"AAA"}})
	rec = f.do(t, http.MethodPost, "/api/v1/backtests", bytes.NewReader(body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/backtests", strings.NewReader("{"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodOptions, "/api/v1/results", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestBacktestServiceGRPC(t *testing.T) {
	f := newFixture(t)

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	RegisterBacktestService(gs, NewBacktestService(f.results, nil))
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	client := NewBacktestClient(conn)
	ctx := context.Background()

	list, err := client.ListResults(ctx, "momentum", 0)
	require.NoError(t, err)
	require.Len(t, list.GetValues(), 1)
	assert.Equal(t, f.id, list.GetValues()[0].GetStructValue().GetFields()["id"].GetStringValue())

	got, err := client.GetResult(ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, "momentum", got.GetFields()["name"].GetStringValue())
	assert.Len(t, got.GetFields()["equity_curve"].GetListValue().GetValues(), 30)

	_, err = client.GetResult(ctx, "missing")
	assert.Equal(t, codes.NotFound, status.Code(err))

	require.NoError(t, client.DeleteResult(ctx, f.id))
	err = client.DeleteResult(ctx, f.id)
	assert.Equal(t, codes.NotFound, status.Code(err))
}
