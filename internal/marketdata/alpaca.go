// Package marketdata downloads daily bars from Alpaca into a bar store.
package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"strategylab/internal/domain"
	"strategylab/internal/store"
	"strategylab/internal/util"
)

// barsClient is the subset of the Alpaca market data client in use.
type barsClient interface {
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
}

// Options configures an AlpacaSource.
type Options struct {
	APIKey          string
	APISecret       string
	DataURL         string
	Feed            string // "sip" or "iex"; empty is "sip"
	BatchSize       int    // symbols per request
	RateLimitPerMin int
}

// AlpacaSource fetches daily bars and writes them to a bar store.
type AlpacaSource struct {
	client    barsClient
	store     store.BarStore
	feed      string
	batchSize int
	limiter   *util.RateLimiter
	backoff   util.Backoff
	log       *slog.Logger
}

// NewAlpacaSource creates a source backed by the Alpaca market data API.
func NewAlpacaSource(opts Options, s store.BarStore, logger *slog.Logger) *AlpacaSource {
	clientOpts := marketdata.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
	}
	if opts.DataURL != "" {
		clientOpts.BaseURL = opts.DataURL
	}
	return newSource(marketdata.NewClient(clientOpts), s, opts, logger)
}

func newSource(c barsClient, s store.BarStore, opts Options, logger *slog.Logger) *AlpacaSource {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Feed == "" {
		opts.Feed = "sip"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return &AlpacaSource{
		client:    c,
		store:     s,
		feed:      opts.Feed,
		batchSize: opts.BatchSize,
		limiter:   util.NewRateLimiter(opts.RateLimitPerMin, 1),
		backoff:   util.Backoff{Attempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second},
		log:       logger.With("source", "alpaca"),
	}
}

// Fetch downloads daily bars for symbols within [start, end] and writes
// them to the store. It returns the number of bars written.
func (a *AlpacaSource) Fetch(ctx context.Context, symbols []string, start, end time.Time) (int, error) {
	upper := make([]string, 0, len(symbols))
	for _, s := range symbols {
		upper = append(upper, strings.ToUpper(strings.TrimSpace(s)))
	}

	total := 0
	for i := 0; i < len(upper); i += a.batchSize {
		batch := upper[i:min(i+a.batchSize, len(upper))]
		if err := a.limiter.Wait(ctx); err != nil {
			return total, err
		}

		var raw map[string][]marketdata.Bar
		err := util.Retry(ctx, a.backoff, func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return util.Permanent(err)
			}
			var err error
			raw, err = a.client.GetMultiBars(batch, marketdata.GetBarsRequest{
				TimeFrame: marketdata.OneDay,
				Start:     start,
				End:       end,
				Feed:      marketdata.Feed(a.feed),
			})
			return err
		})
		if err != nil {
			return total, fmt.Errorf("GetMultiBars: %w", err)
		}

		bars := ConvertBars(raw)
		if err := a.store.WriteBars(ctx, bars); err != nil {
			return total, fmt.Errorf("writing bars: %w", err)
		}
		total += len(bars)
		a.log.Info("batch fetched", "symbols", len(batch), "bars", len(bars))
	}
	return total, nil
}

// ConvertBars maps Alpaca bars to domain bars ordered by symbol then time.
// Prices become fixed-point decimals; non-finite prices become zero.
func ConvertBars(raw map[string][]marketdata.Bar) []domain.Bar {
	symbols := make([]string, 0, len(raw))
	for sym := range raw {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var bars []domain.Bar
	for _, sym := range symbols {
		for _, ab := range raw[sym] {
			bars = append(bars, domain.Bar{
				Symbol:    strings.ToUpper(sym),
				Timestamp: ab.Timestamp.UTC().Truncate(24 * time.Hour),
				Open:      domain.ToDecimal(ab.Open),
				High:      domain.ToDecimal(ab.High),
				Low:       domain.ToDecimal(ab.Low),
				Close:     domain.ToDecimal(ab.Close),
				Volume:    float64(ab.Volume),
			})
		}
	}
	return bars
}
