package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"strategylab/internal/domain"
)

// FileFeed reads signals from a JSON or YAML file. The file holds a list of
// signal records; it is parsed on first use and cached.
type FileFeed struct {
	name string
	path string
	log  *slog.Logger

	once    sync.Once
	signals []domain.Signal
	err     error
}

// NewFileFeed returns a feed over path. An empty name uses the file's base
// name without extension.
func NewFileFeed(name, path string, logger *slog.Logger) *FileFeed {
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileFeed{name: name, path: path, log: logger.With("feed", name)}
}

func (f *FileFeed) Name() string { return f.name }

func (f *FileFeed) Signals(_ context.Context, symbols []string, start, end time.Time) ([]domain.Signal, error) {
	f.once.Do(func() {
		f.signals, f.err = f.load()
	})
	if f.err != nil {
		return nil, f.err
	}
	return filterSignals(f.signals, symbols, start, end), nil
}

// signalRecord is the on-disk form of a signal. Dates and limit prices are
// kept as text so both encodings parse them the same way.
type signalRecord struct {
	Date       string    `json:"date" yaml:"date"`
	Symbol     string    `json:"symbol" yaml:"symbol"`
	Direction  string    `json:"direction" yaml:"direction"`
	Confidence float64   `json:"confidence" yaml:"confidence"`
	OrderType  string    `json:"order_type" yaml:"order_type"`
	LimitPrice priceText `json:"limit_price" yaml:"limit_price"`
	ExpiryBars int       `json:"expiry_bars" yaml:"expiry_bars"`
	Reason     string    `json:"reason" yaml:"reason"`
}

// priceText accepts a JSON number or string.
type priceText string

func (p *priceText) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		return nil
	}
	*p = priceText(s)
	return nil
}

func (f *FileFeed) load() ([]domain.Signal, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("reading signals file: %w", err)
	}
	records, err := decodeRecords(f.path, data)
	if err != nil {
		return nil, fmt.Errorf("parsing signals file %s: %w", f.path, err)
	}

	signals := make([]domain.Signal, 0, len(records))
	for i, r := range records {
		sig, err := r.toSignal()
		if err != nil {
			f.log.Warn("skipping signal", "index", i, "error", err)
			continue
		}
		signals = append(signals, sig)
	}
	f.log.Debug("signals loaded", "path", f.path, "count", len(signals), "skipped", len(records)-len(signals))
	return signals, nil
}

func decodeRecords(path string, data []byte) ([]signalRecord, error) {
	var records []signalRecord
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &records); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, err
		}
	}
	return records, nil
}

var dateLayouts = []string{time.DateOnly, time.RFC3339, "2006-01-02 15:04:05"}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func (r signalRecord) toSignal() (domain.Signal, error) {
	date, err := parseDate(strings.TrimSpace(r.Date))
	if err != nil {
		return domain.Signal{}, err
	}
	dir := domain.Direction(strings.ToLower(r.Direction))
	if dir != domain.DirectionBuy && dir != domain.DirectionSell {
		return domain.Signal{}, fmt.Errorf("unknown direction %q", r.Direction)
	}
	if r.Symbol == "" {
		return domain.Signal{}, fmt.Errorf("missing symbol")
	}

	sig := domain.Signal{
		Date:       date,
		Symbol:     strings.ToUpper(r.Symbol),
		Direction:  dir,
		Confidence: r.Confidence,
		OrderType:  domain.OrderType(strings.ToLower(r.OrderType)),
		ExpiryBars: r.ExpiryBars,
		Reason:     r.Reason,
	}
	if r.LimitPrice != "" {
		p, err := decimal.NewFromString(string(r.LimitPrice))
		if err != nil || !p.IsPositive() {
			return domain.Signal{}, fmt.Errorf("invalid limit price %q", string(r.LimitPrice))
		}
		sig.LimitPrice = &p
	}
	if sig.OrderType == domain.OrderTypeLimit && sig.LimitPrice == nil {
		return domain.Signal{}, fmt.Errorf("limit order without limit price")
	}
	return sig, nil
}

// LoadDir registers a FileFeed for every .json, .yaml and .yml file in dir,
// named after the file. A missing directory registers nothing.
func LoadDir(r *Registry, dir string, logger *slog.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".yaml", ".yml":
			r.Register(NewFileFeed("", filepath.Join(dir, e.Name()), logger))
		}
	}
	return nil
}
