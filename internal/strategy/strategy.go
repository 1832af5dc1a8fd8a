// Package strategy defines the Feed interface through which externally
// produced trading signals enter a backtest, and a Registry for looking
// feeds up by name.
package strategy

import (
	"context"
	"sort"
	"time"

	"strategylab/internal/domain"
)

// Feed supplies the signals of one analysis engine.
type Feed interface {
	// Name returns the unique identifier for this feed.
	Name() string

	// Signals returns the feed's signals for the given symbols whose date
	// falls within [start, end], ordered by date. An empty symbols slice
	// selects every symbol.
	Signals(ctx context.Context, symbols []string, start, end time.Time) ([]domain.Signal, error)
}

// Registry holds a named collection of feeds for lookup and enumeration.
type Registry struct {
	feeds map[string]Feed
}

// NewRegistry creates an empty feed Registry.
func NewRegistry() *Registry {
	return &Registry{
		feeds: make(map[string]Feed),
	}
}

// Register adds a feed to the registry, keyed by its Name().
func (r *Registry) Register(f Feed) {
	r.feeds[f.Name()] = f
}

// Get retrieves a feed by name. The second return value indicates whether
// the feed was found.
func (r *Registry) Get(name string) (Feed, bool) {
	f, ok := r.feeds[name]
	return f, ok
}

// List returns a sorted slice of all registered feed names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.feeds))
	for name := range r.feeds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StaticFeed serves a fixed in-memory signal list.
type StaticFeed struct {
	name    string
	signals []domain.Signal
}

// NewStaticFeed returns a feed over signals.
func NewStaticFeed(name string, signals []domain.Signal) *StaticFeed {
	return &StaticFeed{name: name, signals: signals}
}

func (f *StaticFeed) Name() string { return f.name }

func (f *StaticFeed) Signals(_ context.Context, symbols []string, start, end time.Time) ([]domain.Signal, error) {
	return filterSignals(f.signals, symbols, start, end), nil
}

// filterSignals selects signals by symbol and inclusive date range and
// orders them by date, keeping the input order within a date.
func filterSignals(all []domain.Signal, symbols []string, start, end time.Time) []domain.Signal {
	want := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		want[s] = true
	}
	var out []domain.Signal
	for _, s := range all {
		if len(want) > 0 && !want[s.Symbol] {
			continue
		}
		if !start.IsZero() && s.Date.Before(start) {
			continue
		}
		if !end.IsZero() && s.Date.After(end) {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}
