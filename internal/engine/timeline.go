package engine

import (
	"sort"
	"time"

	"strategylab/internal/domain"
)

// Timeline is the unified, sorted sequence of trading dates across every
// symbol, with the bars available on each date.
type Timeline struct {
	Dates   []time.Time
	Symbols []string

	bars map[time.Time]map[string]domain.Bar
}

// dateKey normalizes a timestamp for map lookups: UTC location, no
// monotonic clock reading.
func dateKey(t time.Time) time.Time {
	return t.UTC().Round(0)
}

// BuildTimeline merges per-symbol bar series into one sorted sequence of
// distinct dates. It is linear in the total bar count plus one sort.
func BuildTimeline(bars map[string][]domain.Bar) *Timeline {
	tl := &Timeline{
		bars: make(map[time.Time]map[string]domain.Bar),
	}
	for sym, series := range bars {
		tl.Symbols = append(tl.Symbols, sym)
		for _, b := range series {
			k := dateKey(b.Timestamp)
			day, ok := tl.bars[k]
			if !ok {
				day = make(map[string]domain.Bar)
				tl.bars[k] = day
				tl.Dates = append(tl.Dates, k)
			}
			day[sym] = b
		}
	}
	sort.Strings(tl.Symbols)
	sort.Slice(tl.Dates, func(i, j int) bool { return tl.Dates[i].Before(tl.Dates[j]) })
	return tl
}

// Len returns the number of distinct dates.
func (tl *Timeline) Len() int { return len(tl.Dates) }

// Bar returns the bar for symbol on date. ok is false when the symbol has
// no bar that date.
func (tl *Timeline) Bar(date time.Time, symbol string) (domain.Bar, bool) {
	b, ok := tl.bars[dateKey(date)][symbol]
	return b, ok
}

// BarsOn returns every bar available on date keyed by symbol.
func (tl *Timeline) BarsOn(date time.Time) map[string]domain.Bar {
	return tl.bars[dateKey(date)]
}

// ---------------------------------------------------------------------------
// Signal index
// ---------------------------------------------------------------------------

// SignalIndex groups signals by the timeline date on which they become
// known.
type SignalIndex struct {
	byDate  map[time.Time][]domain.Signal
	dropped int
}

// IndexSignals assigns each signal to the first timeline date at or after
// its generation date, preserving input order within a date. Signals dated
// after the last timeline date are dropped.
func IndexSignals(signals []domain.Signal, tl *Timeline) *SignalIndex {
	idx := &SignalIndex{byDate: make(map[time.Time][]domain.Signal)}
	if tl.Len() == 0 {
		idx.dropped = len(signals)
		return idx
	}
	for _, s := range signals {
		k := dateKey(s.Date)
		i := sort.Search(len(tl.Dates), func(i int) bool { return !tl.Dates[i].Before(k) })
		if i == len(tl.Dates) {
			idx.dropped++
			continue
		}
		d := tl.Dates[i]
		idx.byDate[d] = append(idx.byDate[d], s)
	}
	return idx
}

// On returns the signals known on date.
func (idx *SignalIndex) On(date time.Time) []domain.Signal {
	return idx.byDate[dateKey(date)]
}

// Dropped returns the number of signals that fell after the timeline.
func (idx *SignalIndex) Dropped() int { return idx.dropped }
