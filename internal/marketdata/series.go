package marketdata

import (
	"sort"
	"time"

	"github.com/mhalloran/indexarb/internal/models"
)

// Series are loaded per trading date and immutable afterwards, so they may
// be shared freely across concurrent scans.

// UnderlyingSeries is a time-ordered sequence of underlying bars.
type UnderlyingSeries []models.UnderlyingBar

// OptionSeries is a time-ordered sequence of option trade bars.
type OptionSeries []models.OptionBar

// QuoteSeries is a time-ordered sequence of option bid/ask bars.
type QuoteSeries []models.OptionQuoteBar

// ContractKey identifies a single option contract within a day.
type ContractKey struct {
	Symbol string
	Strike float64
	Right  models.Right
}

// Symbol returns the bars for one underlying symbol, preserving time order.
func (s UnderlyingSeries) Symbol(sym string) UnderlyingSeries {
	out := make(UnderlyingSeries, 0, len(s))
	for _, b := range s {
		if b.Symbol == sym {
			out = append(out, b)
		}
	}
	return out
}

// SplitSymbols splits an underlying series into per-symbol views.
func SplitSymbols(s UnderlyingSeries, sym1, sym2 string) (UnderlyingSeries, UnderlyingSeries) {
	return s.Symbol(sym1), s.Symbol(sym2)
}

// AsOf returns the latest bar at or before t, or false if t precedes the
// whole series.
func (s UnderlyingSeries) AsOf(t time.Time) (models.UnderlyingBar, bool) {
	idx := sort.Search(len(s), func(i int) bool { return s[i].Time.After(t) })
	if idx == 0 {
		return models.UnderlyingBar{}, false
	}
	return s[idx-1], true
}

// Symbols returns the distinct symbols present in the series.
func (s UnderlyingSeries) Symbols() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, b := range s {
		if _, ok := seen[b.Symbol]; !ok {
			seen[b.Symbol] = struct{}{}
			out = append(out, b.Symbol)
		}
	}
	sort.Strings(out)
	return out
}

// Contract returns the trade bars for one contract, preserving time order.
func (s OptionSeries) Contract(key ContractKey) OptionSeries {
	out := make(OptionSeries, 0)
	for _, b := range s {
		if b.Symbol == key.Symbol && b.Strike == key.Strike && b.Right == key.Right {
			out = append(out, b)
		}
	}
	return out
}

// Strikes returns the sorted distinct strikes observed for a symbol and
// right in the day's trade data.
func (s OptionSeries) Strikes(symbol string, right models.Right) []float64 {
	seen := make(map[float64]struct{})
	var out []float64
	for _, b := range s {
		if b.Symbol != symbol || b.Right != right {
			continue
		}
		if _, ok := seen[b.Strike]; !ok {
			seen[b.Strike] = struct{}{}
			out = append(out, b.Strike)
		}
	}
	sort.Float64s(out)
	return out
}

// AsOf returns the latest bar at or before t, or false if t precedes the
// whole series.
func (s OptionSeries) AsOf(t time.Time) (models.OptionBar, bool) {
	idx := sort.Search(len(s), func(i int) bool { return s[i].Time.After(t) })
	if idx == 0 {
		return models.OptionBar{}, false
	}
	return s[idx-1], true
}

// Liquid returns only bars with volume > 0.
func (s OptionSeries) Liquid() OptionSeries {
	out := make(OptionSeries, 0, len(s))
	for _, b := range s {
		if b.Volume > 0 {
			out = append(out, b)
		}
	}
	return out
}

// TotalVolume sums the series' volume.
func (s OptionSeries) TotalVolume() int64 {
	var total int64
	for _, b := range s {
		total += b.Volume
	}
	return total
}

// Contract returns the quote bars for one contract, preserving time order.
func (s QuoteSeries) Contract(key ContractKey) QuoteSeries {
	out := make(QuoteSeries, 0)
	for _, b := range s {
		if b.Symbol == key.Symbol && b.Strike == key.Strike && b.Right == key.Right {
			out = append(out, b)
		}
	}
	return out
}

// Strikes returns the sorted distinct strikes observed for a symbol and
// right in the day's quote data.
func (s QuoteSeries) Strikes(symbol string, right models.Right) []float64 {
	seen := make(map[float64]struct{})
	var out []float64
	for _, b := range s {
		if b.Symbol != symbol || b.Right != right {
			continue
		}
		if _, ok := seen[b.Strike]; !ok {
			seen[b.Strike] = struct{}{}
			out = append(out, b.Strike)
		}
	}
	sort.Float64s(out)
	return out
}

// Valid returns only two-sided quote bars (bid>0 and ask>0).
func (s QuoteSeries) Valid() QuoteSeries {
	out := make(QuoteSeries, 0, len(s))
	for _, b := range s {
		if b.Valid() {
			out = append(out, b)
		}
	}
	return out
}

// AsOf returns the latest bar at or before t, or false if t precedes the
// whole series.
func (s QuoteSeries) AsOf(t time.Time) (models.OptionQuoteBar, bool) {
	idx := sort.Search(len(s), func(i int) bool { return s[i].Time.After(t) })
	if idx == 0 {
		return models.OptionQuoteBar{}, false
	}
	return s[idx-1], true
}
