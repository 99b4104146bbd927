// Package normalize produces time-synchronized comparison series for a
// symbol pair: ratio-scaled option prices, per-minute option spreads, and
// underlying divergence. All joins are inner on timestamp; callers supply
// already-liquidity-filtered inputs and must handle empty output.
package normalize

import (
	"math"
	"time"

	"github.com/mhalloran/indexarb/internal/marketdata"
	"github.com/mhalloran/indexarb/internal/models"
)

// PricePoint is a (time, price) observation extracted from either source.
type PricePoint struct {
	Time  time.Time
	Price float64
}

// SpreadPoint is one row of a spread series between sym1 and ratio-scaled
// sym2 option prices.
type SpreadPoint struct {
	Time           time.Time `json:"time"`
	Sym1Price      float64   `json:"sym1_price"`
	Sym2Normalized float64   `json:"sym2_normalized"`
	// Spread = sym2_normalized - sym1_price. Positive means sym2 is rich
	// (sell sym2, buy sym1).
	Spread    float64 `json:"spread"`
	SpreadPct float64 `json:"spread_pct"`
}

// DivergencePoint is one row of an underlying divergence series.
type DivergencePoint struct {
	Time          time.Time `json:"time"`
	TimeLabel     string    `json:"time_label"`
	CloseSym1     float64   `json:"close_sym1"`
	CloseSym2     float64   `json:"close_sym2"`
	PctChangeSym1 float64   `json:"pct_change_sym1"`
	PctChangeSym2 float64   `json:"pct_change_sym2"`
	// PctGap = pct_change_sym2 - pct_change_sym1.
	PctGap float64 `json:"pct_gap"`
	// DollarGap = close_sym2/qty_ratio - close_sym1.
	DollarGap float64 `json:"dollar_gap"`
}

// TradePoints extracts (time, close) points from trade bars.
func TradePoints(bars marketdata.OptionSeries) []PricePoint {
	out := make([]PricePoint, 0, len(bars))
	for _, b := range bars {
		out = append(out, PricePoint{Time: b.Time, Price: b.Close})
	}
	return out
}

// QuotePoints extracts (time, midpoint) points from quote bars.
func QuotePoints(bars marketdata.QuoteSeries) []PricePoint {
	out := make([]PricePoint, 0, len(bars))
	for _, b := range bars {
		out = append(out, PricePoint{Time: b.Time, Price: b.Midpoint})
	}
	return out
}

// NormalizeSeries divides every price by ratio, scaling sym2 prices into
// sym1 terms.
func NormalizeSeries(points []PricePoint, ratio float64) []PricePoint {
	out := make([]PricePoint, 0, len(points))
	for _, p := range points {
		out = append(out, PricePoint{Time: p.Time, Price: p.Price / ratio})
	}
	return out
}

// SpreadSeries joins sym1 and sym2 option prices on timestamp, scaling sym2
// by ratio, and computes the per-minute spread. Output is empty when the
// series share no timestamps.
func SpreadSeries(sym1, sym2 []PricePoint, ratio float64) []SpreadPoint {
	sym2ByTime := make(map[time.Time]float64, len(sym2))
	for _, p := range sym2 {
		sym2ByTime[p.Time] = p.Price / ratio
	}

	out := make([]SpreadPoint, 0, len(sym1))
	for _, p := range sym1 {
		normalized, ok := sym2ByTime[p.Time]
		if !ok {
			continue
		}
		spread := normalized - p.Price
		pct := 0.0
		if p.Price != 0 {
			pct = spread / p.Price * 100
		}
		out = append(out, SpreadPoint{
			Time:           p.Time,
			Sym1Price:      p.Price,
			Sym2Normalized: normalized,
			Spread:         spread,
			SpreadPct:      pct,
		})
	}
	return out
}

// Divergence joins two underlying series on timestamp and computes each
// symbol's percent change from its first bar plus the gap between them.
func Divergence(sym1, sym2 marketdata.UnderlyingSeries, qtyRatio int) []DivergencePoint {
	if len(sym1) == 0 || len(sym2) == 0 {
		return nil
	}
	openSym1 := sym1[0].Close
	openSym2 := sym2[0].Close

	sym2ByTime := make(map[time.Time]float64, len(sym2))
	for _, b := range sym2 {
		sym2ByTime[b.Time] = b.Close
	}

	out := make([]DivergencePoint, 0, len(sym1))
	for _, b := range sym1 {
		closeSym2, ok := sym2ByTime[b.Time]
		if !ok {
			continue
		}
		pct1 := (b.Close - openSym1) / openSym1 * 100
		pct2 := (closeSym2 - openSym2) / openSym2 * 100
		out = append(out, DivergencePoint{
			Time:          b.Time,
			TimeLabel:     marketdata.ETLabel(b.Time),
			CloseSym1:     b.Close,
			CloseSym2:     closeSym2,
			PctChangeSym1: pct1,
			PctChangeSym2: pct2,
			PctGap:        pct2 - pct1,
			DollarGap:     closeSym2/float64(qtyRatio) - b.Close,
		})
	}
	return out
}

// QuickWorstCase is the scalar ranking heuristic evaluated per spread point:
// the spread captured as credit minus the worst basis-drift cost and the
// moneyness mismatch cost. It picks a candidate entry time; the reported
// worst case always comes from the full grid search.
func QuickWorstCase(spread float64, openRatio, basisDriftPct, sym1Strike float64,
	qtyRatio int, moneynessDiffPct float64) float64 {
	credit := math.Abs(spread) * float64(qtyRatio) * models.SharesPerContract
	basisCost := openRatio * basisDriftPct * sym1Strike * float64(qtyRatio) * models.SharesPerContract
	moneynessCost := moneynessDiffPct / 100 * sym1Strike * float64(qtyRatio) * models.SharesPerContract
	return credit - basisCost - moneynessCost
}
