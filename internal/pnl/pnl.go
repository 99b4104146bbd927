// Package pnl computes settlement values, per-leg P&L, and the
// best/worst-case grid search over price movement and basis drift.
//
// Everything here is a pure function of its inputs: the grid is evaluated
// sequentially in a fixed order, so identical inputs yield bit-identical
// outputs.
package pnl

import (
	"fmt"

	"github.com/mhalloran/indexarb/internal/config"
	"github.com/mhalloran/indexarb/internal/errs"
	"github.com/mhalloran/indexarb/internal/models"
)

// Settlement returns the intrinsic value of an option at expiration:
// max(0, u-k) for a call, max(0, k-u) for a put.
func Settlement(underlying, strike float64, right models.Right) float64 {
	var v float64
	if right == models.RightCall {
		v = underlying - strike
	} else {
		v = strike - underlying
	}
	if v < 0 {
		return 0
	}
	return v
}

// PerLegPnL returns the cash P&L of one leg against a terminal option
// price: (terminal-entry)·qty·100 for a buy, (entry-terminal)·qty·100 for a
// sell. For options held to expiration the terminal price is the
// settlement intrinsic.
func PerLegPnL(leg models.Leg, terminal float64) float64 {
	if leg.Action == models.ActionBuy {
		return (terminal - leg.EntryPrice) * float64(leg.Quantity) * models.SharesPerContract
	}
	return (leg.EntryPrice - terminal) * float64(leg.Quantity) * models.SharesPerContract
}

// LegOutcome is one leg's settlement value and P&L in a scenario.
type LegOutcome struct {
	Leg        models.Leg `json:"leg"`
	Settlement float64    `json:"settlement"`
	PnL        float64    `json:"pnl"`
}

// Breakdown carries the entry credits and per-leg detail of a scenario.
type Breakdown struct {
	CallCredit  float64      `json:"call_credit"`
	PutCredit   float64      `json:"put_credit"`
	TotalCredit float64      `json:"total_credit"`
	Legs        []LegOutcome `json:"legs"`
}

// Scenario is one evaluated grid point.
type Scenario struct {
	NetPnL    float64 `json:"net_pnl"`
	Sym1Price float64 `json:"sym1_price"`
	Sym2Price float64 `json:"sym2_price"`
	// BasisDriftPct is the drift coordinate as a percentage of the entry
	// ratio.
	BasisDriftPct float64   `json:"basis_drift_pct"`
	Breakdown     Breakdown `json:"breakdown"`
}

// BestWorst pairs the extreme scenarios of a grid search.
type BestWorst struct {
	Best  Scenario `json:"best"`
	Worst Scenario `json:"worst"`
}

// Settle evaluates a position at terminal underlying prices, returning the
// net P&L and per-leg outcomes. Per-leg P&L already nets against entry
// prices, so the sum equals entry credit minus settlement cost.
func Settle(pos *models.Position, sym1, sym2 string, s1, s2 float64) (float64, []LegOutcome, error) {
	net := 0.0
	outcomes := make([]LegOutcome, 0, len(pos.Legs))
	for _, leg := range pos.Legs {
		var u float64
		switch leg.Symbol {
		case sym1:
			u = s1
		case sym2:
			u = s2
		default:
			return 0, nil, fmt.Errorf("%w: leg symbol %q is neither %q nor %q",
				errs.ErrInvalidArgument, leg.Symbol, sym1, sym2)
		}
		settle := Settlement(u, leg.Strike, leg.Right)
		legPnL := PerLegPnL(leg, settle)
		net += legPnL
		outcomes = append(outcomes, LegOutcome{Leg: leg, Settlement: settle, PnL: legPnL})
	}
	return net, outcomes, nil
}

// GridPrices returns the sym1 trial prices: GridPricePoints points evenly
// spaced across entry·(1±GridPriceRangePct).
func GridPrices(entrySym1 float64) []float64 {
	lo := entrySym1 * (1 - config.GridPriceRangePct)
	hi := entrySym1 * (1 + config.GridPriceRangePct)
	step := (hi - lo) / float64(config.GridPricePoints-1)
	out := make([]float64, config.GridPricePoints)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	return out
}

// BestWorstCase runs the full grid search: for each trial sym1 price and
// each basis drift level, sym2 settles at s1·(entry_sym2/entry_sym1)·(1+d),
// where the baseline ratio is the entry ratio and drift models basis
// error. Returns the argmax and argmin scenarios with coordinates and
// per-leg breakdowns. Ties keep the earlier grid point.
func BestWorstCase(pos *models.Position, sym1, sym2 string, entrySym1, entrySym2 float64) (BestWorst, error) {
	var zero BestWorst
	if pos == nil || len(pos.Legs) == 0 {
		return zero, fmt.Errorf("%w: position has no legs", errs.ErrInvalidArgument)
	}
	if entrySym1 <= 0 || entrySym2 <= 0 {
		return zero, fmt.Errorf("%w: entry prices must be positive, got sym1=%v sym2=%v",
			errs.ErrInvalidArgument, entrySym1, entrySym2)
	}

	entryRatio := entrySym2 / entrySym1
	drifts := config.GridBasisDriftLevels()

	first := true
	var best, worst Scenario
	for _, s1 := range GridPrices(entrySym1) {
		for _, drift := range drifts {
			s2 := s1 * entryRatio * (1 + drift)
			net, outcomes, err := Settle(pos, sym1, sym2, s1, s2)
			if err != nil {
				return zero, err
			}
			sc := Scenario{
				NetPnL:        net,
				Sym1Price:     s1,
				Sym2Price:     s2,
				BasisDriftPct: drift * 100,
				Breakdown: Breakdown{
					CallCredit:  pos.CallCredit,
					PutCredit:   pos.PutCredit,
					TotalCredit: pos.TotalCredit,
					Legs:        outcomes,
				},
			}
			if first {
				best, worst = sc, sc
				first = false
				continue
			}
			if sc.NetPnL > best.NetPnL {
				best = sc
			}
			if sc.NetPnL < worst.NetPnL {
				worst = sc
			}
		}
	}
	return BestWorst{Best: best, Worst: worst}, nil
}
