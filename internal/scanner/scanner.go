// Package scanner walks every admissible strike pair of a trading day,
// scores each with a quick per-minute worst-case heuristic, confirms the
// candidate entry with the full grid search, and ranks the results three
// ways (safety, profit, risk/reward).
//
// Pairs are scanned in parallel; each pair only reads immutable series, and
// the final orderings come from explicit sorts, never completion order.
package scanner

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mhalloran/indexarb/internal/config"
	"github.com/mhalloran/indexarb/internal/errs"
	"github.com/mhalloran/indexarb/internal/marketdata"
	"github.com/mhalloran/indexarb/internal/models"
	"github.com/mhalloran/indexarb/internal/normalize"
	"github.com/mhalloran/indexarb/internal/pnl"
	"github.com/mhalloran/indexarb/internal/position"
)

// minSpreadPoints is the fewest joined observations a pair needs before it
// is worth scoring.
const minSpreadPoints = 5

// Input carries one scan request. Trades and Quotes may be nil; when both
// are nil the scan returns no results.
type Input struct {
	Trades         marketdata.OptionSeries
	Quotes         marketdata.QuoteSeries
	Sym1Underlying marketdata.UnderlyingSeries
	Sym2Underlying marketdata.UnderlyingSeries
	Right          models.Right
	Config         models.StrategyConfig
	MinVolume      int
	HideIlliquid   bool
	// Workers bounds pair-level parallelism; <= 0 means serial.
	Workers int
}

// Output is one frozen scan result set with its three orderings. All three
// are views over the same results; a second scan with identical inputs
// produces identical output.
type Output struct {
	RunID           string              `json:"run_id"`
	PairsConsidered int                 `json:"pairs_considered"`
	BySafety        []models.ScanResult `json:"by_safety"`
	ByProfit        []models.ScanResult `json:"by_profit"`
	ByRiskReward    []models.ScanResult `json:"by_risk_reward"`
	Partial         bool                `json:"partial"`
	Duration        time.Duration       `json:"duration"`
}

// MatchStrikePairs emits every (sym1_strike, sym2_strike) pair whose sym2
// strike lies within tolerance of sym1_strike * openRatio.
func MatchStrikePairs(sym1Strikes, sym2Strikes []float64, openRatio, tolerance float64) [][2]float64 {
	var pairs [][2]float64
	for _, s1 := range sym1Strikes {
		target := s1 * openRatio
		if target <= 0 {
			continue
		}
		for _, s2 := range sym2Strikes {
			if math.Abs(s2-target)/target <= tolerance {
				pairs = append(pairs, [2]float64{s1, s2})
			}
		}
	}
	return pairs
}

// Scan runs the full pipeline for one day. A cancelled context aborts
// between pairs and returns Partial=true with no results.
func Scan(ctx context.Context, in Input) (*Output, error) {
	start := time.Now()
	out := &Output{RunID: uuid.NewString()}

	if len(in.Sym1Underlying) == 0 || len(in.Sym2Underlying) == 0 {
		return nil, fmt.Errorf("%w: underlying series required for both symbols", errs.ErrPreconditionNotMet)
	}
	if !in.Right.Valid() {
		return nil, fmt.Errorf("%w: unknown right %q", errs.ErrInvalidArgument, in.Right)
	}
	if in.MinVolume <= 0 {
		in.MinVolume = config.DefaultMinVolume
	}

	openSym1 := in.Sym1Underlying[0].Close
	openSym2 := in.Sym2Underlying[0].Close
	if openSym1 <= 0 || openSym2 <= 0 {
		return nil, fmt.Errorf("%w: non-positive opening close", errs.ErrInconsistentData)
	}
	openRatio := openSym2 / openSym1

	var sym1Strikes, sym2Strikes []float64
	switch {
	case in.Trades != nil:
		sym1Strikes = in.Trades.Strikes(in.Config.Sym1, in.Right)
		sym2Strikes = in.Trades.Strikes(in.Config.Sym2, in.Right)
	case in.Quotes != nil:
		sym1Strikes = in.Quotes.Strikes(in.Config.Sym1, in.Right)
		sym2Strikes = in.Quotes.Strikes(in.Config.Sym2, in.Right)
	default:
		// No options pricing for the day.
		out.Duration = time.Since(start)
		return out, nil
	}

	pairs := MatchStrikePairs(sym1Strikes, sym2Strikes, openRatio, config.ScannerPairTolerance)
	out.PairsConsidered = len(pairs)

	results := make([]*models.ScanResult, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	if in.Workers > 0 {
		g.SetLimit(in.Workers)
	} else {
		g.SetLimit(1)
	}

	for i, pair := range pairs {
		g.Go(func() error {
			// Cancellation is checked between pairs, not inside one.
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = scanPair(in, pair[0], pair[1], openRatio, openSym1, openSym2)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		out.Partial = true
		out.Duration = time.Since(start)
		return out, fmt.Errorf("%w: %v", errs.ErrCancelled, err)
	}

	var kept []models.ScanResult
	for _, r := range results {
		if r != nil {
			kept = append(kept, *r)
		}
	}

	out.BySafety = RankBySafety(kept)
	out.ByProfit = RankByProfit(kept)
	out.ByRiskReward = RankByRiskReward(kept)
	out.Duration = time.Since(start)
	return out, nil
}

// scanPair scores one strike pair. Returns nil when the pair is skipped
// (illiquid or too few joined observations); recoverable per-pair failures
// come back as a ScanResult carrying only a warning.
func scanPair(in Input, sym1Strike, sym2Strike, openRatio, openSym1, openSym2 float64) *models.ScanResult {
	key1 := marketdata.ContractKey{Symbol: in.Config.Sym1, Strike: sym1Strike, Right: in.Right}
	key2 := marketdata.ContractKey{Symbol: in.Config.Sym2, Strike: sym2Strike, Right: in.Right}

	var p1, p2 []normalize.PricePoint
	var vol1, vol2 int64
	usingMidpoint := false

	if in.Trades != nil {
		bars1 := in.Trades.Contract(key1)
		bars2 := in.Trades.Contract(key2)
		vol1 = bars1.TotalVolume()
		vol2 = bars2.TotalVolume()
		if in.HideIlliquid && (vol1 < int64(in.MinVolume) || vol2 < int64(in.MinVolume)) {
			return nil
		}
		liquid1 := bars1.Liquid()
		liquid2 := bars2.Liquid()
		if len(liquid1) == 0 || len(liquid2) == 0 {
			return nil
		}

		// Prefer quote midpoints, restricted to minutes with real trade
		// volume, when both sides have two-sided quotes.
		if in.Quotes != nil {
			q1 := in.Quotes.Contract(key1).Valid()
			q2 := in.Quotes.Contract(key2).Valid()
			if len(q1) > 0 && len(q2) > 0 {
				p1 = restrictToTimes(normalize.QuotePoints(q1), liquidTimes(liquid1))
				p2 = restrictToTimes(normalize.QuotePoints(q2), liquidTimes(liquid2))
				usingMidpoint = true
			}
		}
		if !usingMidpoint {
			p1 = normalize.TradePoints(liquid1)
			p2 = normalize.TradePoints(liquid2)
		}
	} else {
		q1 := in.Quotes.Contract(key1).Valid()
		q2 := in.Quotes.Contract(key2).Valid()
		vol1, vol2 = int64(len(q1)), int64(len(q2))
		if len(q1) == 0 || len(q2) == 0 {
			return nil
		}
		p1 = normalize.QuotePoints(q1)
		p2 = normalize.QuotePoints(q2)
		usingMidpoint = true
	}

	spread := normalize.SpreadSeries(p1, p2, openRatio)
	if len(spread) < minSpreadPoints {
		return nil
	}

	m1 := position.MoneynessPct(sym1Strike, openSym1)
	m2 := position.MoneynessPct(sym2Strike, openSym2)
	moneynessDiff := math.Abs(m1 - m2)

	// Quick heuristic picks the candidate entry time; argmax ties keep the
	// earliest minute.
	bestIdx, maxIdx := 0, 0
	bestQuick := math.Inf(-1)
	maxAbs := math.Inf(-1)
	for i, pt := range spread {
		quick := normalize.QuickWorstCase(pt.Spread, openRatio, config.GridBasisDriftPct,
			sym1Strike, in.Config.QtyRatio, moneynessDiff)
		if quick > bestQuick {
			bestQuick = quick
			bestIdx = i
		}
		if abs := math.Abs(pt.Spread); abs > maxAbs {
			maxAbs = abs
			maxIdx = i
		}
	}
	maxPt := spread[maxIdx]
	entryPt := spread[bestIdx]

	// Credit implied at the max-spread minute, directed by the spread sign.
	sym2AtMax := maxPt.Sym2Normalized * openRatio
	qty := float64(in.Config.QtyRatio)
	var credit float64
	direction := models.ScanSellSym1
	if maxPt.Spread > 0 {
		direction = models.ScanSellSym2
		credit = sym2AtMax*models.SharesPerContract - maxPt.Sym1Price*qty*models.SharesPerContract
	} else {
		credit = maxPt.Sym1Price*qty*models.SharesPerContract - sym2AtMax*models.SharesPerContract
	}

	result := &models.ScanResult{
		Sym1Strike:       sym1Strike,
		Sym2Strike:       sym2Strike,
		MoneynessDiffPct: moneynessDiff,
		MaxSpread:        math.Abs(maxPt.Spread),
		MaxSpreadTime:    maxPt.Time,
		CreditAtMax:      credit,
		BestWorstTime:    entryPt.Time,
		Direction:        direction,
		Sym1Volume:       vol1,
		Sym2Volume:       vol2,
		PriceSource:      models.SourceTrade,
		LiquidityOK:      vol1 >= int64(in.MinVolume) && vol2 >= int64(in.MinVolume),
	}
	if usingMidpoint {
		result.PriceSource = models.SourceMidpoint
	}

	worst, err := confirmWorstCase(in, sym1Strike, sym2Strike, entryPt, openRatio, direction)
	if err != nil {
		// Recoverable per-pair failure: keep the pair, record the problem.
		result.Warning = err.Error()
		result.BestWorstPnL = bestQuick
	} else {
		result.BestWorstPnL = worst
	}

	result.MaxRisk = math.Min(result.BestWorstPnL, 0)
	if result.BestWorstPnL >= 0 {
		result.RiskReward = math.Inf(1)
	} else {
		result.RiskReward = result.CreditAtMax / math.Abs(result.BestWorstPnL)
	}
	return result
}

// confirmWorstCase replays the candidate entry through the full grid: build
// the correctly-directed two-leg position at t* and return the grid's worst
// net P&L.
func confirmWorstCase(in Input, sym1Strike, sym2Strike float64,
	entry normalize.SpreadPoint, openRatio float64, direction models.ScanDirection) (float64, error) {

	u1, ok := in.Sym1Underlying.AsOf(entry.Time)
	if !ok {
		u1 = in.Sym1Underlying[0]
	}
	u2, ok := in.Sym2Underlying.AsOf(entry.Time)
	if !ok {
		u2 = in.Sym2Underlying[0]
	}

	sym1OptPrice := entry.Sym1Price
	sym2OptPrice := entry.Sym2Normalized * openRatio

	var sellSym, buySym string
	var sellStrike, buyStrike, sellPrice, buyPrice float64
	var sellQty, buyQty int
	if direction == models.ScanSellSym2 {
		sellSym, buySym = in.Config.Sym2, in.Config.Sym1
		sellStrike, buyStrike = sym2Strike, sym1Strike
		sellPrice, buyPrice = sym2OptPrice, sym1OptPrice
		sellQty, buyQty = 1, in.Config.QtyRatio
	} else {
		sellSym, buySym = in.Config.Sym1, in.Config.Sym2
		sellStrike, buyStrike = sym1Strike, sym2Strike
		sellPrice, buyPrice = sym1OptPrice, sym2OptPrice
		sellQty, buyQty = in.Config.QtyRatio, 1
	}

	sellLeg, err := models.NewLeg(sellSym, sellStrike, in.Right, models.ActionSell, sellQty, sellPrice)
	if err != nil {
		return 0, err
	}
	buyLeg, err := models.NewLeg(buySym, buyStrike, in.Right, models.ActionBuy, buyQty, buyPrice)
	if err != nil {
		return 0, err
	}

	credit := position.Credit(sellPrice, sellQty, buyPrice, buyQty)
	pos := &models.Position{
		StrategyType: models.StrategyCallsOnly,
		Legs:         []models.Leg{sellLeg, buyLeg},
		CallCredit:   credit,
		TotalCredit:  credit,
	}
	if in.Right == models.RightPut {
		pos.StrategyType = models.StrategyPutsOnly
		pos.CallCredit = 0
		pos.PutCredit = credit
	}

	bw, err := pnl.BestWorstCase(pos, in.Config.Sym1, in.Config.Sym2, u1.Close, u2.Close)
	if err != nil {
		return 0, err
	}
	return bw.Worst.NetPnL, nil
}

func liquidTimes(bars marketdata.OptionSeries) map[time.Time]struct{} {
	out := make(map[time.Time]struct{}, len(bars))
	for _, b := range bars {
		out[b.Time] = struct{}{}
	}
	return out
}

func restrictToTimes(points []normalize.PricePoint, times map[time.Time]struct{}) []normalize.PricePoint {
	out := make([]normalize.PricePoint, 0, len(points))
	for _, p := range points {
		if _, ok := times[p.Time]; ok {
			out = append(out, p)
		}
	}
	return out
}

// rank sorts a copy of results by the primary key descending, breaking ties
// by sym1 strike then sym2 strike ascending.
func rank(results []models.ScanResult, primary func(models.ScanResult) float64) []models.ScanResult {
	out := make([]models.ScanResult, len(results))
	copy(out, results)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := primary(out[i]), primary(out[j])
		if pi != pj {
			return pi > pj
		}
		if out[i].Sym1Strike != out[j].Sym1Strike {
			return out[i].Sym1Strike < out[j].Sym1Strike
		}
		return out[i].Sym2Strike < out[j].Sym2Strike
	})
	return out
}

// RankBySafety orders results by full-grid worst-case P&L, best first.
func RankBySafety(results []models.ScanResult) []models.ScanResult {
	return rank(results, func(r models.ScanResult) float64 { return r.BestWorstPnL })
}

// RankByProfit orders results by entry credit, largest first.
func RankByProfit(results []models.ScanResult) []models.ScanResult {
	return rank(results, func(r models.ScanResult) float64 { return r.CreditAtMax })
}

// RankByRiskReward orders results by credit/|worst|, treating a
// non-negative worst case as infinitely favorable.
func RankByRiskReward(results []models.ScanResult) []models.ScanResult {
	return rank(results, func(r models.ScanResult) float64 { return r.RiskReward })
}
