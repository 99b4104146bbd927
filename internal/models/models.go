// Package models defines the typed records shared by the analytical core:
// market data bars, liquidity-aware price quotes, position legs, and scan
// results. Construction functions validate invariants and return
// errs.ErrInvalidArgument on failure.
package models

import (
	"fmt"
	"time"

	"github.com/mhalloran/indexarb/internal/errs"
)

// SharesPerContract is the option contract multiplier.
const SharesPerContract = 100.0

// Right identifies an option as a call or a put.
type Right string

const (
	// RightCall is a call option.
	RightCall Right = "C"
	// RightPut is a put option.
	RightPut Right = "P"
)

// Valid returns true if the Right is one of the defined constants.
func (r Right) Valid() bool {
	return r == RightCall || r == RightPut
}

// Action identifies the side of a leg.
type Action string

const (
	// ActionBuy opens a long leg.
	ActionBuy Action = "BUY"
	// ActionSell opens a short leg.
	ActionSell Action = "SELL"
)

// Valid returns true if the Action is one of the defined constants.
func (a Action) Valid() bool {
	return a == ActionBuy || a == ActionSell
}

// StrategyType selects which spreads a position carries.
type StrategyType string

const (
	// StrategyFull carries both a call spread and a put spread.
	StrategyFull StrategyType = "full"
	// StrategyCallsOnly carries only the call spread.
	StrategyCallsOnly StrategyType = "calls_only"
	// StrategyPutsOnly carries only the put spread.
	StrategyPutsOnly StrategyType = "puts_only"
)

// Valid returns true if the StrategyType is one of the defined constants.
func (s StrategyType) Valid() bool {
	switch s {
	case StrategyFull, StrategyCallsOnly, StrategyPutsOnly:
		return true
	default:
		return false
	}
}

// HasCalls reports whether the strategy includes the call spread.
func (s StrategyType) HasCalls() bool { return s == StrategyFull || s == StrategyCallsOnly }

// HasPuts reports whether the strategy includes the put spread.
func (s StrategyType) HasPuts() bool { return s == StrategyFull || s == StrategyPutsOnly }

// Direction encodes which symbol of the pair is sold in a spread.
type Direction string

const (
	// SellSym2BuySym1: short 1 sym2 contract, long qty_ratio sym1 contracts.
	SellSym2BuySym1 Direction = "sell_sym2_buy_sym1"
	// SellSym1BuySym2: short qty_ratio sym1 contracts, long 1 sym2 contract.
	SellSym1BuySym2 Direction = "sell_sym1_buy_sym2"
)

// Valid returns true if the Direction is one of the defined constants.
func (d Direction) Valid() bool {
	return d == SellSym2BuySym1 || d == SellSym1BuySym2
}

// StrategyConfig is the immutable per-analysis strategy selection.
type StrategyConfig struct {
	Sym1           string       `json:"sym1"`
	Sym2           string       `json:"sym2"`
	QtyRatio       int          `json:"qty_ratio"`
	StrikeStepSym2 int          `json:"strike_step_sym2"`
	StrategyType   StrategyType `json:"strategy_type"`
	CallDirection  Direction    `json:"call_direction"`
	PutDirection   Direction    `json:"put_direction"`
}

// NewStrategyConfig validates and builds a StrategyConfig.
func NewStrategyConfig(sym1, sym2 string, qtyRatio, strikeStep int,
	strategyType StrategyType, callDir, putDir Direction) (StrategyConfig, error) {
	var zero StrategyConfig
	if sym1 == "" || sym2 == "" {
		return zero, fmt.Errorf("%w: sym1 and sym2 are required", errs.ErrInvalidArgument)
	}
	if sym1 == sym2 {
		return zero, fmt.Errorf("%w: sym1 and sym2 must differ", errs.ErrInvalidArgument)
	}
	if qtyRatio <= 0 {
		return zero, fmt.Errorf("%w: qty_ratio must be positive, got %d", errs.ErrInvalidArgument, qtyRatio)
	}
	if strikeStep <= 0 {
		return zero, fmt.Errorf("%w: strike_step_sym2 must be positive, got %d", errs.ErrInvalidArgument, strikeStep)
	}
	if !strategyType.Valid() {
		return zero, fmt.Errorf("%w: unknown strategy_type %q", errs.ErrInvalidArgument, strategyType)
	}
	if !callDir.Valid() {
		return zero, fmt.Errorf("%w: unknown call_direction %q", errs.ErrInvalidArgument, callDir)
	}
	if !putDir.Valid() {
		return zero, fmt.Errorf("%w: unknown put_direction %q", errs.ErrInvalidArgument, putDir)
	}
	return StrategyConfig{
		Sym1:           sym1,
		Sym2:           sym2,
		QtyRatio:       qtyRatio,
		StrikeStepSym2: strikeStep,
		StrategyType:   strategyType,
		CallDirection:  callDir,
		PutDirection:   putDir,
	}, nil
}

// UnderlyingBar is one minute of underlying OHLCV data.
// Timestamps are UTC and minute-aligned.
type UnderlyingBar struct {
	Symbol string    `json:"symbol"`
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// OptionBar is one minute of option trade data. Volume=0 marks a
// carried-forward stale print from the upstream feed: the bar exists but is
// not executable.
type OptionBar struct {
	Symbol string    `json:"symbol"`
	Strike float64   `json:"strike"`
	Right  Right     `json:"right"`
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// OptionQuoteBar is one minute of option bid/ask data.
type OptionQuoteBar struct {
	Symbol   string    `json:"symbol"`
	Strike   float64   `json:"strike"`
	Right    Right     `json:"right"`
	Time     time.Time `json:"time"`
	Bid      float64   `json:"bid"`
	Ask      float64   `json:"ask"`
	Midpoint float64   `json:"midpoint"`
}

// Valid reports whether the quote is two-sided (bid>0 and ask>0).
func (q OptionQuoteBar) Valid() bool {
	return q.Bid > 0 && q.Ask > 0
}

// PriceSource identifies where a resolved price came from.
type PriceSource string

const (
	// SourceMidpoint: price is (bid+ask)/2 from a valid quote bar.
	SourceMidpoint PriceSource = "midpoint"
	// SourceTrade: price is the close of a trade bar.
	SourceTrade PriceSource = "trade"
)

// LiquidityWarning annotates a price that is usable but suspect.
type LiquidityWarning string

const (
	// WarnWideSpread: bid-ask spread exceeds the wide-spread threshold.
	WarnWideSpread LiquidityWarning = "wide_spread"
	// WarnLowVolume: trade volume is below the minimum.
	WarnLowVolume LiquidityWarning = "low_volume"
	// WarnNoQuote: price fell back to trades because quotes were absent or
	// one-sided.
	WarnNoQuote LiquidityWarning = "no_quote"
)

// PriceQuote is a liquidity-aware resolved option price. It is derived on
// demand and never persisted. A stale quote may be displayed but must not
// back a tradable position; position.Build enforces that gate.
type PriceQuote struct {
	Price     float64          `json:"price"`
	Source    PriceSource      `json:"source"`
	Volume    int64            `json:"volume"`
	Bid       *float64         `json:"bid,omitempty"`
	Ask       *float64         `json:"ask,omitempty"`
	Spread    *float64         `json:"spread,omitempty"`
	SpreadPct *float64         `json:"spread_pct,omitempty"`
	Stale     bool             `json:"is_stale"`
	Warning   LiquidityWarning `json:"warning,omitempty"`
}

// Leg is a single option leg of a position.
type Leg struct {
	Symbol     string  `json:"symbol"`
	Strike     float64 `json:"strike"`
	Right      Right   `json:"right"`
	Action     Action  `json:"action"`
	Quantity   int     `json:"quantity"`
	EntryPrice float64 `json:"entry_price"`
}

// NewLeg validates and builds a Leg.
func NewLeg(symbol string, strike float64, right Right, action Action,
	quantity int, entryPrice float64) (Leg, error) {
	var zero Leg
	if symbol == "" {
		return zero, fmt.Errorf("%w: leg symbol is required", errs.ErrInvalidArgument)
	}
	if strike <= 0 {
		return zero, fmt.Errorf("%w: leg strike must be positive, got %v", errs.ErrInvalidArgument, strike)
	}
	if !right.Valid() {
		return zero, fmt.Errorf("%w: unknown right %q", errs.ErrInvalidArgument, right)
	}
	if !action.Valid() {
		return zero, fmt.Errorf("%w: unknown action %q", errs.ErrInvalidArgument, action)
	}
	if quantity <= 0 {
		return zero, fmt.Errorf("%w: leg quantity must be positive, got %d", errs.ErrInvalidArgument, quantity)
	}
	if entryPrice < 0 {
		return zero, fmt.Errorf("%w: leg entry price must be >= 0, got %v", errs.ErrInvalidArgument, entryPrice)
	}
	return Leg{
		Symbol:     symbol,
		Strike:     strike,
		Right:      right,
		Action:     action,
		Quantity:   quantity,
		EntryPrice: entryPrice,
	}, nil
}

// CashFlow returns the leg's cash flow at entry in dollars: positive for a
// sell, negative for a buy.
func (l Leg) CashFlow() float64 {
	sign := -1.0
	if l.Action == ActionSell {
		sign = 1.0
	}
	return sign * l.EntryPrice * float64(l.Quantity) * SharesPerContract
}

// Position is a complete multi-leg position with computed entry values.
type Position struct {
	StrategyType    StrategyType `json:"strategy_type"`
	Legs            []Leg        `json:"legs"`
	CallCredit      float64      `json:"call_credit"`
	PutCredit       float64      `json:"put_credit"`
	TotalCredit     float64      `json:"total_credit"`
	EstimatedMargin float64      `json:"estimated_margin"`
	Warnings        []string     `json:"warnings,omitempty"`
}

// ScanDirection encodes which symbol the scanner would sell at the observed
// spread.
type ScanDirection string

const (
	// ScanSellSym2: sym2 is rich relative to sym1.
	ScanSellSym2 ScanDirection = "sell_sym2"
	// ScanSellSym1: sym1 is rich relative to sym2.
	ScanSellSym1 ScanDirection = "sell_sym1"
)

// ScanResult is the outcome of scanning one strike pair. Request-scoped;
// discarded between runs.
type ScanResult struct {
	Sym1Strike       float64       `json:"sym1_strike"`
	Sym2Strike       float64       `json:"sym2_strike"`
	MoneynessDiffPct float64       `json:"moneyness_diff_pct"`
	MaxSpread        float64       `json:"max_spread"`
	MaxSpreadTime    time.Time     `json:"max_spread_time"`
	CreditAtMax      float64       `json:"credit_at_max"`
	BestWorstPnL     float64       `json:"best_worst_pnl"`
	BestWorstTime    time.Time     `json:"best_worst_time"`
	Direction        ScanDirection `json:"direction"`
	Sym1Volume       int64         `json:"sym1_volume"`
	Sym2Volume       int64         `json:"sym2_volume"`
	PriceSource      PriceSource   `json:"price_source"`
	LiquidityOK      bool          `json:"liquidity_ok"`
	// MaxRisk is min(best_worst_pnl, 0).
	MaxRisk float64 `json:"max_risk"`
	// RiskReward is credit / |worst|; +Inf when the worst case is
	// non-negative. Excluded from JSON because Inf does not marshal;
	// exporters derive a representation from MaxRisk and CreditAtMax.
	RiskReward float64 `json:"-"`
	// Warning records a per-pair recoverable error instead of aborting
	// the scan.
	Warning string `json:"warning,omitempty"`
}
