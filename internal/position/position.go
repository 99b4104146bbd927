// Package position builds the four-legged market-neutral position from a
// direction pair and resolved entry prices, computing credits and the
// margin estimate. It is the single gate that keeps tradable positions off
// stale prices.
package position

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/mhalloran/indexarb/internal/config"
	"github.com/mhalloran/indexarb/internal/errs"
	"github.com/mhalloran/indexarb/internal/models"
)

// LegSlot names one of the four possible legs when passing entry prices.
type LegSlot string

const (
	// SlotSym1Call is the sym1 call leg.
	SlotSym1Call LegSlot = "sym1_call"
	// SlotSym2Call is the sym2 call leg.
	SlotSym2Call LegSlot = "sym2_call"
	// SlotSym1Put is the sym1 put leg.
	SlotSym1Put LegSlot = "sym1_put"
	// SlotSym2Put is the sym2 put leg.
	SlotSym2Put LegSlot = "sym2_put"
)

// EntryPrices maps leg slots to their resolved price quotes. A nil entry
// means the price could not be resolved.
type EntryPrices map[LegSlot]*models.PriceQuote

// BuildInput carries the strikes, prices, and entry underlying levels for
// one position.
type BuildInput struct {
	Sym1Strike float64
	Sym2Strike float64
	Prices     EntryPrices
	// EntrySym1 and EntrySym2 are the underlying prices at entry, used for
	// the moneyness check.
	EntrySym1 float64
	EntrySym2 float64
}

// Build constructs a Position per the strategy's direction pair.
//
// Refusals: any required leg with an absent or stale PriceQuote fails with
// precondition_not_met naming the offending slot(s). A net debit (negative
// credit) is allowed; ranking and presentation surface it.
func Build(cfg models.StrategyConfig, in BuildInput) (*models.Position, error) {
	if !cfg.StrategyType.Valid() {
		return nil, fmt.Errorf("%w: unknown strategy_type %q", errs.ErrInvalidArgument, cfg.StrategyType)
	}
	if cfg.QtyRatio <= 0 {
		return nil, fmt.Errorf("%w: qty_ratio must be positive, got %d", errs.ErrInvalidArgument, cfg.QtyRatio)
	}

	if err := checkStale(cfg, in.Prices); err != nil {
		return nil, err
	}

	pos := &models.Position{StrategyType: cfg.StrategyType}

	if cfg.StrategyType.HasCalls() {
		legs, credit, margin, err := buildSpread(cfg, in, models.RightCall, cfg.CallDirection)
		if err != nil {
			return nil, err
		}
		pos.Legs = append(pos.Legs, legs...)
		pos.CallCredit = credit
		pos.EstimatedMargin += margin
	}
	if cfg.StrategyType.HasPuts() {
		legs, credit, margin, err := buildSpread(cfg, in, models.RightPut, cfg.PutDirection)
		if err != nil {
			return nil, err
		}
		pos.Legs = append(pos.Legs, legs...)
		pos.PutCredit = credit
		pos.EstimatedMargin += margin
	}
	pos.TotalCredit = pos.CallCredit + pos.PutCredit

	if warn := moneynessWarning(in); warn != "" {
		pos.Warnings = append(pos.Warnings, warn)
	}
	return pos, nil
}

// requiredSlots returns the leg slots the strategy type needs.
func requiredSlots(strategyType models.StrategyType) []LegSlot {
	var slots []LegSlot
	if strategyType.HasCalls() {
		slots = append(slots, SlotSym1Call, SlotSym2Call)
	}
	if strategyType.HasPuts() {
		slots = append(slots, SlotSym1Put, SlotSym2Put)
	}
	return slots
}

func checkStale(cfg models.StrategyConfig, prices EntryPrices) error {
	var missing, stale []string
	for _, slot := range requiredSlots(cfg.StrategyType) {
		pq, ok := prices[slot]
		if !ok || pq == nil {
			missing = append(missing, string(slot))
			continue
		}
		if pq.Stale {
			stale = append(stale, string(slot))
		}
	}
	sort.Strings(missing)
	sort.Strings(stale)
	switch {
	case len(missing) > 0 && len(stale) > 0:
		return fmt.Errorf("%w: no price for leg(s) %s; stale price for leg(s) %s",
			errs.ErrPreconditionNotMet, strings.Join(missing, ", "), strings.Join(stale, ", "))
	case len(missing) > 0:
		return fmt.Errorf("%w: no price for leg(s) %s",
			errs.ErrPreconditionNotMet, strings.Join(missing, ", "))
	case len(stale) > 0:
		return fmt.Errorf("%w: stale price for leg(s) %s",
			errs.ErrPreconditionNotMet, strings.Join(stale, ", "))
	}
	return nil
}

func buildSpread(cfg models.StrategyConfig, in BuildInput, right models.Right,
	direction models.Direction) ([]models.Leg, float64, float64, error) {

	sym1Slot, sym2Slot := SlotSym1Call, SlotSym2Call
	if right == models.RightPut {
		sym1Slot, sym2Slot = SlotSym1Put, SlotSym2Put
	}
	sym1Price := in.Prices[sym1Slot].Price
	sym2Price := in.Prices[sym2Slot].Price

	var sellSym, buySym string
	var sellStrike, buyStrike, sellPrice, buyPrice float64
	var sellQty, buyQty int

	switch direction {
	case models.SellSym2BuySym1:
		sellSym, buySym = cfg.Sym2, cfg.Sym1
		sellStrike, buyStrike = in.Sym2Strike, in.Sym1Strike
		sellPrice, buyPrice = sym2Price, sym1Price
		sellQty, buyQty = 1, cfg.QtyRatio
	case models.SellSym1BuySym2:
		sellSym, buySym = cfg.Sym1, cfg.Sym2
		sellStrike, buyStrike = in.Sym1Strike, in.Sym2Strike
		sellPrice, buyPrice = sym1Price, sym2Price
		sellQty, buyQty = cfg.QtyRatio, 1
	default:
		return nil, 0, 0, fmt.Errorf("%w: unknown direction %q", errs.ErrInvalidArgument, direction)
	}

	sellLeg, err := models.NewLeg(sellSym, sellStrike, right, models.ActionSell, sellQty, sellPrice)
	if err != nil {
		return nil, 0, 0, err
	}
	buyLeg, err := models.NewLeg(buySym, buyStrike, right, models.ActionBuy, buyQty, buyPrice)
	if err != nil {
		return nil, 0, 0, err
	}

	credit := Credit(sellPrice, sellQty, buyPrice, buyQty)
	margin := SpreadMargin(sellStrike, sellQty, credit)
	return []models.Leg{sellLeg, buyLeg}, credit, margin, nil
}

// Credit returns the net credit of selling one side and buying the other,
// in dollars. Negative values are net debits.
func Credit(sellPrice float64, sellQty int, buyPrice float64, buyQty int) float64 {
	return sellPrice*float64(sellQty)*models.SharesPerContract -
		buyPrice*float64(buyQty)*models.SharesPerContract
}

// SpreadMargin estimates one spread's margin requirement: MarginRate of the
// short notional minus the credit received, floored at zero. The long side
// is protective and adds nothing. This is a placeholder approximation, not
// a brokerage formula.
func SpreadMargin(sellStrike float64, sellQty int, credit float64) float64 {
	notional := config.MarginRate * sellStrike * float64(sellQty) * models.SharesPerContract
	return math.Max(0, notional-credit)
}

// MoneynessPct is (strike - underlying) / underlying as a percentage.
func MoneynessPct(strike, underlying float64) float64 {
	return (strike - underlying) / underlying * 100
}

// moneynessWarning returns a warning string when the two strikes sit at
// meaningfully different moneyness. A mismatch above the threshold is
// surfaced but never refused.
func moneynessWarning(in BuildInput) string {
	if in.EntrySym1 <= 0 || in.EntrySym2 <= 0 {
		return ""
	}
	m1 := MoneynessPct(in.Sym1Strike, in.EntrySym1)
	m2 := MoneynessPct(in.Sym2Strike, in.EntrySym2)
	diff := math.Abs(m1 - m2)
	if diff > config.MoneynessWarnThreshold {
		return fmt.Sprintf("moneyness mismatch %.3f%% exceeds %.2f%% (sym1 %.3f%%, sym2 %.3f%%)",
			diff, config.MoneynessWarnThreshold, m1, m2)
	}
	return ""
}
