// Package export renders analytical results as stable, machine-readable
// JSON envelopes. Field names are part of the contract; downstream tooling
// keys on them.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mhalloran/indexarb/internal/errs"
	"github.com/mhalloran/indexarb/internal/marketdata"
	"github.com/mhalloran/indexarb/internal/models"
	"github.com/mhalloran/indexarb/internal/pnl"
	"github.com/mhalloran/indexarb/internal/position"
)

// UnderlyingPrices is a sym1/sym2 price pair.
type UnderlyingPrices struct {
	Sym1 float64 `json:"sym1"`
	Sym2 float64 `json:"sym2"`
}

// ActualOutcome is the realized settlement of a position against the day's
// terminal underlying prices.
type ActualOutcome struct {
	NetPnL float64 `json:"net_pnl"`
	// PctOfBestCase relates the realized P&L to the grid's best case;
	// zero when the best case is zero.
	PctOfBestCase float64          `json:"pct_of_best_case"`
	Legs          []pnl.LegOutcome `json:"legs"`
}

// Snapshot is the envelope every user-visible analytical view emits.
type Snapshot struct {
	Date           string                        `json:"date"`
	EntryTime      string                        `json:"entry_time"`
	Strategy       models.StrategyConfig         `json:"strategy"`
	Sym1Strike     float64                       `json:"sym1_strike"`
	Sym2Strike     float64                       `json:"sym2_strike"`
	InputPrices    map[string]*models.PriceQuote `json:"input_prices"`
	EntryPrices    UnderlyingPrices              `json:"entry_prices"`
	TerminalPrices UnderlyingPrices              `json:"terminal_prices"`
	Credit         float64                       `json:"credit"`
	CallCredit     float64                       `json:"call_credit"`
	PutCredit      float64                       `json:"put_credit"`
	Margin         float64                       `json:"estimated_margin"`
	Warnings       []string                      `json:"warnings,omitempty"`
	BestCase       pnl.Scenario                  `json:"best_case"`
	// BestWorstCase is the full-grid worst case with its coordinates and
	// per-leg breakdown.
	BestWorstCase pnl.Scenario   `json:"best_worst_case"`
	ActualOutcome *ActualOutcome `json:"actual_outcome,omitempty"`
}

// BuildSnapshot assembles the envelope for one analyzed position: entry
// state, the grid extremes, and (when terminal prices are known) the
// realized outcome.
func BuildSnapshot(date marketdata.DateID, entryTime time.Time, cfg models.StrategyConfig,
	in position.BuildInput, pos *models.Position, terminal *UnderlyingPrices) (*Snapshot, error) {

	if pos == nil {
		return nil, fmt.Errorf("%w: position is required", errs.ErrInvalidArgument)
	}

	bw, err := pnl.BestWorstCase(pos, cfg.Sym1, cfg.Sym2, in.EntrySym1, in.EntrySym2)
	if err != nil {
		return nil, err
	}

	inputPrices := make(map[string]*models.PriceQuote, len(in.Prices))
	for slot, pq := range in.Prices {
		inputPrices[string(slot)] = pq
	}

	snap := &Snapshot{
		Date:        date.Formatted(),
		EntryTime:   marketdata.ETLabel(entryTime) + " ET",
		Strategy:    cfg,
		Sym1Strike:  in.Sym1Strike,
		Sym2Strike:  in.Sym2Strike,
		InputPrices: inputPrices,
		EntryPrices: UnderlyingPrices{Sym1: in.EntrySym1, Sym2: in.EntrySym2},
		Credit:      pos.TotalCredit,
		CallCredit:  pos.CallCredit,
		PutCredit:   pos.PutCredit,
		Margin:      pos.EstimatedMargin,
		Warnings:    pos.Warnings,
		BestCase:    bw.Best,
		// "Best worst case" in the original tooling's sense: the floor the
		// grid found.
		BestWorstCase: bw.Worst,
	}

	if terminal != nil {
		snap.TerminalPrices = *terminal
		net, legs, err := pnl.Settle(pos, cfg.Sym1, cfg.Sym2, terminal.Sym1, terminal.Sym2)
		if err != nil {
			return nil, err
		}
		outcome := &ActualOutcome{NetPnL: net, Legs: legs}
		if bw.Best.NetPnL != 0 {
			outcome.PctOfBestCase = net / bw.Best.NetPnL * 100
		}
		snap.ActualOutcome = outcome
	}
	return snap, nil
}

// Marshal renders a value as indented JSON.
func Marshal(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling snapshot: %w", err)
	}
	return data, nil
}

// WriteFile writes a value as indented JSON to path.
func WriteFile(path string, v any) error {
	data, err := Marshal(v)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}
