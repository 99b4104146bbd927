package models

import (
	"errors"
	"testing"

	"github.com/mhalloran/indexarb/internal/errs"
)

func TestNewStrategyConfig(t *testing.T) {
	tests := []struct {
		name     string
		sym1     string
		sym2     string
		qtyRatio int
		step     int
		st       StrategyType
		callDir  Direction
		putDir   Direction
		wantErr  bool
	}{
		{"valid full", "SPY", "SPX", 10, 5, StrategyFull, SellSym2BuySym1, SellSym1BuySym2, false},
		{"valid calls only", "SPY", "XSP", 1, 1, StrategyCallsOnly, SellSym2BuySym1, SellSym2BuySym1, false},
		{"missing sym1", "", "SPX", 10, 5, StrategyFull, SellSym2BuySym1, SellSym1BuySym2, true},
		{"same symbols", "SPY", "SPY", 10, 5, StrategyFull, SellSym2BuySym1, SellSym1BuySym2, true},
		{"zero qty ratio", "SPY", "SPX", 0, 5, StrategyFull, SellSym2BuySym1, SellSym1BuySym2, true},
		{"zero strike step", "SPY", "SPX", 10, 0, StrategyFull, SellSym2BuySym1, SellSym1BuySym2, true},
		{"bad strategy type", "SPY", "SPX", 10, 5, StrategyType("straddle"), SellSym2BuySym1, SellSym1BuySym2, true},
		{"bad call direction", "SPY", "SPX", 10, 5, StrategyFull, Direction("both"), SellSym1BuySym2, true},
		{"bad put direction", "SPY", "SPX", 10, 5, StrategyFull, SellSym2BuySym1, Direction(""), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStrategyConfig(tt.sym1, tt.sym2, tt.qtyRatio, tt.step, tt.st, tt.callDir, tt.putDir)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewStrategyConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errs.ErrInvalidArgument) {
				t.Errorf("error is not invalid_argument: %v", err)
			}
		})
	}
}

func TestStrategyTypeLegs(t *testing.T) {
	tests := []struct {
		st       StrategyType
		hasCalls bool
		hasPuts  bool
	}{
		{StrategyFull, true, true},
		{StrategyCallsOnly, true, false},
		{StrategyPutsOnly, false, true},
	}
	for _, tt := range tests {
		if got := tt.st.HasCalls(); got != tt.hasCalls {
			t.Errorf("%s.HasCalls() = %v, want %v", tt.st, got, tt.hasCalls)
		}
		if got := tt.st.HasPuts(); got != tt.hasPuts {
			t.Errorf("%s.HasPuts() = %v, want %v", tt.st, got, tt.hasPuts)
		}
	}
}

func TestNewLegValidation(t *testing.T) {
	if _, err := NewLeg("SPY", 600, RightCall, ActionSell, 1, 24.0); err != nil {
		t.Fatalf("valid leg rejected: %v", err)
	}
	invalid := []struct {
		name string
		fn   func() (Leg, error)
	}{
		{"empty symbol", func() (Leg, error) { return NewLeg("", 600, RightCall, ActionSell, 1, 24.0) }},
		{"zero strike", func() (Leg, error) { return NewLeg("SPY", 0, RightCall, ActionSell, 1, 24.0) }},
		{"bad right", func() (Leg, error) { return NewLeg("SPY", 600, Right("X"), ActionSell, 1, 24.0) }},
		{"bad action", func() (Leg, error) { return NewLeg("SPY", 600, RightCall, Action("HOLD"), 1, 24.0) }},
		{"zero quantity", func() (Leg, error) { return NewLeg("SPY", 600, RightCall, ActionSell, 0, 24.0) }},
		{"negative price", func() (Leg, error) { return NewLeg("SPY", 600, RightCall, ActionSell, 1, -0.01) }},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.fn(); !errors.Is(err, errs.ErrInvalidArgument) {
				t.Errorf("want invalid_argument, got %v", err)
			}
		})
	}
}

func TestLegCashFlow(t *testing.T) {
	sell, _ := NewLeg("SPX", 6000, RightCall, ActionSell, 1, 24.0)
	if got := sell.CashFlow(); got != 2400 {
		t.Errorf("sell cash flow = %v, want 2400", got)
	}
	buy, _ := NewLeg("SPY", 600, RightCall, ActionBuy, 10, 2.40)
	if got := buy.CashFlow(); got != -2400 {
		t.Errorf("buy cash flow = %v, want -2400", got)
	}
}

func TestOptionQuoteBarValid(t *testing.T) {
	tests := []struct {
		bid, ask float64
		want     bool
	}{
		{1.0, 1.2, true},
		{0, 1.2, false},
		{1.0, 0, false},
		{0, 0, false},
	}
	for _, tt := range tests {
		q := OptionQuoteBar{Bid: tt.bid, Ask: tt.ask}
		if got := q.Valid(); got != tt.want {
			t.Errorf("Valid() with bid=%v ask=%v = %v, want %v", tt.bid, tt.ask, got, tt.want)
		}
	}
}
