package export

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/mhalloran/indexarb/internal/models"
	"github.com/mhalloran/indexarb/internal/position"
)

func buildTestSnapshot(t *testing.T, terminal *UnderlyingPrices) *Snapshot {
	t.Helper()
	cfg, err := models.NewStrategyConfig("SPY", "SPX", 10, 5, models.StrategyCallsOnly,
		models.SellSym2BuySym1, models.SellSym1BuySym2)
	if err != nil {
		t.Fatal(err)
	}
	in := position.BuildInput{
		Sym1Strike: 600, Sym2Strike: 6000,
		Prices: position.EntryPrices{
			position.SlotSym1Call: {Price: 2.40, Source: models.SourceMidpoint, Volume: 100},
			position.SlotSym2Call: {Price: 25.00, Source: models.SourceMidpoint, Volume: 100},
		},
		EntrySym1: 600, EntrySym2: 6000,
	}
	pos, err := position.Build(cfg, in)
	if err != nil {
		t.Fatal(err)
	}
	entry := time.Date(2024, 1, 2, 15, 30, 0, 0, time.UTC)
	snap, err := BuildSnapshot("20240102", entry, cfg, in, pos, terminal)
	if err != nil {
		t.Fatal(err)
	}
	return snap
}

func TestBuildSnapshot(t *testing.T) {
	snap := buildTestSnapshot(t, &UnderlyingPrices{Sym1: 606.00, Sym2: 6060.00})

	if snap.Date != "2024-01-02" {
		t.Errorf("date = %q, want 2024-01-02", snap.Date)
	}
	if !strings.HasSuffix(snap.EntryTime, " ET") {
		t.Errorf("entry time %q must carry the ET label", snap.EntryTime)
	}
	if snap.Credit != 100 {
		t.Errorf("credit = %v, want 100", snap.Credit)
	}
	if snap.BestWorstCase.NetPnL > snap.BestCase.NetPnL {
		t.Error("worst case cannot beat best case")
	}
	if snap.ActualOutcome == nil {
		t.Fatal("terminal prices given, actual outcome must be set")
	}
	// +1% lockstep nets exactly the credit.
	if math.Abs(snap.ActualOutcome.NetPnL-100) > 1e-9 {
		t.Errorf("actual net = %v, want 100", snap.ActualOutcome.NetPnL)
	}
	if snap.BestCase.NetPnL > 0 {
		wantPct := snap.ActualOutcome.NetPnL / snap.BestCase.NetPnL * 100
		if math.Abs(snap.ActualOutcome.PctOfBestCase-wantPct) > 1e-9 {
			t.Errorf("pct_of_best_case = %v, want %v", snap.ActualOutcome.PctOfBestCase, wantPct)
		}
	}
}

func TestBuildSnapshot_NoTerminal(t *testing.T) {
	snap := buildTestSnapshot(t, nil)
	if snap.ActualOutcome != nil {
		t.Error("actual outcome must be absent without terminal prices")
	}
}

// TestSnapshotFieldNames pins the envelope's JSON contract; downstream
// tooling keys on these names.
func TestSnapshotFieldNames(t *testing.T) {
	snap := buildTestSnapshot(t, &UnderlyingPrices{Sym1: 606.00, Sym2: 6060.00})
	data, err := Marshal(snap)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{
		"date", "entry_time", "strategy", "sym1_strike", "sym2_strike",
		"input_prices", "entry_prices", "terminal_prices",
		"credit", "call_credit", "put_credit", "estimated_margin",
		"best_case", "best_worst_case", "actual_outcome",
	} {
		if _, ok := m[key]; !ok {
			t.Errorf("envelope missing field %q", key)
		}
	}

	var bw map[string]json.RawMessage
	if err := json.Unmarshal(m["best_worst_case"], &bw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"net_pnl", "sym1_price", "sym2_price", "basis_drift_pct", "breakdown"} {
		if _, ok := bw[key]; !ok {
			t.Errorf("best_worst_case missing field %q", key)
		}
	}

	var outcome map[string]json.RawMessage
	if err := json.Unmarshal(m["actual_outcome"], &outcome); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"net_pnl", "pct_of_best_case", "legs"} {
		if _, ok := outcome[key]; !ok {
			t.Errorf("actual_outcome missing field %q", key)
		}
	}
}

func TestScanResultJSONOmitsInfiniteRatio(t *testing.T) {
	// A non-negative worst case makes the ratio +Inf, which JSON cannot
	// carry; the field stays out of the wire format entirely.
	r := models.ScanResult{Sym1Strike: 600, Sym2Strike: 6000, RiskReward: math.Inf(1)}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal with +Inf ratio failed: %v", err)
	}
	if strings.Contains(string(data), "risk_reward") {
		t.Error("risk_reward must not be serialized")
	}
}
