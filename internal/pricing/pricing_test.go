package pricing

import (
	"testing"
	"time"

	"github.com/mhalloran/indexarb/internal/marketdata"
	"github.com/mhalloran/indexarb/internal/models"
)

var base = time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)

func tradeBar(minOffset int, closePx float64, volume int64) models.OptionBar {
	return models.OptionBar{
		Symbol: "SPY", Strike: 600, Right: models.RightCall,
		Time:  base.Add(time.Duration(minOffset) * time.Minute),
		Close: closePx, Volume: volume,
	}
}

func quoteBar(minOffset int, bid, ask float64) models.OptionQuoteBar {
	return models.OptionQuoteBar{
		Symbol: "SPY", Strike: 600, Right: models.RightCall,
		Time: base.Add(time.Duration(minOffset) * time.Minute),
		Bid:  bid, Ask: ask, Midpoint: (bid + ask) / 2,
	}
}

func TestPriceAt_MidpointBeatsTrade(t *testing.T) {
	trades := marketdata.OptionSeries{tradeBar(0, 2.42, 120)}
	quotes := marketdata.QuoteSeries{quoteBar(0, 2.40, 2.50)}

	pq := PriceAt(trades, quotes, "SPY", 600, models.RightCall, base)
	if pq == nil {
		t.Fatal("PriceAt() returned nil")
	}
	if pq.Source != models.SourceMidpoint {
		t.Errorf("source = %s, want midpoint", pq.Source)
	}
	if pq.Price != 2.45 {
		t.Errorf("price = %v, want 2.45", pq.Price)
	}
	if pq.Volume != 120 {
		t.Errorf("volume = %v, want 120 from the trade row", pq.Volume)
	}
	if pq.Stale {
		t.Error("quote at t with a liquid trade must not be stale")
	}
	if pq.Warning != "" {
		t.Errorf("unexpected warning %q", pq.Warning)
	}
}

func TestPriceAt_TradeFallback(t *testing.T) {
	trades := marketdata.OptionSeries{tradeBar(0, 2.42, 120)}

	pq := PriceAt(trades, nil, "SPY", 600, models.RightCall, base)
	if pq == nil {
		t.Fatal("PriceAt() returned nil")
	}
	if pq.Source != models.SourceTrade {
		t.Errorf("source = %s, want trade", pq.Source)
	}
	if pq.Price != 2.42 {
		t.Errorf("price = %v, want 2.42", pq.Price)
	}
	if pq.Warning != models.WarnNoQuote {
		t.Errorf("warning = %q, want no_quote", pq.Warning)
	}
	if pq.Stale {
		t.Error("volume>0 trade must not be stale")
	}
}

func TestPriceAt_OneSidedQuoteFallsBackToTrade(t *testing.T) {
	trades := marketdata.OptionSeries{tradeBar(0, 2.42, 120)}
	quotes := marketdata.QuoteSeries{quoteBar(0, 0, 2.50)}

	pq := PriceAt(trades, quotes, "SPY", 600, models.RightCall, base)
	if pq == nil {
		t.Fatal("PriceAt() returned nil")
	}
	if pq.Source != models.SourceTrade {
		t.Errorf("source = %s, want trade (one-sided quote unusable)", pq.Source)
	}
}

func TestPriceAt_StaleTrade(t *testing.T) {
	trades := marketdata.OptionSeries{tradeBar(0, 2.42, 0)}

	pq := PriceAt(trades, nil, "SPY", 600, models.RightCall, base)
	if pq == nil {
		t.Fatal("PriceAt() returned nil")
	}
	if !pq.Stale {
		t.Error("volume=0 trade with no quote must be stale")
	}
}

func TestPriceAt_StaleMidpoint(t *testing.T) {
	// Quote from an earlier minute, and the only trade is a volume=0
	// carry-forward: nothing supports the midpoint as live.
	trades := marketdata.OptionSeries{tradeBar(0, 2.42, 0)}
	quotes := marketdata.QuoteSeries{quoteBar(0, 2.40, 2.50)}
	at := base.Add(5 * time.Minute)

	pq := PriceAt(trades, quotes, "SPY", 600, models.RightCall, at)
	if pq == nil {
		t.Fatal("PriceAt() returned nil")
	}
	if pq.Source != models.SourceMidpoint {
		t.Errorf("source = %s, want midpoint", pq.Source)
	}
	if !pq.Stale {
		t.Error("aged quote with no liquid trade must be stale")
	}
}

func TestPriceAt_QuoteExactlyAtTimeIsLive(t *testing.T) {
	quotes := marketdata.QuoteSeries{quoteBar(0, 2.40, 2.50)}

	pq := PriceAt(nil, quotes, "SPY", 600, models.RightCall, base)
	if pq == nil {
		t.Fatal("PriceAt() returned nil")
	}
	if pq.Stale {
		t.Error("quote exactly at t is live even without trades")
	}
}

func TestPriceAt_WideSpreadWarning(t *testing.T) {
	// Spread 1.00 on midpoint 2.00 is 50% > threshold.
	trades := marketdata.OptionSeries{tradeBar(0, 2.00, 500)}
	quotes := marketdata.QuoteSeries{quoteBar(0, 1.50, 2.50)}

	pq := PriceAt(trades, quotes, "SPY", 600, models.RightCall, base)
	if pq == nil {
		t.Fatal("PriceAt() returned nil")
	}
	if pq.Warning != models.WarnWideSpread {
		t.Errorf("warning = %q, want wide_spread", pq.Warning)
	}
}

func TestPriceAt_LowVolumeWarning(t *testing.T) {
	trades := marketdata.OptionSeries{tradeBar(0, 2.45, 3)}
	quotes := marketdata.QuoteSeries{quoteBar(0, 2.40, 2.50)}

	pq := PriceAt(trades, quotes, "SPY", 600, models.RightCall, base)
	if pq == nil {
		t.Fatal("PriceAt() returned nil")
	}
	if pq.Warning != models.WarnLowVolume {
		t.Errorf("warning = %q, want low_volume", pq.Warning)
	}
}

func TestPriceAt_NoRowBeforeT(t *testing.T) {
	trades := marketdata.OptionSeries{tradeBar(10, 2.42, 120)}
	quotes := marketdata.QuoteSeries{quoteBar(10, 2.40, 2.50)}

	if pq := PriceAt(trades, quotes, "SPY", 600, models.RightCall, base); pq != nil {
		t.Errorf("want nil before the first row, got %+v", pq)
	}
}

func TestPriceAt_UnknownContract(t *testing.T) {
	trades := marketdata.OptionSeries{tradeBar(0, 2.42, 120)}

	if pq := PriceAt(trades, nil, "SPY", 601, models.RightCall, base); pq != nil {
		t.Errorf("want nil for unrecorded strike, got %+v", pq)
	}
}
