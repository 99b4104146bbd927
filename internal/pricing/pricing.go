// Package pricing answers point-in-time option price queries against the
// day's recorded trade and quote series, annotating every answer with
// liquidity metadata.
//
// Source precedence is midpoint over trade: a valid two-sided quote is a
// live executable price even when no trade printed at that minute. Trade
// bars with volume 0 are carried-forward stale prints and are never
// executable on their own.
package pricing

import (
	"time"

	"github.com/mhalloran/indexarb/internal/config"
	"github.com/mhalloran/indexarb/internal/marketdata"
	"github.com/mhalloran/indexarb/internal/models"
)

// PriceAt resolves the price of one contract at time t from the day's
// series. Either series may be nil. Returns nil when no row exists at or
// before t in any source; lookups never cross into a previous day because
// series are loaded per date.
//
// A stale result is returned with Stale set rather than suppressed: the
// caller decides whether to proceed, and position.Build refuses stale legs.
func PriceAt(trades marketdata.OptionSeries, quotes marketdata.QuoteSeries,
	symbol string, strike float64, right models.Right, t time.Time) *models.PriceQuote {

	key := marketdata.ContractKey{Symbol: symbol, Strike: strike, Right: right}

	var tradeBars marketdata.OptionSeries
	var tradeRow *models.OptionBar
	if trades != nil {
		tradeBars = trades.Contract(key)
		if row, ok := tradeBars.AsOf(t); ok {
			tradeRow = &row
		}
	}

	var quoteRow *models.OptionQuoteBar
	if quotes != nil {
		valid := quotes.Contract(key).Valid()
		if row, ok := valid.AsOf(t); ok {
			quoteRow = &row
		}
	}

	if quoteRow != nil {
		return fromQuote(*quoteRow, tradeBars, tradeRow, t)
	}
	if tradeRow != nil {
		return fromTrade(*tradeRow)
	}
	return nil
}

func fromQuote(q models.OptionQuoteBar, tradeBars marketdata.OptionSeries,
	tradeRow *models.OptionBar, t time.Time) *models.PriceQuote {

	spread := q.Ask - q.Bid
	pq := &models.PriceQuote{
		Price:  q.Midpoint,
		Source: models.SourceMidpoint,
		Bid:    ptr(q.Bid),
		Ask:    ptr(q.Ask),
		Spread: ptr(spread),
	}
	if q.Midpoint > 0 {
		pq.SpreadPct = ptr(spread / q.Midpoint * 100)
	}
	if tradeRow != nil {
		pq.Volume = tradeRow.Volume
	}

	// A midpoint is stale only when nothing supports it as live: no
	// volume>0 trade at or before t and the quote itself is not at t.
	_, liquidTrade := tradeBars.Liquid().AsOf(t)
	if !liquidTrade && !q.Time.Equal(t) {
		pq.Stale = true
	}

	if pq.SpreadPct != nil && *pq.SpreadPct > config.WideSpreadThreshold {
		pq.Warning = models.WarnWideSpread
	} else if pq.Volume < config.DefaultMinVolume {
		pq.Warning = models.WarnLowVolume
	}
	return pq
}

func fromTrade(b models.OptionBar) *models.PriceQuote {
	pq := &models.PriceQuote{
		Price:   b.Close,
		Source:  models.SourceTrade,
		Volume:  b.Volume,
		Warning: models.WarnNoQuote,
	}
	if b.Volume == 0 {
		pq.Stale = true
	}
	return pq
}

func ptr(f float64) *float64 { return &f }
