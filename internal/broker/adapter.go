// Package broker defines the adapter surface the analytical core consumes
// for live paper or production execution, plus a paper implementation and a
// circuit-breaker wrapper. The core never depends on concrete broker
// semantics beyond this interface.
package broker

import (
	"context"
	"time"

	"github.com/mhalloran/indexarb/internal/util"
)

// OrderType selects how a closing order is priced.
type OrderType string

const (
	// OrderMarket closes at market.
	OrderMarket OrderType = "market"
	// OrderLimit closes at a limit derived from the current quote.
	OrderLimit OrderType = "limit"
)

// Contract identifies one option contract at the broker.
type Contract struct {
	Symbol string    `json:"symbol"`
	Strike float64   `json:"strike"`
	Right  string    `json:"right"`
	Expiry time.Time `json:"expiry"`
}

// AccountSummary is a snapshot of account state.
type AccountSummary struct {
	NetLiquidation float64 `json:"net_liquidation"`
	AvailableFunds float64 `json:"available_funds"`
	BuyingPower    float64 `json:"buying_power"`
}

// PositionItem is one open position reported by the broker. Market fields
// are zero when the broker has no mark.
type PositionItem struct {
	Contract      Contract `json:"contract"`
	Size          int      `json:"size"`
	AvgCost       float64  `json:"avg_cost"`
	MarketPrice   float64  `json:"market_price,omitempty"`
	MarketValue   float64  `json:"market_value,omitempty"`
	UnrealizedPnL float64  `json:"unrealized_pnl,omitempty"`
}

// OptionQuote is the broker's current two-sided market for a contract.
type OptionQuote struct {
	Bid float64 `json:"bid"`
	Ask float64 `json:"ask"`
}

// Mid returns the quote midpoint snapped to the penny tick.
func (q OptionQuote) Mid() float64 {
	return util.RoundToTick((q.Bid+q.Ask)/2, 0.01)
}

// OrderAck acknowledges an order submission.
type OrderAck struct {
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	Submitted time.Time `json:"submitted"`
}

// Adapter is the abstract broker surface. Read operations on a
// non-connected adapter fail with errs.ErrPreconditionNotMet; every call
// honors its context and surfaces errs.ErrDeadlineExceeded on timeout.
type Adapter interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	AccountSummary(ctx context.Context) (AccountSummary, error)
	GetPositions(ctx context.Context) ([]PositionItem, error)
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
	GetOptionQuote(ctx context.Context, c Contract) (OptionQuote, error)

	Close(ctx context.Context, c Contract, quantity int, orderType OrderType) (OrderAck, error)
}
