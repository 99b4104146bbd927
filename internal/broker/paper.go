package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mhalloran/indexarb/internal/errs"
)

// PaperAdapter is an in-memory Adapter with canned account state,
// positions, and quotes. It backs paper trading and satisfies the full
// live-trading surface in tests.
type PaperAdapter struct {
	sm *connStateMachine

	mu         sync.RWMutex
	account    AccountSummary
	positions  []PositionItem
	underlying map[string]float64
	quotes     map[Contract]OptionQuote
	// Latency is added to every call before the context check, so tests
	// can force deadline_exceeded deterministically.
	latency time.Duration
}

// Ensure PaperAdapter implements Adapter at compile time.
var _ Adapter = (*PaperAdapter)(nil)

// NewPaperAdapter creates a paper adapter with a funded account and no
// positions.
func NewPaperAdapter() *PaperAdapter {
	return &PaperAdapter{
		sm: newConnStateMachine(),
		account: AccountSummary{
			NetLiquidation: 250_000,
			AvailableFunds: 180_000,
			BuyingPower:    360_000,
		},
		underlying: make(map[string]float64),
		quotes:     make(map[Contract]OptionQuote),
	}
}

// SetAccount replaces the canned account summary.
func (p *PaperAdapter) SetAccount(a AccountSummary) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.account = a
}

// SetPositions replaces the canned position list.
func (p *PaperAdapter) SetPositions(items []PositionItem) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positions = append([]PositionItem(nil), items...)
}

// SetUnderlyingPrice sets the canned price for a symbol.
func (p *PaperAdapter) SetUnderlyingPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.underlying[symbol] = price
}

// SetOptionQuote sets the canned quote for a contract.
func (p *PaperAdapter) SetOptionQuote(c Contract, q OptionQuote) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotes[c] = q
}

// SetLatency makes every call block for d before responding.
func (p *PaperAdapter) SetLatency(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latency = d
}

// Connect establishes the paper session.
func (p *PaperAdapter) Connect(ctx context.Context) error {
	if err := p.sm.Transition(StateConnecting); err != nil {
		return err
	}
	if err := p.wait(ctx); err != nil {
		// Roll back so a later connect can succeed.
		_ = p.sm.Transition(StateDisconnected)
		return err
	}
	return p.sm.Transition(StateConnected)
}

// Disconnect tears down the paper session.
func (p *PaperAdapter) Disconnect(ctx context.Context) error {
	if err := p.sm.Transition(StateDisconnecting); err != nil {
		return err
	}
	if err := p.wait(ctx); err != nil {
		_ = p.sm.Transition(StateDisconnected)
		return err
	}
	return p.sm.Transition(StateDisconnected)
}

// IsConnected reports whether the session is live.
func (p *PaperAdapter) IsConnected() bool {
	return p.sm.Current() == StateConnected
}

// State exposes the connection state for diagnostics.
func (p *PaperAdapter) State() ConnState {
	return p.sm.Current()
}

// AccountSummary returns the canned account snapshot.
func (p *PaperAdapter) AccountSummary(ctx context.Context) (AccountSummary, error) {
	if err := p.preflight(ctx); err != nil {
		return AccountSummary{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.account, nil
}

// GetPositions returns the canned positions.
func (p *PaperAdapter) GetPositions(ctx context.Context) ([]PositionItem, error) {
	if err := p.preflight(ctx); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]PositionItem(nil), p.positions...), nil
}

// GetCurrentPrice returns the canned underlying price for a symbol.
func (p *PaperAdapter) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if err := p.preflight(ctx); err != nil {
		return 0, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	price, ok := p.underlying[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: no price for symbol %q", errs.ErrNotFound, symbol)
	}
	return price, nil
}

// GetOptionQuote returns the canned quote for a contract.
func (p *PaperAdapter) GetOptionQuote(ctx context.Context, c Contract) (OptionQuote, error) {
	if err := p.preflight(ctx); err != nil {
		return OptionQuote{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	q, ok := p.quotes[c]
	if !ok {
		return OptionQuote{}, fmt.Errorf("%w: no quote for %s %.2f %s", errs.ErrNotFound, c.Symbol, c.Strike, c.Right)
	}
	return q, nil
}

// Close acknowledges a closing order and reduces the matching canned
// position.
func (p *PaperAdapter) Close(ctx context.Context, c Contract, quantity int, orderType OrderType) (OrderAck, error) {
	if err := p.preflight(ctx); err != nil {
		return OrderAck{}, err
	}
	if quantity <= 0 {
		return OrderAck{}, fmt.Errorf("%w: close quantity must be positive, got %d", errs.ErrInvalidArgument, quantity)
	}
	if orderType != OrderMarket && orderType != OrderLimit {
		return OrderAck{}, fmt.Errorf("%w: unknown order type %q", errs.ErrInvalidArgument, orderType)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.positions {
		if p.positions[i].Contract != c {
			continue
		}
		switch {
		case p.positions[i].Size > 0:
			p.positions[i].Size -= quantity
		default:
			p.positions[i].Size += quantity
		}
		if p.positions[i].Size == 0 {
			p.positions = append(p.positions[:i], p.positions[i+1:]...)
		}
		return OrderAck{
			OrderID:   uuid.NewString(),
			Status:    "filled",
			Submitted: time.Now().UTC(),
		}, nil
	}
	return OrderAck{}, fmt.Errorf("%w: no open position for %s %.2f %s", errs.ErrNotFound, c.Symbol, c.Strike, c.Right)
}

// preflight enforces the connected precondition and the per-call deadline.
func (p *PaperAdapter) preflight(ctx context.Context) error {
	if err := p.sm.RequireConnected(); err != nil {
		return err
	}
	return p.wait(ctx)
}

func (p *PaperAdapter) wait(ctx context.Context) error {
	p.mu.RLock()
	latency := p.latency
	p.mu.RUnlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return mapCtxErr(ctx.Err())
		}
	}
	if err := ctx.Err(); err != nil {
		return mapCtxErr(err)
	}
	return nil
}

func mapCtxErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", errs.ErrDeadlineExceeded, err)
	}
	return fmt.Errorf("%w: %v", errs.ErrCancelled, err)
}
