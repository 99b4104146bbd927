package broker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreakerAdapter wraps an Adapter so a failing broker connection
// trips open instead of hammering the transport.
type CircuitBreakerAdapter struct {
	adapter Adapter
	breaker *gobreaker.CircuitBreaker
}

// Ensure CircuitBreakerAdapter implements Adapter at compile time.
var _ Adapter = (*CircuitBreakerAdapter)(nil)

// CircuitBreakerSettings configures circuit breaker behavior.
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerAdapter wraps an adapter with sensible defaults.
func NewCircuitBreakerAdapter(adapter Adapter) *CircuitBreakerAdapter {
	return NewCircuitBreakerAdapterWithSettings(adapter, CircuitBreakerSettings{
		MaxRequests:  3,                // Allow 3 requests when half-open
		Interval:     60 * time.Second, // Reset counts every minute
		Timeout:      30 * time.Second, // Open circuit for 30 seconds
		MinRequests:  5,                // Minimum requests before tripping
		FailureRatio: 0.6,              // Trip if 60% failure rate
	})
}

// NewCircuitBreakerAdapterWithSettings wraps an adapter with custom
// settings.
func NewCircuitBreakerAdapterWithSettings(adapter Adapter, settings CircuitBreakerSettings) *CircuitBreakerAdapter {
	gbSettings := gobreaker.Settings{
		Name:        "BrokerCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &CircuitBreakerAdapter{
		adapter: adapter,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// execBreaker is a generic helper for circuit breaker wrapper methods.
func execBreaker[T any](breaker *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn() })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// Connect wraps the underlying call with the circuit breaker.
func (c *CircuitBreakerAdapter) Connect(ctx context.Context) error {
	_, err := execBreaker(c.breaker, func() (struct{}, error) {
		return struct{}{}, c.adapter.Connect(ctx)
	})
	return err
}

// Disconnect wraps the underlying call with the circuit breaker.
func (c *CircuitBreakerAdapter) Disconnect(ctx context.Context) error {
	_, err := execBreaker(c.breaker, func() (struct{}, error) {
		return struct{}{}, c.adapter.Disconnect(ctx)
	})
	return err
}

/// IsConnected delegates without breaker accounting: it is a local check.
func (c *CircuitBreakerAdapter) IsConnected() bool {
	return c.adapter.IsConnected()
}

// AccountSummary wraps the underlying call with the circuit breaker.
func (c *CircuitBreakerAdapter) AccountSummary(ctx context.Context) (AccountSummary, error) {
	return execBreaker(c.breaker, func() (AccountSummary, error) { return c.adapter.AccountSummary(ctx) })
}

// GetPositions wraps the underlying call with the circuit breaker.
func (c *CircuitBreakerAdapter) GetPositions(ctx context.Context) ([]PositionItem, error) {
	return execBreaker(c.breaker, func() ([]PositionItem, error) { return c.adapter.GetPositions(ctx) })
}

// GetCurrentPrice wraps the underlying call with the circuit breaker.
func (c *CircuitBreakerAdapter) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	return execBreaker(c.breaker, func() (float64, error) { return c.adapter.GetCurrentPrice(ctx, symbol) })
}

// GetOptionQuote wraps the underlying call with the circuit breaker.
func (c *CircuitBreakerAdapter) GetOptionQuote(ctx context.Context, contract Contract) (OptionQuote, error) {
	return execBreaker(c.breaker, func() (OptionQuote, error) { return c.adapter.GetOptionQuote(ctx, contract) })
}

// Close wraps the underlying call with the circuit breaker.
func (c *CircuitBreakerAdapter) Close(ctx context.Context, contract Contract, quantity int, orderType OrderType) (OrderAck, error) {
	return execBreaker(c.breaker, func() (OrderAck, error) {
		return c.adapter.Close(ctx, contract, quantity, orderType)
	})
}
