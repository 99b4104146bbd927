// Package retry wraps broker close operations with bounded exponential
// backoff. Transient transport failures are retried; enumerated semantic
// failures (not found, invalid argument, precondition) are not.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mhalloran/indexarb/internal/broker"
	"github.com/mhalloran/indexarb/internal/errs"
)

// Config bounds the retry loop.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

// DefaultConfig is the retry policy used when none is supplied.
var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	Timeout:        2 * time.Minute,
}

// Client retries closing orders against a broker adapter.
type Client struct {
	adapter broker.Adapter
	logger  *log.Logger
	config  Config
}

// NewClient builds a retrying client around an adapter.
func NewClient(adapter broker.Adapter, logger *log.Logger, config ...Config) *Client {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	return &Client{
		adapter: adapter,
		logger:  logger,
		config:  cfg,
	}
}

// CloseWithRetry submits a closing order, retrying transient failures with
// exponential backoff until the overall timeout elapses.
func (c *Client) CloseWithRetry(ctx context.Context, contract broker.Contract,
	quantity int, orderType broker.OrderType) (broker.OrderAck, error) {

	closeCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if err := closeCtx.Err(); err != nil {
			return broker.OrderAck{}, fmt.Errorf("%w: close timed out after %v", errs.ErrDeadlineExceeded, c.config.Timeout)
		}

		c.logger.Printf("Close attempt %d/%d for %s %.2f %s",
			attempt+1, c.config.MaxRetries+1, contract.Symbol, contract.Strike, contract.Right)

		ack, err := c.adapter.Close(closeCtx, contract, quantity, orderType)
		if err == nil {
			c.logger.Printf("Close order placed on attempt %d: %s", attempt+1, ack.OrderID)
			return ack, nil
		}

		lastErr = err
		c.logger.Printf("Close attempt %d failed: %v", attempt+1, err)

		if !isTransient(err) || attempt == c.config.MaxRetries {
			break
		}
		c.logger.Printf("Transient error, retrying in %v", backoff)
		select {
		case <-time.After(backoff):
			backoff = nextBackoff(backoff, c.config.MaxBackoff)
		case <-closeCtx.Done():
			return broker.OrderAck{}, fmt.Errorf("%w: close timed out during backoff", errs.ErrDeadlineExceeded)
		}
	}
	return broker.OrderAck{}, fmt.Errorf("close failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

// isTransient reports whether an error is worth retrying. Semantic
// refusals never are; timeouts and unclassified transport errors are.
func isTransient(err error) bool {
	switch {
	case errors.Is(err, errs.ErrNotFound),
		errors.Is(err, errs.ErrInvalidArgument),
		errors.Is(err, errs.ErrPreconditionNotMet),
		errors.Is(err, errs.ErrCancelled):
		return false
	default:
		return true
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
